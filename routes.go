package tsnlat

// routes.go provides shortest path routes through a Topology.  The analysis
// itself uses the explicit path every flow declares; these routes are only
// used to fill in paths that a scenario leaves out.

import (
	"math"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
)

// The general approach is to convert the Topology into the data structures used by
// the gonum graph package, which has built-in path discovery algorithms.
// Weighting each directed link by 1, a shortest path minimizes the number of hops.
//   The Dijkstra algorithm computes a tree of shortest paths from a named node,
// so for the path from src to dst we either compute such a tree rooted in src, or
// look it up among the trees already computed.

// routingGraph is the gonum representation of the topology's directed links
type routingGraph struct {
	g *simple.WeightedDirectedGraph
}

// buildRoutingGraph returns the graph representation of every node and directed link of topo
func buildRoutingGraph(topo *Topology) *routingGraph {
	g := simple.NewWeightedDirectedGraph(0, math.Inf(1))

	// every node, including isolated ones, so that DijkstraFrom can be rooted anywhere
	for _, name := range topo.nodeOrder {
		g.AddNode(simple.Node(topo.nodes[name].id))
	}

	// represent each directed link with weight 1
	for _, key := range topo.linkOrder {
		from := simple.Node(topo.nodes[key.src].id)
		to := simple.Node(topo.nodes[key.dst].id)
		g.SetWeightedEdge(simple.WeightedEdge{F: from, T: to, W: 1.0})
	}

	return &routingGraph{g: g}
}

// spTree returns the shortest path tree rooted in node from.  If the tree is found
// in the cache it is returned, if not it is computed, saved, and returned.
// Caller holds topo.spMtx.
func (topo *Topology) spTree(from *Node) path.Shortest {
	// the topology may have grown since the graph was built
	size := len(topo.nodeOrder) + len(topo.linkOrder)
	if topo.spGraph == nil || topo.spLinked != size {
		topo.spGraph = buildRoutingGraph(topo)
		topo.spLinked = size
		topo.spCache = make(map[int64]path.Shortest)
	}

	spTree, present := topo.spCache[from.id]
	if present {
		return spTree
	}

	spTree = path.DijkstraFrom(topo.spGraph.g.Node(from.id), topo.spGraph.g)
	topo.spCache[from.id] = spTree

	return spTree
}

// convertNodeSeq extracts the node names from a sequence of graph nodes
func (topo *Topology) convertNodeSeq(nsQ []graph.Node) []string {
	rtn := make([]string, 0, len(nsQ))
	for _, gnode := range nsQ {
		rtn = append(rtn, topo.nodeByID[gnode.ID()].Name)
	}

	return rtn
}

// ShortestPath returns the sequence of node names, src and dst included, on a
// minimum hop path from src to dst along directed links.  Among paths of equal length
// the one returned is unspecified.
func (topo *Topology) ShortestPath(src, dst string) ([]string, error) {
	srcNode, present := topo.nodes[src]
	if !present {
		return nil, configErrorf("route %s->%s: unknown source node", src, dst)
	}
	dstNode, present := topo.nodes[dst]
	if !present {
		return nil, configErrorf("route %s->%s: unknown destination node", src, dst)
	}
	if src == dst {
		return nil, configErrorf("route %s->%s: source and destination are the same node", src, dst)
	}

	topo.spMtx.Lock()
	defer topo.spMtx.Unlock()

	spTree := topo.spTree(srcNode)
	nodeSeq, weight := spTree.To(dstNode.id)
	if len(nodeSeq) == 0 || math.IsInf(weight, 1) {
		return nil, configErrorf("route %s->%s: destination not reachable", src, dst)
	}

	return topo.convertNodeSeq(nodeSeq), nil
}
