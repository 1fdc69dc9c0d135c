package tsnlat

// net.go holds the representation of the network the flows cross:
// nodes (end stations and bridges) and the directed links between them

import (
	"fmt"
	"sync"

	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/graph/path"
)

// NodeRole is the base type for an enumerated type of network nodes
type NodeRole int

const (
	EndStation NodeRole = iota
	Bridge
	unknownRole
)

// NodeRoleFromStr returns the NodeRole corresponding to a string name for it
func NodeRoleFromStr(role string) (NodeRole, error) {
	switch role {
	case "EndStation", "endstation", "end-station", "node", "host":
		return EndStation, nil
	case "Bridge", "bridge", "switch", "Switch":
		return Bridge, nil
	default:
		return unknownRole, configErrorf("unrecognized node role %q", role)
	}
}

// String returns a string name that corresponds to the NodeRole
func (role NodeRole) String() string {
	switch role {
	case EndStation:
		return "endstation"
	case Bridge:
		return "bridge"
	default:
		return "unknown"
	}
}

// A Node is a talker, listener, or bridge of the network
type Node struct {
	Name string
	Role NodeRole

	// position of the node in the routing graph
	id int64
}

// A Link is the directed connection from the egress port of Src to Dst
type Link struct {
	Src   string
	Dst   string
	Rate  float64 // bits per second
	Delay float64 // propagation delay, seconds
}

func (l *Link) String() string {
	return fmt.Sprintf("%s->%s", l.Src, l.Dst)
}

// linkKey identifies a directed link by the names of its end nodes
type linkKey struct {
	src, dst string
}

// Topology holds the nodes and directed links of a network.  It is built once
// through the Add methods and then only read.
type Topology struct {
	Name string

	nodes     map[string]*Node
	nodeOrder []string
	nodeByID  map[int64]*Node

	links     map[linkKey]*Link
	linkOrder []linkKey

	// shortest path trees computed on demand, keyed by the id of the root node
	spMtx    sync.Mutex
	spCache  map[int64]path.Shortest
	spGraph  *routingGraph
	spLinked int // number of nodes plus links when spGraph was built
}

// CreateTopology is a constructor
func CreateTopology(name string) *Topology {
	topo := new(Topology)
	topo.Name = name
	topo.nodes = make(map[string]*Node)
	topo.nodeOrder = make([]string, 0)
	topo.nodeByID = make(map[int64]*Node)
	topo.links = make(map[linkKey]*Link)
	topo.linkOrder = make([]linkKey, 0)
	topo.spCache = make(map[int64]path.Shortest)

	return topo
}

// AddNode includes a node with the given role.  Adding a name twice with the same
// role is ignored, with a different role it is an error.
func (topo *Topology) AddNode(name string, role NodeRole) error {
	if len(name) == 0 {
		return configErrorf("node name must not be empty")
	}
	if role != EndStation && role != Bridge {
		return configErrorf("node %s has unknown role", name)
	}
	stored, present := topo.nodes[name]
	if present {
		if stored.Role != role {
			return configErrorf("node %s already present as %s", name, stored.Role)
		}
		return nil
	}

	node := &Node{Name: name, Role: role, id: int64(len(topo.nodeOrder))}
	topo.nodes[name] = node
	topo.nodeByID[node.id] = node
	topo.nodeOrder = append(topo.nodeOrder, name)

	return nil
}

// AddEndStation includes a talker or listener
func (topo *Topology) AddEndStation(name string) error {
	return topo.AddNode(name, EndStation)
}

// AddBridge includes a bridge
func (topo *Topology) AddBridge(name string) error {
	return topo.AddNode(name, Bridge)
}

// AddLink includes the directed link from src to dst.  Both nodes must already be known,
// the rate must be positive and the propagation delay not negative.
func (topo *Topology) AddLink(src, dst string, rate, delay float64) error {
	if _, present := topo.nodes[src]; !present {
		return configErrorf("link %s->%s: unknown source node", src, dst)
	}
	if _, present := topo.nodes[dst]; !present {
		return configErrorf("link %s->%s: unknown destination node", src, dst)
	}
	if src == dst {
		return configErrorf("link %s->%s: a node cannot link to itself", src, dst)
	}
	if !(rate > 0) || !finite(rate) {
		return configErrorf("link %s->%s: rate must be positive, got %g", src, dst, rate)
	}
	if delay < 0 || !finite(delay) {
		return configErrorf("link %s->%s: delay must not be negative, got %g", src, dst, delay)
	}

	key := linkKey{src: src, dst: dst}
	if _, present := topo.links[key]; present {
		return configErrorf("link %s->%s already present", src, dst)
	}
	topo.links[key] = &Link{Src: src, Dst: dst, Rate: rate, Delay: delay}
	topo.linkOrder = append(topo.linkOrder, key)

	return nil
}

// AddBidirectionalLink includes a link in each direction, with the same rate and delay
func (topo *Topology) AddBidirectionalLink(nodeA, nodeB string, rate, delay float64) error {
	if err := topo.AddLink(nodeA, nodeB, rate, delay); err != nil {
		return err
	}
	return topo.AddLink(nodeB, nodeA, rate, delay)
}

// Node returns the node with the given name, if any
func (topo *Topology) Node(name string) (*Node, bool) {
	node, present := topo.nodes[name]
	return node, present
}

// Nodes returns the nodes in the order they were added
func (topo *Topology) Nodes() []*Node {
	rtn := make([]*Node, 0, len(topo.nodeOrder))
	for _, name := range topo.nodeOrder {
		rtn = append(rtn, topo.nodes[name])
	}
	return rtn
}

// Link returns the directed link from src to dst, if there is one
func (topo *Topology) Link(src, dst string) (*Link, bool) {
	link, present := topo.links[linkKey{src: src, dst: dst}]
	return link, present
}

// Links returns every directed link, in the order they were added
func (topo *Topology) Links() []*Link {
	rtn := make([]*Link, 0, len(topo.linkOrder))
	for _, key := range topo.linkOrder {
		rtn = append(rtn, topo.links[key])
	}
	return rtn
}

// InputLinks returns the links that deliver frames to the egress port of link,
// i.e., every link entering link.Src except the one coming back from link.Dst
func (topo *Topology) InputLinks(link *Link) []*Link {
	rtn := []*Link{}
	for _, key := range topo.linkOrder {
		if key.dst == link.Src && key.src != link.Dst {
			rtn = append(rtn, topo.links[key])
		}
	}
	return rtn
}

// PathLinks converts a sequence of node names into the sequence of directed links
// joining them.  Returns an error if any node is unknown or two consecutive nodes
// are not linked.
func (topo *Topology) PathLinks(nodes []string) ([]*Link, error) {
	if len(nodes) < 2 {
		return nil, configErrorf("path %v needs at least two nodes", nodes)
	}
	for _, name := range nodes {
		if _, present := topo.nodes[name]; !present {
			return nil, configErrorf("path %v names unknown node %s", nodes, name)
		}
	}

	links := make([]*Link, 0, len(nodes)-1)
	for idx := 1; idx < len(nodes); idx++ {
		link, present := topo.Link(nodes[idx-1], nodes[idx])
		if !present {
			return nil, configErrorf("path %v: no link %s->%s", nodes, nodes[idx-1], nodes[idx])
		}
		links = append(links, link)
	}

	// a path visiting a node twice is a loop, not a route
	seen := make([]string, 0, len(nodes))
	for _, name := range nodes {
		if slices.Contains(seen, name) {
			return nil, configErrorf("path %v visits %s twice", nodes, name)
		}
		seen = append(seen, name)
	}

	return links, nil
}

// ValidatePath returns a configuration error when the sequence of node names
// is not a loop free chain of directed links
func (topo *Topology) ValidatePath(nodes []string) error {
	_, err := topo.PathLinks(nodes)
	return err
}
