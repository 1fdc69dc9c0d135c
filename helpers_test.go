package tsnlat

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// lineTopology links the named nodes in a row, both directions; the first and
// last are end stations, the others bridges
func lineTopology(t *testing.T, rate, delay float64, names ...string) *Topology {
	t.Helper()
	topo := CreateTopology("line")
	for idx, name := range names {
		role := Bridge
		if idx == 0 || idx == len(names)-1 {
			role = EndStation
		}
		require.NoError(t, topo.AddNode(name, role))
	}
	for idx := 1; idx < len(names); idx++ {
		require.NoError(t, topo.AddBidirectionalLink(names[idx-1], names[idx], rate, delay))
	}
	return topo
}

// uniformReservations reserves fraction for every queue one of the flows crosses
func uniformReservations(t *testing.T, topo *Topology, fraction float64, flows ...*Flow) map[QueueKey]Reservation {
	t.Helper()
	res := make(map[QueueKey]Reservation)
	for _, fl := range flows {
		links, err := topo.PathLinks(fl.Path)
		require.NoError(t, err)
		for _, link := range links {
			res[QueueKey{Node: link.Src, Port: link.Dst, Class: fl.Class}] = Reservation{Fraction: fraction}
		}
	}
	return res
}

// crossParams are the default parameters with a full sized best effort frame able to block every port
func crossParams() Params {
	params := DefaultParams()
	params.CrossTrafficFrame = DefaultCrossTraffic
	return params
}

// fanInNetwork has two talkers feeding bridge S, which sends to D.  The analysed
// flow "own" (class 6, burst 2) shares the S->D port with a flow of its own class,
// one of a higher and one of a lower class.  The class 6 queue of S->D reserves
// fraction, at most 0.7.
func fanInNetwork(t *testing.T, fraction float64) *Network {
	t.Helper()
	const rate = 100e6
	topo := CreateTopology("fan-in")
	require.NoError(t, topo.AddEndStation("T1"))
	require.NoError(t, topo.AddEndStation("T2"))
	require.NoError(t, topo.AddEndStation("D"))
	require.NoError(t, topo.AddBridge("S"))
	require.NoError(t, topo.AddBidirectionalLink("T1", "S", rate, 1e-6))
	require.NoError(t, topo.AddBidirectionalLink("T2", "S", rate, 1e-6))
	require.NoError(t, topo.AddBidirectionalLink("S", "D", rate, 1e-6))

	own := CreateFlow("own", "T1", "D", []string{"T1", "S", "D"}, 500, 1e-3, 2, 6)
	same := CreateFlow("same", "T2", "D", []string{"T2", "S", "D"}, 1000, 1e-3, 1, 6)
	higher := CreateFlow("higher", "T2", "D", []string{"T2", "S", "D"}, 1500, 1e-3, 1, 7)
	lower := CreateFlow("lower", "T1", "D", []string{"T1", "S", "D"}, 1200, 1e-3, 1, 5)

	res := map[QueueKey]Reservation{
		{Node: "T1", Port: "S", Class: 6}: {Fraction: 0.2},
		{Node: "T1", Port: "S", Class: 5}: {Fraction: 0.1},
		{Node: "T2", Port: "S", Class: 6}: {Fraction: 0.2},
		{Node: "T2", Port: "S", Class: 7}: {Fraction: 0.2},
		{Node: "S", Port: "D", Class: 7}:  {Fraction: 0.2},
		{Node: "S", Port: "D", Class: 5}:  {Fraction: 0.1},
		{Node: "S", Port: "D", Class: 6}:  {Fraction: fraction},
	}

	nw, err := NewNetwork(topo, []*Flow{own, same, higher, lower}, res, crossParams())
	require.NoError(t, err)
	return nw
}
