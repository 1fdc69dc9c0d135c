package tsnlat

// flowgen.go draws random flow sets over a topology, for studies of how the
// bounds react to load.  Each flow set draws from its own rngstream, named
// after the set.

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/iti/rngstream"
)

// largest stream frame drawn when FlowGenDesc leaves it out, bytes
const defaultMaxStreamFrame = 1500

// FlowGenDesc describes a random flow set
type FlowGenDesc struct {
	// name of the random stream, also the prefix of the flow identifiers
	Name  string `json:"name" yaml:"name"`
	Count int    `json:"count" yaml:"count"`

	// candidate talkers and listeners; every end station when empty
	Talkers   []string `json:"talkers,omitempty" yaml:"talkers,omitempty"`
	Listeners []string `json:"listeners,omitempty" yaml:"listeners,omitempty"`

	// frame sizes are drawn uniformly from [MinFrame, MaxFrame] bytes
	MinFrame int `json:"minframe,omitempty" yaml:"minframe,omitempty"`
	MaxFrame int `json:"maxframe,omitempty" yaml:"maxframe,omitempty"`

	// intervals and classes are drawn from these lists
	Intervals []float64 `json:"intervals,omitempty" yaml:"intervals,omitempty"`
	Classes   []int     `json:"classes,omitempty" yaml:"classes,omitempty"`

	// bursts are drawn uniformly from [1, MaxBurst]
	MaxBurst int `json:"maxburst,omitempty" yaml:"maxburst,omitempty"`

	Deadline float64 `json:"deadline,omitempty" yaml:"deadline,omitempty"`
}

// withDefaults fills in what the description leaves out
func (fg FlowGenDesc) withDefaults(topo *Topology) FlowGenDesc {
	endStations := []string{}
	for _, node := range topo.Nodes() {
		if node.Role == EndStation {
			endStations = append(endStations, node.Name)
		}
	}
	if len(fg.Talkers) == 0 {
		fg.Talkers = endStations
	}
	if len(fg.Listeners) == 0 {
		fg.Listeners = endStations
	}
	if fg.MinFrame == 0 {
		fg.MinFrame = DefaultMinFrame
	}
	if fg.MaxFrame == 0 {
		fg.MaxFrame = defaultMaxStreamFrame
	}
	if len(fg.Intervals) == 0 {
		fg.Intervals = []float64{DefaultCMI}
	}
	if len(fg.Classes) == 0 {
		fg.Classes = []int{maxTrafficClass}
	}
	if fg.MaxBurst == 0 {
		fg.MaxBurst = 1
	}
	return fg
}

// pick returns an index drawn uniformly from [0,n)
func pick(rng *rngstream.RngStream, n int) (int, error) {
	if n <= 0 {
		return 0, configErrorf("nothing to pick from, %d choices", n)
	}
	idx := int(rng.RandU01() * float64(n))
	if idx >= n {
		idx = n - 1
	}
	return idx, nil
}

// GenerateFlows draws fg.Count flows between end stations of topo, each routed along a
// shortest path.  Talker and listener of a flow always differ.
func GenerateFlows(topo *Topology, fg FlowGenDesc) ([]*Flow, error) {
	if len(fg.Name) == 0 {
		return nil, configErrorf("flow set needs a name")
	}
	if fg.Count < 0 {
		return nil, configErrorf("flow set %s: count must not be negative, got %d", fg.Name, fg.Count)
	}
	fg = fg.withDefaults(topo)
	if len(fg.Talkers) == 0 {
		return nil, configErrorf("flow set %s: no talkers", fg.Name)
	}
	if len(fg.Listeners) == 0 {
		return nil, configErrorf("flow set %s: no listeners", fg.Name)
	}
	if fg.MinFrame <= 0 || fg.MaxFrame < fg.MinFrame {
		return nil, configErrorf("flow set %s: frame range [%d,%d] is empty", fg.Name, fg.MinFrame, fg.MaxFrame)
	}
	if fg.MaxBurst < 1 {
		return nil, configErrorf("flow set %s: max burst must be at least 1, got %d", fg.Name, fg.MaxBurst)
	}

	rng := rngstream.New(fg.Name)
	flows := make([]*Flow, 0, fg.Count)
	for idx := 0; idx < fg.Count; idx++ {
		fl, err := drawFlow(rng, topo, fg, idx)
		if err != nil {
			return nil, errors.Wrapf(err, "flow set %s", fg.Name)
		}
		flows = append(flows, fl)
	}
	return flows, nil
}

// drawFlow draws the idx-th flow of the set fg
func drawFlow(rng *rngstream.RngStream, topo *Topology, fg FlowGenDesc, idx int) (*Flow, error) {
	talkerIdx, err := pick(rng, len(fg.Talkers))
	if err != nil {
		return nil, err
	}
	talker := fg.Talkers[talkerIdx]

	// listeners other than the talker
	others := make([]string, 0, len(fg.Listeners))
	for _, listener := range fg.Listeners {
		if listener != talker {
			others = append(others, listener)
		}
	}
	if len(others) == 0 {
		return nil, configErrorf("no listener other than %s", talker)
	}
	listenerIdx, err := pick(rng, len(others))
	if err != nil {
		return nil, err
	}
	listener := others[listenerIdx]

	route, err := topo.ShortestPath(talker, listener)
	if err != nil {
		return nil, err
	}

	// frame size, interval, class and burst, drawn in that order
	draws := []int{fg.MaxFrame - fg.MinFrame + 1, len(fg.Intervals), len(fg.Classes), fg.MaxBurst}
	for pos, n := range draws {
		if draws[pos], err = pick(rng, n); err != nil {
			return nil, err
		}
	}

	fl := CreateFlow(fmt.Sprintf("%s-%d", fg.Name, idx), talker, listener, route,
		fg.MinFrame+draws[0], fg.Intervals[draws[1]], 1+draws[3], fg.Classes[draws[2]])
	fl.Deadline = fg.Deadline
	return fl, nil
}
