package tsnlat

// compose.go walks a flow's path hop by hop and adds up the per-hop bounds
// into the end-to-end bound

import (
	"golang.org/x/exp/slices"
)

// Hop is one egress queue on a flow's path, with the link it transmits on
type Hop struct {
	Index int
	Link  *Link
	Queue *Queue
}

// HopResult is the bound computed for one hop.  Delay (from DelayResult) is the
// queuing delay; Total adds the frame's own transmission, the propagation over the
// link, and the processing delay of a bridge.
type HopResult struct {
	DelayResult `yaml:",inline"`

	Index        int      `json:"index" yaml:"index"`
	Queue        QueueKey `json:"queue" yaml:"queue"`
	Transmission float64  `json:"transmission" yaml:"transmission"`
	Propagation  float64  `json:"propagation" yaml:"propagation"`
	Processing   float64  `json:"processing" yaml:"processing"`
	Total        float64  `json:"total" yaml:"total"`

	// true when the queue was not analysed (egress of an end station with SkipEndStationQueues)
	Skipped bool `json:"skipped,omitempty" yaml:"skipped,omitempty"`
}

// LatencyResult is the end-to-end bound of a flow under one formula.  It is an
// estimate produced by the formula, not a proven worst case.
type LatencyResult struct {
	FlowID   string      `json:"flowid" yaml:"flowid"`
	Formula  string      `json:"formula" yaml:"formula"`
	Total    float64     `json:"total" yaml:"total"`
	Deadline float64     `json:"deadline,omitempty" yaml:"deadline,omitempty"`
	Hops     []HopResult `json:"hops" yaml:"hops"`
}

// MeetsDeadline is true when the flow declares no deadline or the bound is within it
func (lr *LatencyResult) MeetsDeadline() bool {
	return lr.Deadline == 0 || lr.Total <= lr.Deadline
}

// Hops returns the queues fl crosses, in path order
func (nw *Network) Hops(fl *Flow) ([]Hop, error) {
	links, err := nw.Topo.PathLinks(fl.Path)
	if err != nil {
		return nil, err
	}
	hops := make([]Hop, 0, len(links))
	for idx, link := range links {
		key := QueueKey{Node: link.Src, Port: link.Dst, Class: fl.Class}
		q, present := nw.queues[key]
		if !present || !q.Carries(fl) {
			return nil, configErrorf("flow %s is not part of queue %s", fl.ID, key)
		}
		hops = append(hops, Hop{Index: idx, Link: link, Queue: q})
	}
	return hops, nil
}

// Interference gathers the traffic competing with fl at hop.  arrival is the flow as it
// reaches the hop; formulas that are hop independent ignore it.
func (nw *Network) Interference(fl *Flow, hop Hop, arrival Arrival) Interference {
	in := Interference{
		IFG:              nw.Params.IFG,
		CMI:              nw.Params.cmiFor(fl),
		CrossTrafficBits: nw.Params.crossTrafficBits(),
		Arrival:          arrival,
		SameClass:        hop.Queue.Interfering(fl),
		Higher:           []*Flow{},
		Lower:            []*Flow{},
	}

	for _, other := range nw.portFlows[hop.Queue.Key.PortKey()] {
		switch {
		case other.Class > fl.Class:
			in.Higher = append(in.Higher, other)
		case other.Class < fl.Class:
			in.Lower = append(in.Lower, other)
		}
	}
	in.Inputs = nw.inputPorts(hop, in.SameClass)

	return in
}

// inputPorts groups the flows by the node they come from into the bridge owning hop's queue
func (nw *Network) inputPorts(hop Hop, flows []*Flow) []InputPort {
	bridge := hop.Link.Src
	byFrom := make(map[string]*InputPort)
	order := []string{}

	for _, fl := range flows {
		from := bridge
		pos := slices.Index(fl.Path, bridge)
		if pos > 0 {
			from = fl.Path[pos-1]
		}

		input, present := byFrom[from]
		if !present {
			input = &InputPort{From: from, Flows: []*Flow{}}
			byFrom[from] = input
			order = append(order, from)
		}
		input.Flows = append(input.Flows, fl)
		if wire := fl.WireBits(nw.Params.IFG); wire > input.MaxFrameBits {
			input.MaxFrameBits = wire
		}
	}
	slices.Sort(order)

	rtn := make([]InputPort, 0, len(order))
	for _, from := range order {
		input := byFrom[from]

		// the upstream queue's idle slope caps what the ingress delivers
		upstream := QueueKey{Node: from, Port: bridge, Class: hop.Queue.Key.Class}
		if q, present := nw.queues[upstream]; present && from != bridge {
			input.IdleSlope = q.CBS().IdleSlope
		} else {
			input.IdleSlope = sumRates(input.Flows, nw.Params.IFG)
		}
		rtn = append(rtn, *input)
	}
	return rtn
}

// formulaInputs are the values reported with a failure at a hop
func formulaInputs(q *Queue, fl *Flow, in Interference) map[string]float64 {
	cbs := q.CBS()
	return map[string]float64{
		"portRate":      cbs.PortRate,
		"idleSlope":     cbs.IdleSlope,
		"sendSlope":     cbs.SendSlope,
		"frameBits":     fl.FrameBits(),
		"burst":         float64(fl.Burst),
		"interval":      fl.Interval,
		"sameClassBits": in.SameClassBits(),
		"higherBits":    in.HigherBits(),
		"blockingBits":  in.BlockingBits(),
		"arrivalBits":   in.Arrival.BurstBits,
		"inputPorts":    float64(len(in.Inputs)),
	}
}

// ComputeHop bounds the delay of fl at one hop.  A failing formula is reported as a
// *HopError that locates the failure.
func (nw *Network) ComputeHop(fl *Flow, hop Hop, f Formula, arrival Arrival) (HopResult, error) {
	link := hop.Link
	hr := HopResult{
		Index:        hop.Index,
		Queue:        hop.Queue.Key,
		Transmission: fl.FrameBits() / link.Rate,
		Propagation:  link.Delay,
	}
	if node, _ := nw.Topo.Node(link.Src); node.Role == Bridge {
		hr.Processing = nw.Params.SwitchDelay
	}

	// the talker's own queue is only crossed, not analysed, when so configured
	var inputs map[string]float64
	if nw.Params.SkipEndStationQueues && hop.Index == 0 && fl.Src == link.Src {
		hr.Skipped = true
	} else {
		in := nw.Interference(fl, hop, arrival)
		inputs = formulaInputs(hop.Queue, fl, in)
		dr, err := f.Compute(hop.Queue, fl, in)
		if err != nil {
			return HopResult{}, &HopError{
				FlowID:  fl.ID,
				Hop:     hop.Index,
				Queue:   hop.Queue.Key,
				Formula: f.ID(),
				Inputs:  inputs,
				Err:     err,
			}
		}
		hr.DelayResult = dr
	}

	hr.Total = hr.Delay + hr.Transmission + hr.Propagation + hr.Processing
	if !finite(hr.Total) {
		return HopResult{}, &HopError{FlowID: fl.ID, Hop: hop.Index, Queue: hop.Queue.Key, Formula: f.ID(),
			Inputs: inputs, Err: computeErrorf("non-finite hop total %g", hr.Total)}
	}
	return hr, nil
}

// ComputeLatency bounds the end-to-end latency of the flow with the given id under formula f.
// Hops are visited in path order, and the flow's arrival is carried from one hop to the
// next.  The first hop that fails ends the computation; its error is returned
// and no partial result.
func (nw *Network) ComputeLatency(flowID string, f Formula) (*LatencyResult, error) {
	if f == nil {
		return nil, configErrorf("no formula given for flow %s", flowID)
	}
	fl, present := nw.flows[flowID]
	if !present {
		return nil, configErrorf("unknown flow %q", flowID)
	}
	hops, err := nw.Hops(fl)
	if err != nil {
		return nil, err
	}

	lr := &LatencyResult{FlowID: fl.ID, Formula: f.ID(), Deadline: fl.Deadline,
		Hops: make([]HopResult, 0, len(hops))}
	arrival := NewArrival(fl, nw.Params.IFG)
	for _, hop := range hops {
		hr, err := nw.ComputeHop(fl, hop, f, arrival)
		if err != nil {
			return nil, err
		}
		lr.Hops = append(lr.Hops, hr)
		lr.Total += hr.Total
		arrival = arrival.Advance(hr.Delay)
	}

	return lr, nil
}
