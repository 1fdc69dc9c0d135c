package tsnlat

// queue.go gathers the flows into the egress queues they cross and holds the
// read-only snapshot of a network that every analysis works on

import (
	"fmt"

	"golang.org/x/exp/slices"
)

// QueueKey identifies one traffic class queue of the egress port of Node towards Port
type QueueKey struct {
	Node  string `json:"node" yaml:"node"`
	Port  string `json:"port" yaml:"port"`
	Class int    `json:"class" yaml:"class"`
}

func (qk QueueKey) String() string {
	return fmt.Sprintf("%s->%s/%d", qk.Node, qk.Port, qk.Class)
}

// PortKey is the key of the port the queue belongs to
func (qk QueueKey) PortKey() PortKey {
	return PortKey{Node: qk.Node, Port: qk.Port}
}

func compareQueueKeys(a, b QueueKey) int {
	if c := comparePorts(a.PortKey(), b.PortKey()); c != 0 {
		return c
	}
	return a.Class - b.Class
}

// Reservation is the bandwidth reserved for a queue, given either as a fraction
// of the port rate or as an idle slope in bits per second.  Exactly one of the two is set.
type Reservation struct {
	Fraction  float64 `json:"fraction,omitempty" yaml:"fraction,omitempty"`
	IdleSlope float64 `json:"idleslope,omitempty" yaml:"idleslope,omitempty"`
}

// fraction resolves the reservation against the rate of the port it applies to
func (res Reservation) fraction(portRate float64) (float64, error) {
	switch {
	case res.Fraction != 0 && res.IdleSlope != 0:
		return 0, configErrorf("reservation gives both fraction %g and idle slope %g", res.Fraction, res.IdleSlope)
	case res.IdleSlope != 0:
		return FractionFor(res.IdleSlope, portRate)
	case res.Fraction != 0:
		return res.Fraction, nil
	}
	return 0, configErrorf("reservation gives neither fraction nor idle slope")
}

// Queue is one traffic class queue of an egress port together with the flows of that
// class that leave through the port
type Queue struct {
	Key      QueueKey
	Link     *Link
	Fraction float64
	Flows    []*Flow // ordered by flow id

	cbs CBSParams
}

// CBS returns the shaper settings derived for the queue
func (q *Queue) CBS() CBSParams {
	return q.cbs
}

// Interfering returns the flows of the queue other than fl
func (q *Queue) Interfering(fl *Flow) []*Flow {
	rtn := make([]*Flow, 0, len(q.Flows))
	for _, other := range q.Flows {
		if other.ID != fl.ID {
			rtn = append(rtn, other)
		}
	}
	return rtn
}

// Carries reports whether fl is one of the flows of the queue
func (q *Queue) Carries(fl *Flow) bool {
	return slices.ContainsFunc(q.Flows, func(other *Flow) bool { return other.ID == fl.ID })
}

// Network is the read-only snapshot an analysis runs against: the topology,
// the flows, the queues they cross with their shaper settings, and the parameters
// of the run.  A Network is only built by NewNetwork and is never changed afterwards,
// so any number of analyses may share it.
type Network struct {
	Topo   *Topology
	Params Params

	flows     map[string]*Flow
	flowOrder []string

	queues     map[QueueKey]*Queue
	queueOrder []QueueKey

	// every flow leaving through a port, whatever its class
	portFlows map[PortKey][]*Flow

	// reserved fraction summed over the classes of each port
	portSums map[PortKey]float64
}

// NewNetwork checks the whole configuration and builds the analysis snapshot.  Every
// problem found is reported in one configuration error, and no snapshot is returned
// unless there are none.  Each queue crossed by a flow needs a reservation in res.
func NewNetwork(topo *Topology, flows []*Flow, res map[QueueKey]Reservation, params Params) (*Network, error) {
	if topo == nil {
		return nil, configErrorf("network needs a topology")
	}

	errs := []error{params.validate()}

	nw := new(Network)
	nw.Topo = topo
	nw.Params = params
	nw.flows = make(map[string]*Flow)
	nw.flowOrder = make([]string, 0, len(flows))
	nw.queues = make(map[QueueKey]*Queue)
	nw.queueOrder = make([]QueueKey, 0)
	nw.portFlows = make(map[PortKey][]*Flow)
	nw.portSums = make(map[PortKey]float64)

	// flows, and the queues along their paths
	for _, fl := range flows {
		if fl == nil {
			errs = append(errs, configErrorf("nil flow offered"))
			continue
		}
		if _, present := nw.flows[fl.ID]; present {
			errs = append(errs, configErrorf("flow %s declared twice", fl.ID))
			continue
		}
		if err := fl.validate(topo); err != nil {
			errs = append(errs, err)
			continue
		}
		nw.flows[fl.ID] = fl
		nw.flowOrder = append(nw.flowOrder, fl.ID)

		links, _ := topo.PathLinks(fl.Path)
		for _, link := range links {
			key := QueueKey{Node: link.Src, Port: link.Dst, Class: fl.Class}
			q, present := nw.queues[key]
			if !present {
				q = &Queue{Key: key, Link: link, Flows: make([]*Flow, 0)}
				nw.queues[key] = q
				nw.queueOrder = append(nw.queueOrder, key)
			}
			q.Flows = append(q.Flows, fl)
			nw.portFlows[key.PortKey()] = append(nw.portFlows[key.PortKey()], fl)
		}
	}
	slices.SortFunc(nw.queueOrder, compareQueueKeys)
	for _, q := range nw.queues {
		slices.SortFunc(q.Flows, compareFlows)
	}
	for pk := range nw.portFlows {
		slices.SortFunc(nw.portFlows[pk], compareFlows)
	}

	// reservations, visited in a fixed order so that reports are reproducible
	resKeys := make([]QueueKey, 0, len(res))
	for key := range res {
		resKeys = append(resKeys, key)
	}
	slices.SortFunc(resKeys, compareQueueKeys)

	for _, key := range resKeys {
		link, present := topo.Link(key.Node, key.Port)
		if !present {
			errs = append(errs, configErrorf("reservation for %s names no link", key))
			continue
		}
		if key.Class < 0 || key.Class > maxTrafficClass {
			errs = append(errs, configErrorf("reservation for %s: traffic class out of range", key))
			continue
		}
		fraction, err := res[key].fraction(link.Rate)
		if err != nil {
			errs = append(errs, configErrorf("reservation for %s: %v", key, err))
			continue
		}
		cbs, err := DeriveCBS(fraction, link.Rate)
		if err != nil {
			errs = append(errs, configErrorf("reservation for %s: %v", key, err))
			continue
		}
		nw.portSums[key.PortKey()] += fraction

		if q, present := nw.queues[key]; present {
			q.Fraction = fraction
			q.cbs = cbs
		}
	}
	errs = append(errs, CheckPortReservations(nw.portSums))

	// a queue the analysis will visit needs its shaper settings
	for _, key := range nw.queueOrder {
		if _, present := res[key]; !present {
			errs = append(errs, configErrorf("queue %s carries flows but has no reservation", key))
		}
	}

	if err := ReportErrs(errs); err != nil {
		return nil, err
	}
	return nw, nil
}

func compareFlows(a, b *Flow) int {
	switch {
	case a.ID < b.ID:
		return -1
	case a.ID > b.ID:
		return 1
	}
	return 0
}

// Flow returns the flow with the given id, if any
func (nw *Network) Flow(id string) (*Flow, bool) {
	fl, present := nw.flows[id]
	return fl, present
}

// Flows returns the flows in the order they were offered to NewNetwork
func (nw *Network) Flows() []*Flow {
	rtn := make([]*Flow, 0, len(nw.flowOrder))
	for _, id := range nw.flowOrder {
		rtn = append(rtn, nw.flows[id])
	}
	return rtn
}

// FlowIDs returns the flow identifiers in the order the flows were offered to NewNetwork
func (nw *Network) FlowIDs() []string {
	return slices.Clone(nw.flowOrder)
}

// Queue returns the queue with the given key, if a flow crosses it
func (nw *Network) Queue(key QueueKey) (*Queue, bool) {
	q, present := nw.queues[key]
	return q, present
}

// Queues returns every queue crossed by a flow, ordered by node, port, and class
func (nw *Network) Queues() []*Queue {
	rtn := make([]*Queue, 0, len(nw.queueOrder))
	for _, key := range nw.queueOrder {
		rtn = append(rtn, nw.queues[key])
	}
	return rtn
}

// PortReservation returns the fraction of the port reserved over all its classes
func (nw *Network) PortReservation(pk PortKey) float64 {
	return nw.portSums[pk]
}

// ReserveFromFlows computes the idle slope every queue needs to carry its flows: for each
// flow crossing the queue, its burst on the wire once per class measurement interval
// (or per flow interval when params.FlowIntervalAsCMI is set).  The result can be handed
// to NewNetwork.  A configuration error is returned when some port would be oversubscribed.
func ReserveFromFlows(topo *Topology, flows []*Flow, params Params) (map[QueueKey]Reservation, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}

	slopes := make(map[QueueKey]float64)
	rates := make(map[QueueKey]float64)
	errs := []error{}
	for _, fl := range flows {
		if err := fl.validate(topo); err != nil {
			errs = append(errs, err)
			continue
		}
		links, _ := topo.PathLinks(fl.Path)
		for _, link := range links {
			key := QueueKey{Node: link.Src, Port: link.Dst, Class: fl.Class}
			slopes[key] += fl.BurstBits(params.IFG) / params.cmiFor(fl)
			rates[key] = link.Rate
		}
	}

	res := make(map[QueueKey]Reservation)
	sums := make(map[PortKey]float64)
	keys := make([]QueueKey, 0, len(slopes))
	for key := range slopes {
		keys = append(keys, key)
	}
	slices.SortFunc(keys, compareQueueKeys)
	for _, key := range keys {
		res[key] = Reservation{IdleSlope: slopes[key]}
		sums[key.PortKey()] += slopes[key] / rates[key]
	}
	errs = append(errs, CheckPortReservations(sums))

	if err := ReportErrs(errs); err != nil {
		return nil, err
	}
	return res, nil
}
