package tsnlat

// formula.go defines what a per-hop delay formula is given, what it returns,
// and the registry that makes formulas selectable by name

import (
	"math"

	"golang.org/x/exp/slices"
)

// HopMode tells the path composer whether a formula depends on what earlier hops did to the flow
type HopMode int

const (
	// HopIndependent formulas see every hop in isolation, so the end-to-end bound is the sum
	// of bounds computed hop by hop
	HopIndependent HopMode = iota

	// ArrivalDependent formulas read the flow's arrival as shaped by the earlier hops
	ArrivalDependent
)

func (mode HopMode) String() string {
	switch mode {
	case HopIndependent:
		return "hop-independent"
	case ArrivalDependent:
		return "arrival-dependent"
	}
	return "unknown"
}

// A Formula bounds the queuing delay a flow's frame may suffer in one egress queue.
// It returns only the time the frame waits before its own transmission starts; the
// composer adds transmission, propagation, and processing.
// Implementations are pure: they keep no state and change none of their arguments.
type Formula interface {
	ID() string
	Mode() HopMode
	Compute(q *Queue, fl *Flow, in Interference) (DelayResult, error)
}

// InputPort is the same-class traffic that enters the bridge through one ingress port
// and competes with the analysed flow at the egress queue
type InputPort struct {
	// upstream node, or the node itself for flows its own talker injects
	From string

	// rate the ingress can deliver the class at: the idle slope of the upstream
	// queue when there is one, otherwise the summed rate of the flows
	IdleSlope float64

	// largest frame among Flows, on the wire
	MaxFrameBits float64

	Flows []*Flow
}

// Arrival describes the analysed flow as it reaches a hop.  BurstBits starts as the
// flow's own burst on the wire and grows as the flow is delayed on its way.
type Arrival struct {
	BurstBits float64
	Rate      float64
}

// NewArrival is the arrival of fl at its first hop
func NewArrival(fl *Flow, ifg int) Arrival {
	return Arrival{BurstBits: fl.BurstBits(ifg), Rate: fl.Rate(ifg)}
}

// Advance returns the arrival at the next hop after the flow was queued for the given time.
// Everything the flow sent while held back may arrive back to back downstream.
func (arr Arrival) Advance(queuing float64) Arrival {
	arr.BurstBits += arr.Rate * queuing
	return arr
}

// Interference is the traffic that competes with the analysed flow at one hop
type Interference struct {
	// other flows in the same queue
	SameClass []*Flow

	// flows of higher and lower traffic classes leaving through the same port
	Higher []*Flow
	Lower  []*Flow

	// largest non-stream frame that may be on the wire, with IFG; zero if none
	CrossTrafficBits float64

	// SameClass, grouped by the port through which it enters the bridge
	Inputs []InputPort

	IFG int
	CMI float64

	Arrival Arrival
}

// Empty is true when nothing at all competes with the analysed flow
func (in Interference) Empty() bool {
	return len(in.SameClass) == 0 && len(in.Higher) == 0 && len(in.Lower) == 0 && in.CrossTrafficBits == 0
}

// BlockingBits is the largest frame of lower priority, stream or not, whose transmission
// may have just started when the analysed frame becomes eligible
func (in Interference) BlockingBits() float64 {
	blocking := in.CrossTrafficBits
	for _, fl := range in.Lower {
		blocking = math.Max(blocking, fl.WireBits(in.IFG))
	}
	return blocking
}

// HigherBits is the traffic of higher classes that may be sent ahead of the analysed frame
func (in Interference) HigherBits() float64 {
	return sumBurstBits(in.Higher, in.IFG)
}

// SameClassBits is the traffic of the other flows of the queue that may be ahead of the analysed frame
func (in Interference) SameClassBits() float64 {
	return sumBurstBits(in.SameClass, in.IFG)
}

// arrivalBits is the burst of the analysed flow reaching the hop, never less than its own burst
func (in Interference) arrivalBits(fl *Flow) float64 {
	return math.Max(in.Arrival.BurstBits, fl.BurstBits(in.IFG))
}

// ownAheadBits is the part of the flow's own burst sent ahead of its last frame
func (in Interference) ownAheadBits(fl *Flow) float64 {
	return float64(fl.Burst-1) * fl.WireBits(in.IFG)
}

// classMaxBits is the largest frame of the queue, the analysed flow included
func (in Interference) classMaxBits(fl *Flow) float64 {
	largest := fl.WireBits(in.IFG)
	for _, other := range in.SameClass {
		largest = math.Max(largest, other.WireBits(in.IFG))
	}
	return largest
}

func sumBurstBits(flows []*Flow, ifg int) float64 {
	var sum float64
	for _, fl := range flows {
		sum += fl.BurstBits(ifg)
	}
	return sum
}

func sumRates(flows []*Flow, ifg int) float64 {
	var sum float64
	for _, fl := range flows {
		sum += fl.Rate(ifg)
	}
	return sum
}

// DelayResult is the queuing delay bound of one hop with its breakdown, all in seconds.
// Delay is the sum of Blocking, Interference, Burst, and Credit.
type DelayResult struct {
	Delay float64 `json:"delay" yaml:"delay"`

	Blocking     float64 `json:"blocking" yaml:"blocking"`         // lower priority frame in transmission
	Interference float64 `json:"interference" yaml:"interference"` // other flows sent first
	Burst        float64 `json:"burst" yaml:"burst"`               // own earlier frames
	Credit       float64 `json:"credit" yaml:"credit"`             // waiting for credit to recover

	// share of Interference attributed to data left buffered by earlier fan-in
	Permanent float64 `json:"permanent,omitempty" yaml:"permanent,omitempty"`

	// credit bounds the formula used, bits
	HiCredit float64 `json:"hicredit" yaml:"hicredit"`
	LoCredit float64 `json:"locredit" yaml:"locredit"`
}

// FormulaRegistry holds the formulas selectable by identifier.  Each analysis is handed
// the registry it should use, so different runs may carry different sets.
type FormulaRegistry struct {
	formulas map[string]Formula
	order    []string
}

// CreateFormulaRegistry is a constructor for an empty registry
func CreateFormulaRegistry() *FormulaRegistry {
	fr := new(FormulaRegistry)
	fr.formulas = make(map[string]Formula)
	fr.order = make([]string, 0)
	return fr
}

// DefaultFormulas returns a registry holding every built-in formula
func DefaultFormulas() *FormulaRegistry {
	fr := CreateFormulaRegistry()
	for _, f := range builtinFormulas() {
		if err := fr.Register(f); err != nil {
			panic(err)
		}
	}
	return fr
}

// Register adds a formula.  Identifiers must be unique within the registry.
func (fr *FormulaRegistry) Register(f Formula) error {
	if f == nil || len(f.ID()) == 0 {
		return configErrorf("formula must have an identifier")
	}
	if _, present := fr.formulas[f.ID()]; present {
		return configErrorf("formula %s already registered", f.ID())
	}
	fr.formulas[f.ID()] = f
	fr.order = append(fr.order, f.ID())
	return nil
}

// Lookup returns the formula registered under id
func (fr *FormulaRegistry) Lookup(id string) (Formula, error) {
	f, present := fr.formulas[id]
	if !present {
		return nil, configErrorf("unknown formula %q, known are %v", id, fr.order)
	}
	return f, nil
}

// IDs lists the registered identifiers in registration order
func (fr *FormulaRegistry) IDs() []string {
	return slices.Clone(fr.order)
}
