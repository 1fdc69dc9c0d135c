package tsnlat

// formulas.go holds the built-in per-hop delay formulas.  Each is a stateless
// value; which one applies is chosen by whoever runs the analysis.

import (
	"math"

	"golang.org/x/exp/slices"
)

// identifiers of the built-in formulas
const (
	Q2022ID         = "q2022"
	L3FanInID       = "l3-fanin"
	L3FanInDescID   = "l3-fanin-desc"
	BA2021ID        = "ba2021"
	NCTokenBucketID = "nc-tokenbucket"
)

func builtinFormulas() []Formula {
	return []Formula{
		Q2022{},
		L3FanIn{Descending: false},
		L3FanIn{Descending: true},
		BA2021{},
		NCTokenBucket{},
	}
}

// checkStability rejects a hop whose queue cannot drain what is offered to it.  The
// class, the analysed flow included, must not send faster than the idle slope, and the
// higher classes must leave some of the port rate over.
func checkStability(q *Queue, fl *Flow, in Interference) error {
	cbs := q.CBS()
	if !(cbs.IdleSlope > 0) || !(cbs.PortRate > 0) {
		return computeErrorf("queue %s has no idle slope", q.Key)
	}

	classLoad := fl.Rate(in.IFG) + sumRates(in.SameClass, in.IFG)
	if classLoad > cbs.IdleSlope*(1.0+ReservationTolerance) {
		return computeErrorf("class load %g bit/s exceeds idle slope %g bit/s of queue %s",
			classLoad, cbs.IdleSlope, q.Key)
	}

	higherLoad := sumRates(in.Higher, in.IFG)
	if higherLoad >= cbs.PortRate {
		return computeErrorf("higher priority load %g bit/s leaves no capacity on port rate %g bit/s",
			higherLoad, cbs.PortRate)
	}
	return nil
}

// creditWait is the time the queue may spend recovering credit after aheadBits of its
// class were sent at the port rate, less the credit hiCredit already gained while blocked
func creditWait(cbs CBSParams, aheadBits, hiCredit float64) float64 {
	spent := aheadBits * (cbs.PortRate - cbs.IdleSlope) / cbs.PortRate
	return math.Max(0, (spent-hiCredit)/cbs.IdleSlope)
}

// finish totals the breakdown into Delay and rejects anything negative or not finite
func finish(res DelayResult) (DelayResult, error) {
	res.Delay = res.Blocking + res.Interference + res.Burst + res.Credit
	parts := []float64{res.Delay, res.Blocking, res.Interference, res.Burst, res.Credit, res.Permanent}
	if !finite(parts...) || !finite(res.HiCredit, res.LoCredit) {
		return DelayResult{}, computeErrorf("non-finite delay term in %+v", res)
	}
	for _, part := range parts {
		if part < 0 {
			return DelayResult{}, computeErrorf("negative delay term in %+v", res)
		}
	}
	return res, nil
}

// Q2022 is the credit-based queuing bound of IEEE 802.1Q-2022.  The analysed frame
// waits out one lower priority frame, all higher priority traffic, and the data of its
// own class ahead of it, each at the port rate.  After the class data is sent the
// queue may further have to recover the credit it spent beyond what it gained
// while it was blocked.
type Q2022 struct{}

// ID returns the registry identifier
func (Q2022) ID() string { return Q2022ID }

// Mode is HopIndependent
func (Q2022) Mode() HopMode { return HopIndependent }

// Compute returns the queuing delay bound of fl in q
func (Q2022) Compute(q *Queue, fl *Flow, in Interference) (DelayResult, error) {
	if err := checkStability(q, fl, in); err != nil {
		return DelayResult{}, err
	}
	cbs := q.CBS()

	blocking := in.BlockingBits()
	higher := in.HigherBits()
	same := in.SameClassBits()
	ownAhead := in.ownAheadBits(fl)
	hi, lo := cbs.Credits(blocking+higher, in.classMaxBits(fl))

	return finish(DelayResult{
		Blocking:     blocking / cbs.PortRate,
		Interference: (higher + same) / cbs.PortRate,
		Burst:        ownAhead / cbs.PortRate,
		Credit:       creditWait(cbs, same+ownAhead, hi),
		HiCredit:     hi,
		LoCredit:     lo,
	})
}

// L3FanIn is the queuing bound of IEEE 802.1Q-2022 Annex L.3.  Same-class data
// arriving together through several ingress ports piles up at the egress queue
// (fan-in); the same amount may remain buffered from earlier starvation (permanent
// buffer delay).  Ingress ports are taken in ascending order of the rate they
// deliver the class at, or descending when Descending is set.
type L3FanIn struct {
	Descending bool
}

// ID returns the registry identifier
func (f L3FanIn) ID() string {
	if f.Descending {
		return L3FanInDescID
	}
	return L3FanInID
}

// Mode is HopIndependent
func (L3FanIn) Mode() HopMode { return HopIndependent }

// Compute returns the queuing delay bound of fl in q
func (f L3FanIn) Compute(q *Queue, fl *Flow, in Interference) (DelayResult, error) {
	if err := checkStability(q, fl, in); err != nil {
		return DelayResult{}, err
	}
	cbs := q.CBS()
	rate := cbs.PortRate

	inputs := slices.Clone(in.Inputs)
	slices.SortStableFunc(inputs, func(a, b InputPort) int {
		if f.Descending {
			a, b = b, a
		}
		switch {
		case a.IdleSlope < b.IdleSlope:
			return -1
		case a.IdleSlope > b.IdleSlope:
			return 1
		}
		return 0
	})

	blocking := in.BlockingBits()
	higher := in.HigherBits()

	// rate the ingress ports together deliver the class at
	var b0 float64
	for _, input := range inputs {
		b0 += input.IdleSlope
	}

	var fanIn float64
	for _, input := range inputs {
		if b0 > 0 {
			w := rate - math.Max(b0, input.IdleSlope)
			if !(w > 0) {
				return DelayResult{}, computeErrorf("ingress from %s at %g bit/s leaves no service on port rate %g bit/s",
					input.From, math.Max(b0, input.IdleSlope), rate)
			}
			fanIn += blocking*input.IdleSlope/w + input.MaxFrameBits*rate/w
			b0 -= input.IdleSlope
		} else {
			fanIn += input.MaxFrameBits
		}
	}
	fanInDelay := fanIn / rate

	ownAhead := in.ownAheadBits(fl)
	hi, lo := cbs.Credits(blocking+higher, in.classMaxBits(fl))

	return finish(DelayResult{
		Blocking:     blocking / rate,
		Interference: higher/rate + 2*fanInDelay,
		Permanent:    fanInDelay,
		Burst:        ownAhead / rate,
		Credit:       creditWait(cbs, fanIn+ownAhead, hi),
		HiCredit:     hi,
		LoCredit:     lo,
	})
}

// BA2021 is the bound of IEEE 802.1BA-2021, Equation 6-1: one maximum size frame
// (tMaxPacket) plus the class traffic that can be reserved within one class
// measurement interval, drained at the idle slope (tClass).  When flows send less often
// than once per interval each still counts once.
type BA2021 struct{}

// ID returns the registry identifier
func (BA2021) ID() string { return BA2021ID }

// Mode is HopIndependent
func (BA2021) Mode() HopMode { return HopIndependent }

// Compute returns the queuing delay bound of fl in q
func (BA2021) Compute(q *Queue, fl *Flow, in Interference) (DelayResult, error) {
	if err := checkStability(q, fl, in); err != nil {
		return DelayResult{}, err
	}
	if !(in.CMI > 0) {
		return DelayResult{}, computeErrorf("class measurement interval must be positive, got %g", in.CMI)
	}
	cbs := q.CBS()

	blocking := in.BlockingBits()
	higher := in.HigherBits()

	// class data reserved within one measurement interval
	var classBits float64
	for _, other := range in.SameClass {
		classBits += math.Ceil(in.CMI/other.Interval) * other.BurstBits(in.IFG)
	}
	ownAhead := in.ownAheadBits(fl)
	hi, lo := cbs.Credits(blocking, in.classMaxBits(fl))

	return finish(DelayResult{
		Blocking:     blocking / cbs.PortRate,
		Interference: higher/cbs.PortRate + classBits/cbs.IdleSlope,
		Burst:        ownAhead / cbs.IdleSlope,
		HiCredit:     hi,
		LoCredit:     lo,
	})
}

// NCTokenBucket is a network calculus bound.  The queue offers a rate-latency service
// with rate equal to the idle slope and latency equal to the time needed for the blocking
// frame and the higher priority traffic.  Every flow is a token bucket whose bucket
// is its burst.  The analysed flow's bucket is the arrival handed over by the previous
// hop, so its burst grows with every hop it crosses.
type NCTokenBucket struct{}

// ID returns the registry identifier
func (NCTokenBucket) ID() string { return NCTokenBucketID }

// Mode is ArrivalDependent
func (NCTokenBucket) Mode() HopMode { return ArrivalDependent }

// Compute returns the queuing delay bound of fl in q, given its arrival in in.Arrival
func (NCTokenBucket) Compute(q *Queue, fl *Flow, in Interference) (DelayResult, error) {
	if err := checkStability(q, fl, in); err != nil {
		return DelayResult{}, err
	}
	cbs := q.CBS()

	blocking := in.BlockingBits()
	higher := in.HigherBits()

	// own burst, less the frame whose delay is being bounded
	ownAhead := in.arrivalBits(fl) - fl.WireBits(in.IFG)
	hi, lo := cbs.Credits(blocking+higher, in.classMaxBits(fl))

	return finish(DelayResult{
		Blocking:     blocking / cbs.PortRate,
		Interference: higher/cbs.PortRate + in.SameClassBits()/cbs.IdleSlope,
		Burst:        ownAhead / cbs.IdleSlope,
		HiCredit:     hi,
		LoCredit:     lo,
	})
}
