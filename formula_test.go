package tsnlat

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultFormulas(t *testing.T) {
	fr := DefaultFormulas()
	assert.Equal(t, []string{Q2022ID, L3FanInID, L3FanInDescID, BA2021ID, NCTokenBucketID}, fr.IDs())

	for _, id := range fr.IDs() {
		f, err := fr.Lookup(id)
		require.NoError(t, err)
		assert.Equal(t, id, f.ID())
	}

	nc, _ := fr.Lookup(NCTokenBucketID)
	assert.Equal(t, ArrivalDependent, nc.Mode())
	q, _ := fr.Lookup(Q2022ID)
	assert.Equal(t, HopIndependent, q.Mode())

	_, err := fr.Lookup("plenary100Mbit")
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))

	assert.Error(t, fr.Register(Q2022{}))
	assert.Error(t, fr.Register(nil))
}

// fixedDelay is a formula that always returns the same queuing delay
type fixedDelay struct {
	delay float64
}

func (fd fixedDelay) ID() string    { return "fixed" }
func (fd fixedDelay) Mode() HopMode { return HopIndependent }
func (fd fixedDelay) Compute(q *Queue, fl *Flow, in Interference) (DelayResult, error) {
	return DelayResult{Delay: fd.delay, Credit: fd.delay}, nil
}

func TestRegisterCustomFormula(t *testing.T) {
	fr := DefaultFormulas()
	require.NoError(t, fr.Register(fixedDelay{delay: 1e-3}))
	assert.Contains(t, fr.IDs(), "fixed")

	// the default registry is not affected
	_, err := DefaultFormulas().Lookup("fixed")
	assert.Error(t, err)
}

func TestEmptyInterferenceHasNoQueuing(t *testing.T) {
	topo := lineTopology(t, 1e9, 5e-6, "A", "S", "B")
	fl := CreateFlow("f", "A", "B", []string{"A", "S", "B"}, 1500, 1e-3, 1, 6)
	nw, err := NewNetwork(topo, []*Flow{fl}, uniformReservations(t, topo, 0.1, fl), DefaultParams())
	require.NoError(t, err)

	fr := DefaultFormulas()
	for _, id := range fr.IDs() {
		f, _ := fr.Lookup(id)
		lr, err := nw.ComputeLatency("f", f)
		require.NoError(t, err, id)
		require.Len(t, lr.Hops, 2)
		for _, hr := range lr.Hops {
			assert.Zero(t, hr.Delay, id)
			assert.Zero(t, hr.Credit, id)
			assert.InDelta(t, 1500*8/1e9+5e-6, hr.Total, 1e-15, id)
		}
	}
}

func TestBurstTerm(t *testing.T) {
	topo := lineTopology(t, 100e6, 0, "A", "S", "B")
	single := CreateFlow("single", "A", "B", []string{"A", "S", "B"}, 500, 1e-3, 1, 6)
	burst := CreateFlow("burst", "A", "B", []string{"A", "S", "B"}, 500, 1e-3, 3, 6)

	fr := DefaultFormulas()
	for _, id := range fr.IDs() {
		f, _ := fr.Lookup(id)

		nw, err := NewNetwork(topo, []*Flow{single}, uniformReservations(t, topo, 0.5, single), DefaultParams())
		require.NoError(t, err)
		lrSingle, err := nw.ComputeLatency("single", f)
		require.NoError(t, err)

		nw, err = NewNetwork(topo, []*Flow{burst}, uniformReservations(t, topo, 0.5, burst), DefaultParams())
		require.NoError(t, err)
		lrBurst, err := nw.ComputeLatency("burst", f)
		require.NoError(t, err)

		assert.Greater(t, lrBurst.Hops[0].Burst, 0.0, id)
		assert.Greater(t, lrBurst.Total, lrSingle.Total, id)
	}
}

func TestQ2022Breakdown(t *testing.T) {
	nw := fanInNetwork(t, 0.5)
	fl, _ := nw.Flow("own")
	hops, err := nw.Hops(fl)
	require.NoError(t, err)
	hop := hops[1]

	in := nw.Interference(fl, hop, NewArrival(fl, nw.Params.IFG))
	require.Len(t, in.SameClass, 1)
	require.Len(t, in.Higher, 1)
	require.Len(t, in.Lower, 1)
	require.Len(t, in.Inputs, 1)
	assert.Equal(t, "T2", in.Inputs[0].From)
	assert.InDelta(t, 20e6, in.Inputs[0].IdleSlope, 1e-6)

	// the best effort frame is the larger blocker
	assert.Equal(t, float64(1526*8+96), in.BlockingBits())
	assert.Equal(t, float64(1500*8+96), in.HigherBits())
	assert.Equal(t, float64(1000*8+96), in.SameClassBits())

	dr, err := Q2022{}.Compute(hop.Queue, fl, in)
	require.NoError(t, err)

	rate := 100e6
	assert.InDelta(t, in.BlockingBits()/rate, dr.Blocking, 1e-15)
	assert.InDelta(t, (in.HigherBits()+in.SameClassBits())/rate, dr.Interference, 1e-15)
	assert.InDelta(t, float64(500*8+96)/rate, dr.Burst, 1e-15)
	assert.InDelta(t, dr.Blocking+dr.Interference+dr.Burst+dr.Credit, dr.Delay, 1e-15)
	assert.InDelta(t, 50e6*(in.BlockingBits()+in.HigherBits())/rate, dr.HiCredit, 1e-6)
	assert.Less(t, dr.LoCredit, 0.0)
}

func TestMonotonicInFraction(t *testing.T) {
	fractions := []float64{0.2, 0.3, 0.4, 0.5, 0.6, 0.7}

	fr := DefaultFormulas()
	for _, id := range fr.IDs() {
		f, _ := fr.Lookup(id)

		previous := -1.0
		for _, fraction := range fractions {
			nw := fanInNetwork(t, fraction)
			lr, err := nw.ComputeLatency("own", f)
			require.NoError(t, err, "%s at %g", id, fraction)

			delay := lr.Hops[1].Delay
			assert.Greater(t, delay, 0.0, id)
			if previous >= 0 {
				assert.LessOrEqual(t, delay, previous, "%s at %g", id, fraction)
			}
			previous = delay
		}
	}
}

func TestOverloadedQueueIsComputationError(t *testing.T) {
	topo := lineTopology(t, 1e9, 0, "A", "S", "B")
	// 12.096 Mbit/s offered to a queue with an idle slope of 10 Mbit/s
	fl := CreateFlow("heavy", "A", "B", []string{"A", "S", "B"}, 1500, 1e-3, 1, 6)
	nw, err := NewNetwork(topo, []*Flow{fl}, uniformReservations(t, topo, 0.01, fl), DefaultParams())
	require.NoError(t, err)

	fr := DefaultFormulas()
	for _, id := range fr.IDs() {
		f, _ := fr.Lookup(id)
		lr, err := nw.ComputeLatency("heavy", f)
		require.Error(t, err, id)
		assert.Nil(t, lr)
		assert.True(t, IsComputationError(err), id)
		assert.True(t, errors.Is(err, ErrComputation), id)
		assert.False(t, IsConfigurationError(err), id)

		var hopErr *HopError
		require.True(t, errors.As(err, &hopErr), id)
		assert.Equal(t, "heavy", hopErr.FlowID)
		assert.Equal(t, 0, hopErr.Hop)
		assert.Equal(t, QueueKey{Node: "A", Port: "S", Class: 6}, hopErr.Queue)
		assert.Equal(t, id, hopErr.Formula)
		assert.InDelta(t, 1e7, hopErr.Inputs["idleSlope"], 1e-6)
		assert.Contains(t, err.Error(), "heavy")
	}
}

func TestFanInWithoutServiceIsComputationError(t *testing.T) {
	const rate = 100e6
	topo := CreateTopology("saturated")
	for _, name := range []string{"T1", "T2", "D"} {
		require.NoError(t, topo.AddEndStation(name))
	}
	require.NoError(t, topo.AddBridge("S"))
	require.NoError(t, topo.AddBidirectionalLink("T1", "S", rate, 0))
	require.NoError(t, topo.AddBidirectionalLink("T2", "S", rate, 0))
	require.NoError(t, topo.AddBidirectionalLink("S", "D", rate, 0))

	own := CreateFlow("own", "T1", "D", []string{"T1", "S", "D"}, 500, 1e-3, 1, 6)
	other := CreateFlow("other", "T2", "D", []string{"T2", "S", "D"}, 500, 1e-3, 1, 6)
	third := CreateFlow("third", "T1", "D", []string{"T1", "S", "D"}, 500, 1e-3, 1, 6)

	// the ingress ports together may deliver 120 Mbit/s of the class
	res := map[QueueKey]Reservation{
		{Node: "T1", Port: "S", Class: 6}: {Fraction: 0.6},
		{Node: "T2", Port: "S", Class: 6}: {Fraction: 0.6},
		{Node: "S", Port: "D", Class: 6}:  {Fraction: 0.5},
	}
	nw, err := NewNetwork(topo, []*Flow{own, other, third}, res, DefaultParams())
	require.NoError(t, err)

	for _, f := range []Formula{L3FanIn{}, L3FanIn{Descending: true}} {
		_, err := nw.ComputeLatency("own", f)
		require.Error(t, err, f.ID())
		assert.True(t, IsComputationError(err), f.ID())
		var hopErr *HopError
		require.True(t, errors.As(err, &hopErr))
		assert.Equal(t, 1, hopErr.Hop)
	}

	// the other formulas do not look at the ingress rates
	_, err = nw.ComputeLatency("own", Q2022{})
	assert.NoError(t, err)
}

func TestFanInOrder(t *testing.T) {
	cbs, err := DeriveCBS(0.5, 100e6)
	require.NoError(t, err)
	q := &Queue{Key: QueueKey{Node: "S", Port: "D", Class: 6}, cbs: cbs}
	fl := CreateFlow("own", "T1", "D", []string{"T1", "S", "D"}, 500, 1e-3, 1, 6)
	a := CreateFlow("a", "T2", "D", []string{"T2", "S", "D"}, 1500, 1e-2, 1, 6)
	b := CreateFlow("b", "T3", "D", []string{"T3", "S", "D"}, 100, 1e-2, 1, 6)

	in := Interference{
		SameClass: []*Flow{a, b},
		IFG:       DefaultIFG,
		CMI:       DefaultCMI,
		Inputs: []InputPort{
			{From: "T2", IdleSlope: 40e6, MaxFrameBits: a.WireBits(DefaultIFG), Flows: []*Flow{a}},
			{From: "T3", IdleSlope: 10e6, MaxFrameBits: b.WireBits(DefaultIFG), Flows: []*Flow{b}},
		},
		CrossTrafficBits: float64(1526*8 + 96),
	}

	asc, err := L3FanIn{}.Compute(q, fl, in)
	require.NoError(t, err)
	desc, err := L3FanIn{Descending: true}.Compute(q, fl, in)
	require.NoError(t, err)

	assert.Greater(t, asc.Permanent, 0.0)
	assert.Greater(t, desc.Permanent, 0.0)
	assert.NotEqual(t, asc.Permanent, desc.Permanent)
	assert.InDelta(t, 2*asc.Permanent, asc.Interference, 1e-15)
}

func TestArrivalAdvance(t *testing.T) {
	fl := CreateFlow("f", "A", "B", []string{"A", "B"}, 500, 1e-3, 2, 6)
	arr := NewArrival(fl, DefaultIFG)
	assert.Equal(t, fl.BurstBits(DefaultIFG), arr.BurstBits)
	assert.Equal(t, fl.Rate(DefaultIFG), arr.Rate)

	next := arr.Advance(1e-4)
	assert.InDelta(t, arr.BurstBits+arr.Rate*1e-4, next.BurstBits, 1e-9)
	assert.Equal(t, arr.BurstBits, fl.BurstBits(DefaultIFG), "Advance returns a new value")
}

func TestNCTokenBucketBurstGrowsAlongPath(t *testing.T) {
	topo := lineTopology(t, 100e6, 0, "A", "S0", "S1", "B")
	fl := CreateFlow("f", "A", "B", []string{"A", "S0", "S1", "B"}, 500, 1e-3, 1, 6)
	nw, err := NewNetwork(topo, []*Flow{fl}, uniformReservations(t, topo, 0.5, fl), crossParams())
	require.NoError(t, err)

	lr, err := nw.ComputeLatency("f", NCTokenBucket{})
	require.NoError(t, err)

	// blocked at the first hop, the flow reaches later hops with a larger burst
	assert.Zero(t, lr.Hops[0].Burst)
	assert.Greater(t, lr.Hops[1].Burst, 0.0)
	assert.Greater(t, lr.Hops[2].Burst, lr.Hops[1].Burst)
}
