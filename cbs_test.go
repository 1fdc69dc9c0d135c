package tsnlat

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveCBS(t *testing.T) {
	for _, tc := range []struct {
		fraction float64
		rate     float64
	}{
		{0.1, 1e9},
		{0.75, 100e6},
		{1, 10e9},
		{0.488, 100e6},
		{1e-6, 1e9},
	} {
		cbs, err := DeriveCBS(tc.fraction, tc.rate)
		require.NoError(t, err)
		assert.Equal(t, tc.fraction*tc.rate, cbs.IdleSlope)
		assert.Equal(t, cbs.IdleSlope-tc.rate, cbs.SendSlope)
		assert.Equal(t, tc.rate, cbs.PortRate)
		assert.LessOrEqual(t, cbs.SendSlope, 0.0)
	}
}

func TestDeriveCBSRejectsInvalidInput(t *testing.T) {
	for _, tc := range []struct {
		name     string
		fraction float64
		rate     float64
	}{
		{"zero fraction", 0, 1e9},
		{"negative fraction", -0.1, 1e9},
		{"fraction above one", 1.1, 1e9},
		{"zero rate", 0.5, 0},
		{"negative rate", 0.5, -1e9},
		{"NaN fraction", math.NaN(), 1e9},
		{"infinite rate", 0.5, math.Inf(1)},
	} {
		_, err := DeriveCBS(tc.fraction, tc.rate)
		require.Error(t, err, tc.name)
		assert.True(t, IsConfigurationError(err), tc.name)
		assert.False(t, IsComputationError(err), tc.name)
	}
}

func TestCredits(t *testing.T) {
	cbs, err := DeriveCBS(0.25, 100e6)
	require.NoError(t, err)

	hi, lo := cbs.Credits(12304, 6096)
	assert.InDelta(t, 25e6*12304/100e6, hi, 1e-9)
	assert.InDelta(t, -75e6*6096/100e6, lo, 1e-9)
	assert.InDelta(t, 0.25, cbs.Fraction(), 1e-15)
}

func TestFractionFor(t *testing.T) {
	fraction, err := FractionFor(48832000, 100e6)
	require.NoError(t, err)
	assert.InDelta(t, 0.48832, fraction, 1e-12)

	_, err = FractionFor(0, 100e6)
	assert.True(t, IsConfigurationError(err))
	_, err = FractionFor(1e6, 0)
	assert.True(t, IsConfigurationError(err))
}

func TestCheckPortReservations(t *testing.T) {
	ok := map[PortKey]float64{
		{Node: "S0", Port: "S1"}: 0.6 + 0.4,
		{Node: "S1", Port: "S2"}: 1.0 + ReservationTolerance/2,
		{Node: "S2", Port: "N2"}: 0.3,
	}
	assert.NoError(t, CheckPortReservations(ok))

	over := map[PortKey]float64{
		{Node: "S0", Port: "S1"}: 0.6,
		{Node: "S1", Port: "S2"}: 1.0 + 10*ReservationTolerance,
	}
	err := CheckPortReservations(over)
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))
	assert.Contains(t, err.Error(), "S1->S2")
	assert.NotContains(t, err.Error(), "S0->S1")
}
