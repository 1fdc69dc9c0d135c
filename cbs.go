package tsnlat

// cbs.go derives the Credit-Based Shaper settings of a queue from the share of
// the port's bandwidth reserved for it

import (
	"fmt"

	"golang.org/x/exp/slices"
)

// CBSParams are the shaper settings of one egress queue, all in bits per second
type CBSParams struct {
	PortRate  float64 `json:"portrate" yaml:"portrate"`
	IdleSlope float64 `json:"idleslope" yaml:"idleslope"`
	SendSlope float64 `json:"sendslope" yaml:"sendslope"`
}

// DeriveCBS computes the idle slope f*R and send slope IS-R of a queue holding
// the fraction f of a port transmitting at rate portRate
func DeriveCBS(fraction, portRate float64) (CBSParams, error) {
	if !finite(fraction, portRate) {
		return CBSParams{}, configErrorf("CBS inputs must be finite, got fraction %g rate %g", fraction, portRate)
	}
	if !(portRate > 0) {
		return CBSParams{}, configErrorf("port rate must be positive, got %g", portRate)
	}
	if !(fraction > 0) || fraction > 1 {
		return CBSParams{}, configErrorf("reserved fraction must be in (0,1], got %g", fraction)
	}

	idleSlope := fraction * portRate
	return CBSParams{PortRate: portRate, IdleSlope: idleSlope, SendSlope: idleSlope - portRate}, nil
}

// Fraction is the share of the port rate the idle slope represents
func (cbs CBSParams) Fraction() float64 {
	return cbs.IdleSlope / cbs.PortRate
}

// Credits returns the credit bounds of the queue.  hiBits is the size of the frame
// whose transmission the queue waits out while accumulating credit (a frame of
// other traffic), loBits the size of the largest frame of the queue's own class.
// Which frames these are is up to the delay formula.
func (cbs CBSParams) Credits(hiBits, loBits float64) (hi, lo float64) {
	hi = cbs.IdleSlope * hiBits / cbs.PortRate
	lo = cbs.SendSlope * loBits / cbs.PortRate
	return hi, lo
}

// FractionFor converts an explicit idle slope into the fraction of portRate it reserves
func FractionFor(idleSlope, portRate float64) (float64, error) {
	if !finite(idleSlope, portRate) {
		return 0, configErrorf("idle slope %g and port rate %g must be finite", idleSlope, portRate)
	}
	if !(portRate > 0) {
		return 0, configErrorf("port rate must be positive, got %g", portRate)
	}
	if !(idleSlope > 0) {
		return 0, configErrorf("idle slope must be positive, got %g", idleSlope)
	}
	return idleSlope / portRate, nil
}

// PortKey identifies the egress port of Node that transmits towards Port
type PortKey struct {
	Node string
	Port string
}

func (pk PortKey) String() string {
	return fmt.Sprintf("%s->%s", pk.Node, pk.Port)
}

// CheckPortReservations returns a configuration error naming every port whose
// reserved fractions, summed over its traffic classes, exceed 1 by more than ReservationTolerance
func CheckPortReservations(sums map[PortKey]float64) error {
	ports := make([]PortKey, 0, len(sums))
	for pk := range sums {
		ports = append(ports, pk)
	}
	slices.SortFunc(ports, comparePorts)

	errs := []error{}
	for _, pk := range ports {
		if sums[pk] > 1.0+ReservationTolerance {
			errs = append(errs, configErrorf("port %s oversubscribed: reserved fractions sum to %g", pk, sums[pk]))
		}
	}
	return ReportErrs(errs)
}

func comparePorts(a, b PortKey) int {
	switch {
	case a.Node < b.Node:
		return -1
	case a.Node > b.Node:
		return 1
	case a.Port < b.Port:
		return -1
	case a.Port > b.Port:
		return 1
	}
	return 0
}
