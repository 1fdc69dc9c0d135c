package tsnlat

// errors.go holds the two error kinds the analysis can report, and
// the helpers that attach enough context to them to find the cause

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
)

// ErrConfiguration marks errors caused by invalid or infeasible static input:
// non-positive rates, reserved fractions over capacity, malformed paths,
// unknown formula identifiers.  These are detected before any delay is computed.
var ErrConfiguration = errors.New("configuration error")

// ErrComputation marks errors raised by a delay formula that finds an infeasible
// or non-finite intermediate value for an otherwise well-formed configuration.
var ErrComputation = errors.New("computation error")

// configErrorf creates an error marked as ErrConfiguration
func configErrorf(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrConfiguration)
}

// computeErrorf creates an error marked as ErrComputation
func computeErrorf(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrComputation)
}

// IsConfigurationError reports whether err (or anything it wraps) is a configuration error
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsComputationError reports whether err (or anything it wraps) is a computation error
func IsComputationError(err error) bool {
	return errors.Is(err, ErrComputation)
}

// HopError locates a computation failure on a flow's path.  It carries the flow,
// the index of the hop along the path, the queue analysed there, the formula in use,
// and the input values the formula saw.
type HopError struct {
	FlowID  string
	Hop     int
	Queue   QueueKey
	Formula string
	Inputs  map[string]float64
	Err     error
}

func (he *HopError) Error() string {
	inputs := make([]string, 0, len(he.Inputs))
	for name, value := range he.Inputs {
		inputs = append(inputs, fmt.Sprintf("%s=%g", name, value))
	}
	sort.Strings(inputs)

	return fmt.Sprintf("flow %s hop %d (%s) formula %s: %v [%s]",
		he.FlowID, he.Hop, he.Queue, he.Formula, he.Err, strings.Join(inputs, " "))
}

// Unwrap exposes the marked cause, so that errors.Is(err, ErrComputation) holds
func (he *HopError) Unwrap() error {
	return he.Err
}

// ReportErrs transforms a list of errors and transforms the non-nil ones into a single
// configuration error with a semi-colon separated report of all the constituent errors.
// A lone computation error is returned as it is.  nil is returned when the list holds no error.
func ReportErrs(errs []error) error {
	present := make([]error, 0)
	msgs := make([]string, 0)
	for _, err := range errs {
		if err != nil {
			present = append(present, err)
			msgs = append(msgs, err.Error())
		}
	}
	switch len(present) {
	case 0:
		return nil
	case 1:
		if IsComputationError(present[0]) {
			return present[0]
		}
		return errors.Mark(present[0], ErrConfiguration)
	}

	return configErrorf("%d problems: %s", len(msgs), strings.Join(msgs, "; "))
}

// finite is true when every value offered is neither NaN nor an infinity
func finite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
