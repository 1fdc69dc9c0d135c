package tsnlat

// flow.go holds the description of a stream: who sends, who listens, which
// way the frames go, and how much traffic the talker may inject

import (
	"fmt"
)

// A Flow is a stream of frames sent periodically from Src to Dst along Path.
// At most Burst frames of at most FrameSize bytes are sent per Interval.
type Flow struct {
	ID  string
	Src string
	Dst string

	// node names from Src to Dst, both included
	Path []string

	FrameSize int     // largest frame, bytes
	Interval  float64 // minimum time between bursts, seconds
	Burst     int     // frames per interval
	Class     int     // traffic class, 0..7, larger is higher priority
	Deadline  float64 // seconds, zero when none is declared
}

// CreateFlow is a constructor.  A burst below 1 is taken to mean one frame per interval.
func CreateFlow(id, src, dst string, path []string, frameSize int, interval float64,
	burst, class int) *Flow {

	fl := new(Flow)
	fl.ID = id
	fl.Src = src
	fl.Dst = dst
	fl.Path = make([]string, len(path))
	copy(fl.Path, path)
	fl.FrameSize = frameSize
	fl.Interval = interval
	fl.Burst = burst
	if fl.Burst < 1 {
		fl.Burst = 1
	}
	fl.Class = class

	return fl
}

func (fl *Flow) String() string {
	return fmt.Sprintf("%s(%s->%s class %d)", fl.ID, fl.Src, fl.Dst, fl.Class)
}

// FrameBits is the size of the largest frame in bits, without the inter-frame gap
func (fl *Flow) FrameBits() float64 {
	return float64(fl.FrameSize * 8)
}

// WireBits is the time a frame holds the wire, expressed in bits: frame plus inter-frame gap
func (fl *Flow) WireBits(ifg int) float64 {
	return float64(fl.FrameSize*8 + ifg)
}

// BurstBits is the wire size of a whole burst
func (fl *Flow) BurstBits(ifg int) float64 {
	return float64(fl.Burst) * fl.WireBits(ifg)
}

// Rate is the long term rate of the flow on the wire, bits per second
func (fl *Flow) Rate(ifg int) float64 {
	return fl.BurstBits(ifg) / fl.Interval
}

// validate checks the flow's own attributes and, against topo, its path
func (fl *Flow) validate(topo *Topology) error {
	errs := []error{}
	if len(fl.ID) == 0 {
		errs = append(errs, configErrorf("flow %s->%s has no identifier", fl.Src, fl.Dst))
	}
	if fl.FrameSize <= 0 {
		errs = append(errs, configErrorf("flow %s: frame size must be positive, got %d", fl.ID, fl.FrameSize))
	}
	if !(fl.Interval > 0) || !finite(fl.Interval) {
		errs = append(errs, configErrorf("flow %s: interval must be positive, got %g", fl.ID, fl.Interval))
	}
	if fl.Burst < 1 {
		errs = append(errs, configErrorf("flow %s: burst must be at least one frame, got %d", fl.ID, fl.Burst))
	}
	if fl.Class < 0 || fl.Class > maxTrafficClass {
		errs = append(errs, configErrorf("flow %s: traffic class must be in 0..%d, got %d",
			fl.ID, maxTrafficClass, fl.Class))
	}
	if fl.Deadline < 0 || !finite(fl.Deadline) {
		errs = append(errs, configErrorf("flow %s: deadline must not be negative, got %g", fl.ID, fl.Deadline))
	}

	// the declared path has to join the endpoints of the flow
	if len(fl.Path) > 0 && (fl.Path[0] != fl.Src || fl.Path[len(fl.Path)-1] != fl.Dst) {
		errs = append(errs, configErrorf("flow %s: path %v does not run from %s to %s",
			fl.ID, fl.Path, fl.Src, fl.Dst))
	} else if err := topo.ValidatePath(fl.Path); err != nil {
		errs = append(errs, configErrorf("flow %s: %v", fl.ID, err))
	}

	return ReportErrs(errs)
}
