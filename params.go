package tsnlat

// Default values for the analysis parameters, as used for SR class A
// on 100 Mbit/s Ethernet
const (
	DefaultCMI           = 125e-6 // class measurement interval of SR class A, seconds
	DefaultIFG           = 96     // inter-frame gap plus preamble, bits
	DefaultMinFrame      = 64     // bytes
	DefaultCrossTraffic  = 1526   // largest non-reserved frame, bytes, without IFG
	DefaultLinkRate      = 100e6  // bits per second
	ReservationTolerance = 1e-9   // slack allowed on the sum of reserved fractions of a port
	maxTrafficClass      = 7
)

// Params holds the settings that apply to a whole analysis run
type Params struct {
	// class measurement interval in seconds; used by the ba2021 formula and when
	// idle slopes are derived from the flows
	CMI float64 `json:"cmi" yaml:"cmi"`

	// inter-frame gap in bits, counted on every frame that occupies the wire ahead of the analysed one
	IFG int `json:"ifg" yaml:"ifg"`

	// size in bytes of the largest non-stream (best effort) frame that may block a port.
	// zero means no such traffic exists
	CrossTrafficFrame int `json:"crosstrafficframe" yaml:"crosstrafficframe"`

	// forwarding delay added at every bridge the flow leaves, seconds
	SwitchDelay float64 `json:"switchdelay" yaml:"switchdelay"`

	// when set, the flow interval replaces CMI for the flow being analysed
	FlowIntervalAsCMI bool `json:"flowintervalascmi" yaml:"flowintervalascmi"`

	// when set, the egress queue of an end station is not analysed, only its transmission
	// delay is counted
	SkipEndStationQueues bool `json:"skipendstationqueues" yaml:"skipendstationqueues"`
}

// DefaultParams returns the parameters of SR class A. No best effort cross traffic
// blocks a port unless CrossTrafficFrame is set, typically to DefaultCrossTraffic
func DefaultParams() Params {
	return Params{
		CMI: DefaultCMI,
		IFG: DefaultIFG,
	}
}

// validate returns a configuration error for parameters that can't be analysed
func (p Params) validate() error {
	errs := []error{}
	if !(p.CMI > 0) || !finite(p.CMI) {
		errs = append(errs, configErrorf("CMI must be positive, got %g", p.CMI))
	}
	if p.IFG < 0 {
		errs = append(errs, configErrorf("IFG must not be negative, got %d", p.IFG))
	}
	if p.CrossTrafficFrame < 0 {
		errs = append(errs, configErrorf("cross traffic frame must not be negative, got %d", p.CrossTrafficFrame))
	}
	if p.SwitchDelay < 0 || !finite(p.SwitchDelay) {
		errs = append(errs, configErrorf("switch delay must not be negative, got %g", p.SwitchDelay))
	}
	return ReportErrs(errs)
}

// cmiFor returns the class measurement interval that applies to the flow
func (p Params) cmiFor(fl *Flow) float64 {
	if p.FlowIntervalAsCMI {
		return fl.Interval
	}
	return p.CMI
}

// crossTrafficBits is the size of a blocking best effort frame on the wire, including IFG
func (p Params) crossTrafficBits() float64 {
	if p.CrossTrafficFrame == 0 {
		return 0
	}
	return float64(p.CrossTrafficFrame*8 + p.IFG)
}
