package tsnlat

// desc.go holds the serializable description of an analysis scenario: the
// topology, the flows with their paths, the bandwidth reservations, and the
// studies to run.  A description is written to and read from yaml or json files,
// and turned into the Network the analysis runs against.

import (
	"encoding/json"
	"os"
	"path"
	"strconv"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// NodeDesc describes a node; Role is "endstation" or "bridge"
type NodeDesc struct {
	Name string `json:"name" yaml:"name"`
	Role string `json:"role" yaml:"role"`
}

// LinkDesc describes a directed link, or a pair of them when Bidirectional is set.
// A zero Rate stands for DefaultLinkRate.
type LinkDesc struct {
	Src           string  `json:"src" yaml:"src"`
	Dst           string  `json:"dst" yaml:"dst"`
	Rate          float64 `json:"rate" yaml:"rate"`
	Delay         float64 `json:"delay" yaml:"delay"`
	Bidirectional bool    `json:"bidirectional" yaml:"bidirectional"`
}

// FlowDesc describes a flow.  When Path is empty the flow follows a shortest path.
type FlowDesc struct {
	ID        string   `json:"id" yaml:"id"`
	Src       string   `json:"src" yaml:"src"`
	Dst       string   `json:"dst" yaml:"dst"`
	Path      []string `json:"path,omitempty" yaml:"path,omitempty"`
	FrameSize int      `json:"framesize" yaml:"framesize"`
	Interval  float64  `json:"interval" yaml:"interval"`
	Burst     int      `json:"burst,omitempty" yaml:"burst,omitempty"`
	Class     int      `json:"class" yaml:"class"`
	Deadline  float64  `json:"deadline,omitempty" yaml:"deadline,omitempty"`
}

// ReservationDesc reserves bandwidth for one queue, as a fraction or an idle slope
type ReservationDesc struct {
	Node      string  `json:"node" yaml:"node"`
	Port      string  `json:"port" yaml:"port"`
	Class     int     `json:"class" yaml:"class"`
	Fraction  float64 `json:"fraction,omitempty" yaml:"fraction,omitempty"`
	IdleSlope float64 `json:"idleslope,omitempty" yaml:"idleslope,omitempty"`
}

// StudySetting is one step of a study: the same reservation, given as an idle slope or
// as a fraction, is applied to every queue a flow crosses
type StudySetting struct {
	Name      string  `json:"name" yaml:"name"`
	IdleSlope float64 `json:"idleslope,omitempty" yaml:"idleslope,omitempty"`
	Fraction  float64 `json:"fraction,omitempty" yaml:"fraction,omitempty"`
}

// StudyDesc names the formulas to compare and the reservation settings to compare them
// under.  Without settings the scenario's own reservations are used, once.
type StudyDesc struct {
	Name              string         `json:"name" yaml:"name"`
	Formulas          []string       `json:"formulas,omitempty" yaml:"formulas,omitempty"`
	Settings          []StudySetting `json:"settings,omitempty" yaml:"settings,omitempty"`
	FlowIntervalAsCMI bool           `json:"flowintervalascmi,omitempty" yaml:"flowintervalascmi,omitempty"`
}

// Steps is the number of networks the study analyses
func (sd *StudyDesc) Steps() int {
	if len(sd.Settings) == 0 {
		return 1
	}
	return len(sd.Settings)
}

// StepLabels returns the values identifying a step, for reports
func (sd *StudyDesc) StepLabels(step int) map[string]string {
	labels := map[string]string{
		"Name":                 sd.Name,
		"Flow Interval as CMI": strconv.FormatBool(sd.FlowIntervalAsCMI),
	}
	if step >= 0 && step < len(sd.Settings) {
		setting := sd.Settings[step]
		labels["Name"] = setting.Name
		if setting.IdleSlope != 0 {
			labels["Idle Slope"] = strconv.FormatFloat(setting.IdleSlope, 'f', -1, 64)
		} else {
			labels["Fraction"] = strconv.FormatFloat(setting.Fraction, 'f', -1, 64)
		}
	}
	return labels
}

// ScenarioDesc is the serializable description of a whole scenario
type ScenarioDesc struct {
	Name   string `json:"name" yaml:"name"`
	Params Params `json:"params" yaml:"params"`

	Nodes []NodeDesc `json:"nodes" yaml:"nodes"`
	Links []LinkDesc `json:"links" yaml:"links"`
	Flows []FlowDesc `json:"flows" yaml:"flows"`

	// random flow sets added to Flows
	Generated []FlowGenDesc `json:"generated,omitempty" yaml:"generated,omitempty"`

	// when ReserveFromFlows is set, Reservations is ignored and every queue reserves
	// what its flows need
	Reservations     []ReservationDesc `json:"reservations,omitempty" yaml:"reservations,omitempty"`
	ReserveFromFlows bool              `json:"reservefromflows,omitempty" yaml:"reservefromflows,omitempty"`

	Studies []StudyDesc `json:"studies,omitempty" yaml:"studies,omitempty"`
}

// CreateScenarioDesc is a constructor.  The scenario starts with DefaultParams.
func CreateScenarioDesc(name string) *ScenarioDesc {
	sd := new(ScenarioDesc)
	sd.Name = name
	sd.Params = DefaultParams()
	sd.Nodes = make([]NodeDesc, 0)
	sd.Links = make([]LinkDesc, 0)
	sd.Flows = make([]FlowDesc, 0)
	sd.Reservations = make([]ReservationDesc, 0)
	sd.Studies = make([]StudyDesc, 0)
	return sd
}

// AddNode includes a node description
func (sd *ScenarioDesc) AddNode(name string, role NodeRole) {
	sd.Nodes = append(sd.Nodes, NodeDesc{Name: name, Role: role.String()})
}

// AddLink includes a link description, in one direction or both
func (sd *ScenarioDesc) AddLink(src, dst string, rate, delay float64, bidirectional bool) {
	sd.Links = append(sd.Links, LinkDesc{Src: src, Dst: dst, Rate: rate, Delay: delay, Bidirectional: bidirectional})
}

// AddFlow includes a flow description
func (sd *ScenarioDesc) AddFlow(fd FlowDesc) {
	sd.Flows = append(sd.Flows, fd)
}

// AddReservation includes a reservation for the queue of class at the port of node towards port
func (sd *ScenarioDesc) AddReservation(node, port string, class int, res Reservation) {
	sd.Reservations = append(sd.Reservations, ReservationDesc{Node: node, Port: port, Class: class,
		Fraction: res.Fraction, IdleSlope: res.IdleSlope})
}

// AddStudy includes a study description
func (sd *ScenarioDesc) AddStudy(study StudyDesc) {
	sd.Studies = append(sd.Studies, study)
}

// WriteToFile serializes the ScenarioDesc and writes to the file whose name is given as an input argument.
// Extension of the file name selects whether serialization is to json or to yaml format.
func (sd *ScenarioDesc) WriteToFile(filename string) error {
	// path extension of the output file determines whether we serialize to json or to yaml
	pathExt := path.Ext(filename)
	var bytes []byte
	var merr error

	switch pathExt {
	case ".yaml", ".YAML", ".yml":
		bytes, merr = yaml.Marshal(*sd)
	case ".json", ".JSON":
		bytes, merr = json.MarshalIndent(*sd, "", "\t")
	default:
		return errors.Newf("scenario file %s: extension must be .yaml, .yml, or .json", filename)
	}
	if merr != nil {
		return errors.Wrapf(merr, "serializing scenario %s", sd.Name)
	}

	if werr := os.WriteFile(filename, bytes, 0o644); werr != nil {
		return errors.Wrapf(werr, "writing scenario file %s", filename)
	}
	return nil
}

// ReadScenarioDesc deserializes a slice of bytes into a ScenarioDesc.  If the input arg of bytes
// is empty, the file whose name is given as an argument is read.  Parameters the
// description leaves out keep their DefaultParams values.  Error returned if
// any part of the process generates the error.
func ReadScenarioDesc(filename string, useYAML bool, dict []byte) (*ScenarioDesc, error) {
	var err error

	// read from the file only if the byte slice is empty
	// validate input file name
	if len(dict) == 0 {
		fileInfo, err := os.Stat(filename)
		if os.IsNotExist(err) || (err == nil && fileInfo.IsDir()) {
			return nil, errors.Newf("scenario %s does not exist or cannot be read", filename)
		}
		dict, err = os.ReadFile(filename)
		if err != nil {
			return nil, errors.Wrapf(err, "reading scenario %s", filename)
		}
	}

	// dict has slice of bytes to process
	example := ScenarioDesc{Params: DefaultParams()}

	if useYAML {
		err = yaml.Unmarshal(dict, &example)
	} else {
		err = json.Unmarshal(dict, &example)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "decoding scenario %s", filename)
	}

	return &example, nil
}

// Topology builds the topology the scenario describes
func (sd *ScenarioDesc) Topology() (*Topology, error) {
	topo := CreateTopology(sd.Name)
	errs := []error{}
	for _, nd := range sd.Nodes {
		role, err := NodeRoleFromStr(nd.Role)
		if err != nil {
			errs = append(errs, configErrorf("node %s: %v", nd.Name, err))
			continue
		}
		errs = append(errs, topo.AddNode(nd.Name, role))
	}
	for _, ld := range sd.Links {
		rate := ld.Rate
		if rate == 0 {
			rate = DefaultLinkRate
		}
		if ld.Bidirectional {
			errs = append(errs, topo.AddBidirectionalLink(ld.Src, ld.Dst, rate, ld.Delay))
		} else {
			errs = append(errs, topo.AddLink(ld.Src, ld.Dst, rate, ld.Delay))
		}
	}
	if err := ReportErrs(errs); err != nil {
		return nil, err
	}
	return topo, nil
}

// FlowList builds the flows the scenario describes on topo, the generated ones last.
// Flows without a path are routed along a shortest path.
func (sd *ScenarioDesc) FlowList(topo *Topology) ([]*Flow, error) {
	flows := make([]*Flow, 0, len(sd.Flows))
	errs := []error{}
	for _, fd := range sd.Flows {
		flowPath := fd.Path
		if len(flowPath) == 0 {
			route, err := topo.ShortestPath(fd.Src, fd.Dst)
			if err != nil {
				errs = append(errs, configErrorf("flow %s: %v", fd.ID, err))
				continue
			}
			flowPath = route
		}
		fl := CreateFlow(fd.ID, fd.Src, fd.Dst, flowPath, fd.FrameSize, fd.Interval, fd.Burst, fd.Class)
		fl.Deadline = fd.Deadline
		flows = append(flows, fl)
	}
	for _, fg := range sd.Generated {
		generated, err := GenerateFlows(topo, fg)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		flows = append(flows, generated...)
	}
	if err := ReportErrs(errs); err != nil {
		return nil, err
	}
	return flows, nil
}

// reservations gathers the scenario's own reservations
func (sd *ScenarioDesc) reservations() (map[QueueKey]Reservation, error) {
	res := make(map[QueueKey]Reservation)
	errs := []error{}
	for _, rd := range sd.Reservations {
		key := QueueKey{Node: rd.Node, Port: rd.Port, Class: rd.Class}
		if _, present := res[key]; present {
			errs = append(errs, configErrorf("queue %s reserved twice", key))
			continue
		}
		res[key] = Reservation{Fraction: rd.Fraction, IdleSlope: rd.IdleSlope}
	}
	if err := ReportErrs(errs); err != nil {
		return nil, err
	}
	return res, nil
}

// Build creates the Network the scenario describes
func (sd *ScenarioDesc) Build() (*Network, error) {
	return sd.build(sd.Params, nil)
}

// BuildStudy creates the Network of one step of a study
func (sd *ScenarioDesc) BuildStudy(study StudyDesc, step int) (*Network, error) {
	if step < 0 || step >= study.Steps() {
		return nil, configErrorf("study %s has no step %d", study.Name, step)
	}
	params := sd.Params
	params.FlowIntervalAsCMI = params.FlowIntervalAsCMI || study.FlowIntervalAsCMI

	var setting *StudySetting
	if len(study.Settings) > 0 {
		setting = &study.Settings[step]
	}
	return sd.build(params, setting)
}

func (sd *ScenarioDesc) build(params Params, setting *StudySetting) (*Network, error) {
	topo, err := sd.Topology()
	if err != nil {
		return nil, err
	}
	flows, err := sd.FlowList(topo)
	if err != nil {
		return nil, err
	}

	var res map[QueueKey]Reservation
	switch {
	case setting != nil:
		// the same reservation on every queue a flow crosses
		res = make(map[QueueKey]Reservation)
		uniform := Reservation{Fraction: setting.Fraction, IdleSlope: setting.IdleSlope}
		for _, fl := range flows {
			links, err := topo.PathLinks(fl.Path)
			if err != nil {
				return nil, configErrorf("flow %s: %v", fl.ID, err)
			}
			for _, link := range links {
				res[QueueKey{Node: link.Src, Port: link.Dst, Class: fl.Class}] = uniform
			}
		}
	case sd.ReserveFromFlows:
		res, err = ReserveFromFlows(topo, flows, params)
	default:
		res, err = sd.reservations()
	}
	if err != nil {
		return nil, err
	}

	return NewNetwork(topo, flows, res, params)
}
