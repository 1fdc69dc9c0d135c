package tsnlat

// trace.go records, hop by hop, how an end-to-end bound was put together, for
// post-run inspection

import (
	"encoding/json"
	"os"
	"path"
	"strconv"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/iti/evt/vrtime"
	"gopkg.in/yaml.v3"
)

// TraceInst is the record of one analysed hop
type TraceInst struct {
	// bound accumulated up to and including this hop, seconds, and its vrtime representation
	TraceTime string `json:"tracetime" yaml:"tracetime"`
	Ticks     int64  `json:"ticks" yaml:"ticks"`
	Priority  int64  `json:"priority" yaml:"priority"`

	FlowID  string `json:"flowid" yaml:"flowid"`
	Formula string `json:"formula" yaml:"formula"`
	Hop     int    `json:"hop" yaml:"hop"`
	Queue   string `json:"queue" yaml:"queue"`

	// serialized HopResult
	TraceStr string `json:"tracestr" yaml:"tracestr"`
}

// TraceManager gathers the hop records of an analysis run.  Records are kept per
// (flow, formula) pair.  It may be shared by concurrent analyses.
type TraceManager struct {
	// analysis uses trace
	InUse bool `json:"inuse" yaml:"inuse"`

	// name of the scenario analysed
	ExpName string `json:"expname" yaml:"expname"`

	// all trace records, keyed by flow and formula
	Traces map[string][]TraceInst `json:"traces" yaml:"traces"`

	mtx sync.Mutex
}

// CreateTraceManager is a constructor.  It saves the name of the scenario
// and a flag indicating whether the trace manager is active.  By testing this
// flag we can inhibit the activity of gathering a trace when we don't want it,
// while embedding calls to its methods everywhere we need them when it is
func CreateTraceManager(expName string, active bool) *TraceManager {
	tm := new(TraceManager)
	tm.InUse = active
	tm.ExpName = expName
	tm.Traces = make(map[string][]TraceInst)
	return tm
}

// Active tells the caller whether the Trace Manager is actively being used
func (tm *TraceManager) Active() bool {
	return tm != nil && tm.InUse
}

func traceKey(flowID, formula string) string {
	return flowID + "/" + formula
}

// AddHop records the result of one hop.  cumulative is the bound of the flow up to and
// including the hop.
func (tm *TraceManager) AddHop(flowID, formula string, cumulative float64, hr HopResult) {

	// return if we aren't using the trace manager
	if !tm.Active() {
		return
	}

	bytes, merr := yaml.Marshal(hr)
	if merr != nil {
		bytes = []byte(merr.Error())
	}

	vrt := vrtime.SecondsToTime(cumulative)
	trace := TraceInst{
		TraceTime: strconv.FormatFloat(vrt.Seconds(), 'f', -1, 64),
		Ticks:     vrt.Ticks(),
		Priority:  vrt.Pri(),
		FlowID:    flowID,
		Formula:   formula,
		Hop:       hr.Index,
		Queue:     hr.Queue.String(),
		TraceStr:  string(bytes),
	}

	tm.mtx.Lock()
	defer tm.mtx.Unlock()
	key := traceKey(flowID, formula)
	tm.Traces[key] = append(tm.Traces[key], trace)
}

// AddLatency records every hop of a computed bound
func (tm *TraceManager) AddLatency(lr *LatencyResult) {
	if !tm.Active() || lr == nil {
		return
	}
	var cumulative float64
	for _, hr := range lr.Hops {
		cumulative += hr.Total
		tm.AddHop(lr.FlowID, lr.Formula, cumulative, hr)
	}
}

// Trace returns a copy of the records held for the flow under the formula
func (tm *TraceManager) Trace(flowID, formula string) []TraceInst {
	tm.mtx.Lock()
	defer tm.mtx.Unlock()
	traces := tm.Traces[traceKey(flowID, formula)]
	rtn := make([]TraceInst, len(traces))
	copy(rtn, traces)
	return rtn
}

// WriteToFile stores the Traces struct to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
// Nothing is written, and false returned, when the manager is not in use.
func (tm *TraceManager) WriteToFile(filename string) (bool, error) {
	if !tm.Active() {
		return false, nil
	}

	tm.mtx.Lock()
	defer tm.mtx.Unlock()

	pathExt := path.Ext(filename)
	var bytes []byte
	var merr error

	switch pathExt {
	case ".yaml", ".YAML", ".yml":
		bytes, merr = yaml.Marshal(tm)
	case ".json", ".JSON":
		bytes, merr = json.MarshalIndent(tm, "", "\t")
	default:
		return false, errors.Newf("trace file %s: extension must be .yaml, .yml, or .json", filename)
	}
	if merr != nil {
		return false, errors.Wrapf(merr, "serializing trace %s", tm.ExpName)
	}

	if werr := os.WriteFile(filename, bytes, 0o644); werr != nil {
		return false, errors.Wrapf(werr, "writing trace file %s", filename)
	}
	return true, nil
}
