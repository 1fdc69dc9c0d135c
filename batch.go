package tsnlat

// batch.go runs many (flow, formula) analyses over one network.  Each pair is
// independent of the others, so they are spread over a pool of workers.

import (
	"runtime"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// FlowOutcome is the result of analysing one flow under one formula.
// Exactly one of Result and Err is set.
type FlowOutcome struct {
	FlowID  string
	Formula string
	Result  *LatencyResult
	Err     error
}

// OutcomeObserver is told about every outcome the analyzer produces.  It is called
// from the workers and must be safe for concurrent use.
type OutcomeObserver interface {
	Observe(FlowOutcome)
}

// Analyzer binds a network to the formulas that may be run against it
type Analyzer struct {
	nw        *Network
	formulas  *FormulaRegistry
	logger    *zap.Logger
	trace     *TraceManager
	observers []OutcomeObserver
	workers   int

	analysed *atomic.Int64
	failed   *atomic.Int64
}

// AnalyzerOption configures an Analyzer
type AnalyzerOption func(*Analyzer)

// WithLogger sets the logger; the default logs nothing
func WithLogger(logger *zap.Logger) AnalyzerOption {
	return func(a *Analyzer) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithFormulas sets the registry formula identifiers are looked up in; the default is DefaultFormulas()
func WithFormulas(fr *FormulaRegistry) AnalyzerOption {
	return func(a *Analyzer) {
		if fr != nil {
			a.formulas = fr
		}
	}
}

// WithTrace records every computed bound, hop by hop, in tm
func WithTrace(tm *TraceManager) AnalyzerOption {
	return func(a *Analyzer) {
		a.trace = tm
	}
}

// WithObserver adds an observer of outcomes
func WithObserver(obs OutcomeObserver) AnalyzerOption {
	return func(a *Analyzer) {
		if obs != nil {
			a.observers = append(a.observers, obs)
		}
	}
}

// WithWorkers bounds the number of analyses run at once; the default is the number of CPUs
func WithWorkers(n int) AnalyzerOption {
	return func(a *Analyzer) {
		if n > 0 {
			a.workers = n
		}
	}
}

// CreateAnalyzer is a constructor
func CreateAnalyzer(nw *Network, opts ...AnalyzerOption) *Analyzer {
	a := new(Analyzer)
	a.nw = nw
	a.formulas = DefaultFormulas()
	a.logger = zap.NewNop()
	a.workers = runtime.NumCPU()
	a.analysed = atomic.NewInt64(0)
	a.failed = atomic.NewInt64(0)
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Network returns the network analysed
func (a *Analyzer) Network() *Network {
	return a.nw
}

// Formulas returns the registry in use
func (a *Analyzer) Formulas() *FormulaRegistry {
	return a.formulas
}

// Analysed is the number of analyses run so far
func (a *Analyzer) Analysed() int64 {
	return a.analysed.Load()
}

// Failed is the number of analyses that ended in an error
func (a *Analyzer) Failed() int64 {
	return a.failed.Load()
}

// ComputeLatency bounds the latency of one flow under the formula registered as formulaID
func (a *Analyzer) ComputeLatency(flowID, formulaID string) (*LatencyResult, error) {
	outcome := a.analyse(flowID, formulaID)
	return outcome.Result, outcome.Err
}

// bound runs the formula registered as formulaID on flowID.  A formula that panics
// fails the analysis with a computation error.
func (a *Analyzer) bound(flowID, formulaID string) (lr *LatencyResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			lr = nil
			err = computeErrorf("formula %s panicked on flow %s: %v", formulaID, flowID, r)
		}
	}()

	f, err := a.formulas.Lookup(formulaID)
	if err != nil {
		return nil, err
	}
	return a.nw.ComputeLatency(flowID, f)
}

func (a *Analyzer) analyse(flowID, formulaID string) FlowOutcome {
	outcome := FlowOutcome{FlowID: flowID, Formula: formulaID}

	var err error
	outcome.Result, err = a.bound(flowID, formulaID)
	a.analysed.Inc()

	if err != nil {
		a.failed.Inc()
		outcome.Err = err
		outcome.Result = nil
		a.logger.Warn("latency analysis failed",
			zap.String("flow", flowID), zap.String("formula", formulaID), zap.Error(err))
	} else {
		a.logger.Debug("latency bound",
			zap.String("flow", flowID), zap.String("formula", formulaID),
			zap.Float64("total", outcome.Result.Total), zap.Int("hops", len(outcome.Result.Hops)))
		a.trace.AddLatency(outcome.Result)
	}

	for _, obs := range a.observers {
		obs.Observe(outcome)
	}
	return outcome
}

// AnalyzeFlows runs every flow of flowIDs under every formula of formulaIDs.  A nil or
// empty flowIDs means all flows of the network, a nil or empty formulaIDs all formulas
// of the registry.  Outcomes are returned flow by flow, formulas in the order given,
// whatever order they were computed in.  A failing analysis affects only its own outcome.
func (a *Analyzer) AnalyzeFlows(flowIDs, formulaIDs []string) []FlowOutcome {
	if len(flowIDs) == 0 {
		flowIDs = a.nw.FlowIDs()
	}
	if len(formulaIDs) == 0 {
		formulaIDs = a.formulas.IDs()
	}

	outcomes := make([]FlowOutcome, len(flowIDs)*len(formulaIDs))
	a.logger.Info("analysing flows",
		zap.Int("flows", len(flowIDs)), zap.Strings("formulas", formulaIDs), zap.Int("workers", a.workers))

	pool, err := ants.NewPool(a.workers)
	if err != nil {
		// without a pool, analyse one after the other
		a.logger.Warn("worker pool unavailable, analysing sequentially", zap.Error(err))
		for idx := range outcomes {
			outcomes[idx] = a.analyse(flowIDs[idx/len(formulaIDs)], formulaIDs[idx%len(formulaIDs)])
		}
		return outcomes
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for idx := range outcomes {
		idx := idx
		flowID := flowIDs[idx/len(formulaIDs)]
		formulaID := formulaIDs[idx%len(formulaIDs)]

		wg.Add(1)
		serr := pool.Submit(func() {
			defer wg.Done()
			outcomes[idx] = a.analyse(flowID, formulaID)
		})
		if serr != nil {
			wg.Done()
			a.failed.Inc()
			outcomes[idx] = FlowOutcome{FlowID: flowID, Formula: formulaID,
				Err: errors.Wrapf(serr, "scheduling analysis of flow %s", flowID)}
		}
	}
	wg.Wait()

	a.logger.Info("analysis done", zap.Int64("analysed", a.Analysed()), zap.Int64("failed", a.Failed()))
	return outcomes
}
