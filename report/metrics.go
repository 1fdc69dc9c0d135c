package report

import (
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/iti/tsnlat"
)

// Metrics counts analysis outcomes per formula and records the distribution of bounds.
// It is an OutcomeObserver for the analyzer.
type Metrics struct {
	registry *prometheus.Registry
	analysed *prometheus.CounterVec
	failed   *prometheus.CounterVec
	bounds   *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them in a registry of their own
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		analysed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tsnlat",
			Name:      "analysed_total",
			Help:      "Number of (flow, formula) analyses run.",
		}, []string{"formula"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tsnlat",
			Name:      "failed_total",
			Help:      "Number of (flow, formula) analyses ending in an error.",
		}, []string{"formula"}),
		bounds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tsnlat",
			Name:      "bound_seconds",
			Help:      "End-to-end latency bounds.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 2, 20),
		}, []string{"formula"}),
	}
	m.registry.MustRegister(m.analysed, m.failed, m.bounds)
	return m
}

// Observe accounts for one outcome
func (m *Metrics) Observe(outcome tsnlat.FlowOutcome) {
	m.analysed.WithLabelValues(outcome.Formula).Inc()
	if outcome.Err != nil {
		m.failed.WithLabelValues(outcome.Formula).Inc()
		return
	}
	m.bounds.WithLabelValues(outcome.Formula).Observe(outcome.Result.Total)
}

// Registry exposes the registry holding the collectors
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes the current values in the text exposition format, for the
// node exporter's textfile collector
func (m *Metrics) WriteTextfile(filename string) error {
	return errors.Wrapf(prometheus.WriteToTextfile(filename, m.registry), "writing metrics to %s", filename)
}
