// Package metrics provides Prometheus collectors for verification.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Outcomes       *prometheus.CounterVec   // resolved verifications by reason
	OracleDuration prometheus.Histogram     // similarity oracle latency
	OracleFailures *prometheus.CounterVec   // oracle failures by category
	CacheLookups   *prometheus.CounterVec   // result cache hits and misses
	CacheErrors    *prometheus.CounterVec   // result cache failures by operation
	BatchSize      prometheus.Histogram     // codes per batch request
	StepDuration   *prometheus.HistogramVec // duration per state machine step
}

// New registers verification collectors with reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		Outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "verification_outcomes_total",
			Help: "Resolved verifications by reason",
		}, []string{"reason"}),
		OracleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "verification_oracle_duration_seconds",
			Help:    "Duration of similarity oracle calls",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),
		OracleFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "verification_oracle_failures_total",
			Help: "Similarity oracle failures by category",
		}, []string{"category"}),
		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "verification_cache_lookups_total",
			Help: "Verification result cache lookups by result (hit, miss)",
		}, []string{"result"}),
		CacheErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "verification_cache_errors_total",
			Help: "Verification result cache failures by operation",
		}, []string{"operation"}),
		BatchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "verification_batch_size",
			Help:    "Number of codes per batch verification",
			Buckets: []float64{1, 5, 10, 25, 50, 100},
		}),
		StepDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "verification_step_duration_seconds",
			Help:    "Duration of verification steps",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"step"}),
	}
}

func (m *Metrics) IncOutcome(reason string) {
	m.Outcomes.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveOracle(seconds float64) {
	m.OracleDuration.Observe(seconds)
}

func (m *Metrics) IncOracleFailure(category string) {
	m.OracleFailures.WithLabelValues(category).Inc()
}

func (m *Metrics) RecordCacheHit() {
	m.CacheLookups.WithLabelValues("hit").Inc()
}

func (m *Metrics) RecordCacheMiss() {
	m.CacheLookups.WithLabelValues("miss").Inc()
}

func (m *Metrics) IncCacheError(operation string) {
	m.CacheErrors.WithLabelValues(operation).Inc()
}

func (m *Metrics) ObserveBatchSize(n int) {
	m.BatchSize.Observe(float64(n))
}

func (m *Metrics) ObserveStep(step string, seconds float64) {
	m.StepDuration.WithLabelValues(step).Observe(seconds)
}
