package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for registry operations.
type Metrics struct {
	IssuersAuthorized    prometheus.Counter
	IssuersRevoked       prometheus.Counter
	CredentialsIssued    prometheus.Counter
	CredentialsRevoked   prometheus.Counter
	Rejections           *prometheus.CounterVec
	Lookups              *prometheus.CounterVec
	TxLockWait           prometheus.Histogram
	InvalidationFailures prometheus.Counter
}

// New registers registry collectors with reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		IssuersAuthorized: factory.NewCounter(prometheus.CounterOpts{
			Name: "registry_issuers_authorized_total",
			Help: "Total number of issuer authorizations, including re-authorizations",
		}),
		IssuersRevoked: factory.NewCounter(prometheus.CounterOpts{
			Name: "registry_issuers_revoked_total",
			Help: "Total number of issuer revocations",
		}),
		CredentialsIssued: factory.NewCounter(prometheus.CounterOpts{
			Name: "registry_credentials_issued_total",
			Help: "Total number of credentials issued",
		}),
		CredentialsRevoked: factory.NewCounter(prometheus.CounterOpts{
			Name: "registry_credentials_revoked_total",
			Help: "Total number of credentials revoked",
		}),
		Rejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "registry_rejections_total",
			Help: "Rejected mutations, labeled by operation and reason",
		}, []string{"operation", "reason"}),
		Lookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "registry_verification_lookups_total",
			Help: "On-ledger verification lookups, labeled by outcome",
		}, []string{"outcome"}),
		TxLockWait: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "registry_tx_lock_wait_seconds",
			Help:    "Time spent waiting for the in-memory writer lock",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		InvalidationFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "registry_cache_invalidation_failures_total",
			Help: "Revocations whose cached verification result could not be invalidated",
		}),
	}
}

func (m *Metrics) IncRejection(operation, reason string) {
	m.Rejections.WithLabelValues(operation, reason).Inc()
}

func (m *Metrics) IncLookup(outcome string) {
	m.Lookups.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveTxLockWait(seconds float64) {
	m.TxLockWait.Observe(seconds)
}
