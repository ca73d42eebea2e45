// Package metrics exposes Prometheus instrumentation for matching and reconciliation.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the matching service. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	// Match decisions by status and process stage
	Decisions *prometheus.CounterVec

	// Registry round trips by operation and outcome
	RegistryCalls *prometheus.CounterVec

	// Reconciliation outcomes by status
	Reconciliations *prometheus.CounterVec

	// Full search latency, all variants included
	SearchLatency prometheus.Histogram

	// Version of the strategy set currently served
	AlgorithmVersion prometheus.Gauge
}

// New creates a Metrics instance registered with reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		Decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pds_match_decisions_total",
			Help: "Total match decisions by status and process stage",
		}, []string{"status", "stage"}),

		RegistryCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pds_match_registry_calls_total",
			Help: "Total registry calls by operation and outcome",
		}, []string{"operation", "outcome"}), // operation: "search", "fetch"

		Reconciliations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pds_match_reconciliations_total",
			Help: "Total reconciliation outcomes by status",
		}, []string{"status"}),

		SearchLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "pds_match_search_duration_seconds",
			Help:    "Duration of a full match attempt across all attempted variants",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),

		AlgorithmVersion: factory.NewGauge(prometheus.GaugeOpts{
			Name: "pds_match_algorithm_version",
			Help: "Current strategy set version",
		}),
	}
}

// IncrementDecision records a match decision.
func (m *Metrics) IncrementDecision(status, stage string) {
	if m != nil {
		m.Decisions.WithLabelValues(status, stage).Inc()
	}
}

// IncrementRegistryCall records one registry round trip.
func (m *Metrics) IncrementRegistryCall(operation, outcome string) {
	if m != nil {
		m.RegistryCalls.WithLabelValues(operation, outcome).Inc()
	}
}

// IncrementReconciliation records a reconciliation outcome.
func (m *Metrics) IncrementReconciliation(status string) {
	if m != nil {
		m.Reconciliations.WithLabelValues(status).Inc()
	}
}

// ObserveSearchLatency records the total duration of a match attempt.
func (m *Metrics) ObserveSearchLatency(d time.Duration) {
	if m != nil {
		m.SearchLatency.Observe(d.Seconds())
	}
}

// SetAlgorithmVersion publishes the current strategy set version.
func (m *Metrics) SetAlgorithmVersion(version int) {
	if m != nil {
		m.AlgorithmVersion.Set(float64(version))
	}
}
