package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the reconciliation engine.
type Metrics struct {
	// Field decisions by outcome and the comparison that produced them
	FieldDecision *prometheus.CounterVec

	// Conflict queue entries opened vs folded into an existing entry
	ConflictQueue *prometheus.CounterVec

	// Full upsert latency including the transaction
	UpsertLatency prometheus.Histogram
}

// New creates a Metrics instance with all reconciliation metrics registered.
func New() *Metrics {
	return &Metrics{
		FieldDecision: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "regsync_reconcile_field_decisions_total",
			Help: "Field policy decisions by outcome and deciding basis",
		}, []string{"outcome", "basis"}),

		ConflictQueue: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "regsync_reconcile_conflict_queue_total",
			Help: "Conflict queue writes by kind (opened, folded)",
		}, []string{"kind"}),

		UpsertLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "regsync_reconcile_upsert_duration_seconds",
			Help:    "Duration of one reconciliation upsert including the transaction",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// ObserveDecision records one field decision.
func (m *Metrics) ObserveDecision(outcome, basis string) {
	if m != nil {
		m.FieldDecision.WithLabelValues(outcome, basis).Inc()
	}
}

// ObserveConflictQueue records a queue write.
func (m *Metrics) ObserveConflictQueue(kind string) {
	if m != nil {
		m.ConflictQueue.WithLabelValues(kind).Inc()
	}
}

// ObserveUpsertLatency records the duration of one upsert call.
func (m *Metrics) ObserveUpsertLatency(d time.Duration) {
	if m != nil {
		m.UpsertLatency.Observe(d.Seconds())
	}
}
