package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides identifier-quality observability: how much structure the
// parser recovers from each source's identifier spellings.
type Metrics struct {
	ParseOutcome *prometheus.CounterVec
}

// New creates a Metrics instance with all identifier metrics registered.
func New() *Metrics {
	return &Metrics{
		ParseOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "regsync_identifier_parse_total",
			Help: "Identifier parse outcomes by level and registration number type",
		}, []string{"level", "regno_type"}),
	}
}

// ObserveParse records one parse outcome.
func (m *Metrics) ObserveParse(level, regnoType string) {
	if m != nil {
		m.ParseOutcome.WithLabelValues(level, regnoType).Inc()
	}
}
