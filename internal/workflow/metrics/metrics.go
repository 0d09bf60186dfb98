package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the workflow engine.
// Tracks committed transitions, guard rejections, lost races and the
// duration of the read-guard-commit path.
type Metrics struct {
	TransitionsCommitted *prometheus.CounterVec
	GuardRejections      *prometheus.CounterVec
	Conflicts            prometheus.Counter
	ClearancesRecorded   *prometheus.CounterVec
	TransitionDuration   prometheus.Histogram
}

// New registers the workflow metrics with reg. Pass prometheus.DefaultRegisterer
// in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		TransitionsCommitted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "transferdesk_transitions_committed_total",
			Help: "Total number of committed stage transitions",
		}, []string{"from", "to"}),
		GuardRejections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "transferdesk_guard_rejections_total",
			Help: "Total number of transition requests rejected by a guard",
		}, []string{"guard"}),
		Conflicts: f.NewCounter(prometheus.CounterOpts{
			Name: "transferdesk_concurrent_modifications_total",
			Help: "Total number of commits that lost an optimistic concurrency race",
		}),
		ClearancesRecorded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "transferdesk_clearances_recorded_total",
			Help: "Total number of section clearances recorded",
		}, []string{"section", "status"}),
		TransitionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "transferdesk_transition_duration_seconds",
			Help:    "Duration of RequestTransition (load, guard, commit)",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

func (m *Metrics) IncrementCommitted(from, to string) {
	m.TransitionsCommitted.WithLabelValues(from, to).Inc()
}

func (m *Metrics) IncrementGuardRejected(guard string) {
	m.GuardRejections.WithLabelValues(guard).Inc()
}

func (m *Metrics) IncrementConflict() {
	m.Conflicts.Inc()
}

func (m *Metrics) IncrementClearance(section, status string) {
	m.ClearancesRecorded.WithLabelValues(section, status).Inc()
}

// ObserveTransition records the duration of a RequestTransition call.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveTransition(start time.Time) {
	m.TransitionDuration.Observe(time.Since(start).Seconds())
}
