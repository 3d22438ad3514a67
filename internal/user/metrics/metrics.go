package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"erp/pkg/commonevent"
)

// Metrics provides observability for the users module.
// Tracks lifecycle events emitted and service operation durations.
type Metrics struct {
	LifecycleEvents   *prometheus.CounterVec
	AuditFailures     prometheus.Counter
	OperationDuration *prometheus.HistogramVec
}

// New registers the users module metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		LifecycleEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "erp_user_lifecycle_events_total",
			Help: "Total number of user lifecycle events emitted, by event",
		}, []string{"event"}),
		AuditFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "erp_user_audit_failures_total",
			Help: "Total number of lifecycle events that could not be written to the audit trail",
		}),
		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "erp_user_operation_duration_seconds",
			Help:    "Duration of user service operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"operation"}),
	}
}

func (m *Metrics) IncrementEvent(e commonevent.Event) {
	m.LifecycleEvents.WithLabelValues(e.String()).Inc()
}

func (m *Metrics) IncrementAuditFailure() {
	m.AuditFailures.Inc()
}

// ObserveOperation records the duration of op.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveOperation(op string, start time.Time) {
	m.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
