// Package metrics holds the Prometheus collectors exposed on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "campus_events"

// Registry is the registry every collector in this package registers with.
var Registry = prometheus.NewRegistry()

// Registration outcomes, used as the "outcome" label.
const (
	OutcomeCreated     = "created"
	OutcomeUnchanged   = "unchanged"
	OutcomeCanceled    = "canceled"
	OutcomeNotFound    = "not_found"
	OutcomeRejected    = "rejected"
	OutcomeConflict    = "conflict"
	OutcomeLockTimeout = "lock_timeout"
	OutcomeError       = "error"
)

var (
	// RegistrationOps counts register and cancel calls by result.
	RegistrationOps = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registration_operations_total",
			Help:      "Registration operations by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	// RegistrationDuration records the time spent in a register or cancel
	// call, lock wait included.
	RegistrationDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "registration_duration_seconds",
			Help:      "Registration operation latency in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"operation"},
	)

	// Rejections counts business-rule rejections by reason.
	Rejections = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registration_rejections_total",
			Help:      "Registrations refused by a business rule, by reason",
		},
		[]string{"reason"},
	)

	// NotificationFailures counts registration notifications that could not be published.
	NotificationFailures = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_failures_total",
			Help:      "Registration change notifications that failed to publish",
		},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// RecordRegistration records one register or cancel call.
//
//	start := time.Now()
//	...
//	metrics.RecordRegistration("register", outcome, start)
func RecordRegistration(operation, outcome string, start time.Time) {
	RegistrationOps.WithLabelValues(operation, outcome).Inc()
	RegistrationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// RecordRejection counts a precondition failure under its reason.
func RecordRejection(reason string) {
	Rejections.WithLabelValues(reason).Inc()
}
