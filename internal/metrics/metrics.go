/**
 * @description
 * Prometheus collectors for the lifecycle engine, exposed on /metrics.
 */
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SweepRuns counts completed sweep runs by job and outcome (ok/error).
	SweepRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bandit",
		Subsystem: "lifecycle",
		Name:      "sweep_runs_total",
		Help:      "Completed sweep runs by job and outcome.",
	}, []string{"job", "outcome"})

	// SweepRows counts individual rows handled by sweeps.
	SweepRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bandit",
		Subsystem: "lifecycle",
		Name:      "sweep_rows_total",
		Help:      "Rows processed by sweeps, by job and result.",
	}, []string{"job", "result"})

	// SweepDuration observes wall time per sweep run.
	SweepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "bandit",
		Subsystem: "lifecycle",
		Name:      "sweep_duration_seconds",
		Help:      "Sweep run duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"job"})

	// RetryAttempts counts transient-failure retries by job.
	RetryAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bandit",
		Subsystem: "lifecycle",
		Name:      "retry_attempts_total",
		Help:      "Retries performed against transient failures, by operation.",
	}, []string{"operation"})

	// NotificationsSuppressed counts gate suppressions by reason.
	NotificationsSuppressed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bandit",
		Subsystem: "lifecycle",
		Name:      "notifications_suppressed_total",
		Help:      "Notifications suppressed by the gate, by reason.",
	}, []string{"reason"})
)
