// Package metrics defines Prometheus metrics for session lifecycle operations.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Renewal outcome label values.
const (
	OutcomeSuccess          = "success"
	OutcomeTerminalFailure  = "terminal_failure"
	OutcomeTransientFailure = "transient_failure"
	OutcomeSkippedFresh     = "skipped_fresh"
	OutcomeSkippedInFlight  = "skipped_inflight"
)

var (
	// RenewalsTotal tracks renewal attempts by outcome.
	RenewalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_renewals_total",
			Help: "Total session renewal attempts by outcome",
		},
		[]string{"outcome"},
	)

	// RenewalDuration tracks refresh round-trip latency in seconds.
	RenewalDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "session_renewal_duration_seconds",
			Help:    "Session renewal round-trip duration in seconds",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	// LoginsTotal tracks login attempts by method (password/google) and status.
	LoginsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_logins_total",
			Help: "Total login attempts by method and status",
		},
		[]string{"method", "status"},
	)

	// StoreOpsTotal tracks durable slot operations by operation and status.
	StoreOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_store_operations_total",
			Help: "Total durable session store operations by operation and status",
		},
		[]string{"operation", "status"},
	)
)

// ObserveStoreOp records a store operation result.
func ObserveStoreOp(operation string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	StoreOpsTotal.WithLabelValues(operation, status).Inc()
}
