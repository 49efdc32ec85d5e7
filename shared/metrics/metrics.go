// Package metrics holds the Prometheus collectors for pipeline runs and the
// upstream provider. Collectors register with the default registry and are
// served on /metrics by the monitoring server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StageRuns counts stage invocations by outcome: success, no_data, partial, failed.
	StageRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trend_stage_runs_total",
			Help: "Total number of pipeline stage invocations",
		},
		[]string{"stage", "outcome"},
	)

	// StageItems counts per-item results within stages: created, updated, error.
	StageItems = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trend_stage_items_total",
			Help: "Total number of items handled by pipeline stages",
		},
		[]string{"stage", "result"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trend_stage_duration_seconds",
			Help:    "Duration of pipeline stage invocations in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 180, 600},
		},
		[]string{"stage"},
	)

	ProviderRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trend_provider_requests_total",
			Help: "Total number of upstream metadata provider requests",
		},
		[]string{"call", "result"},
	)

	// CircuitBreakerState is 0 closed, 1 half-open, 2 open.
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "trend_circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)
)

// Outcome labels for StageRuns.
const (
	OutcomeSuccess = "success"
	OutcomeNoData  = "no_data"
	OutcomePartial = "partial"
	OutcomeFailed  = "failed"
)
