// Package metrics provides Prometheus instrumentation for the hot-swap
// orchestrator's pipeline (§4.8).
//
// Adapted from the teacher's config-reload metrics
// (internal/config/reload_coordinator.go's Prometheus integration): the
// same "total by status / duration histogram / per-phase duration /
// rollback counter / last-success timestamp" shape, generalized from the
// six-phase config reload to the eight-state hot-swap pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HotSwapTotal tracks total hot-swap change attempts by final state.
	HotSwapTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hotswap_changes_total",
			Help: "Total number of hot-swap changes by final state",
		},
		[]string{"final_state"},
	)

	// HotSwapDuration tracks end-to-end change duration.
	HotSwapDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hotswap_change_duration_seconds",
			Help:    "Duration of a hot-swap change from detection to commit or rollback",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.2, 0.5, 1.0, 2.0, 5.0},
		},
	)

	// HotSwapPhaseDuration tracks time spent in each pipeline state.
	HotSwapPhaseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hotswap_phase_duration_seconds",
			Help:    "Duration spent in each hot-swap pipeline state",
			Buckets: []float64{0.0001, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		},
		[]string{"state"},
	)

	// HotSwapRollbacksTotal tracks rollback executions by resulting status.
	HotSwapRollbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hotswap_rollbacks_total",
			Help: "Total number of rollback executions by status",
		},
		[]string{"status"},
	)

	// HotSwapErrorsTotal tracks classified errors by kind.
	HotSwapErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hotswap_errors_total",
			Help: "Total number of classified errors by kind",
		},
		[]string{"kind"},
	)

	// HotSwapLastSuccess tracks the timestamp of the last committed change.
	HotSwapLastSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hotswap_last_success_timestamp_seconds",
			Help: "Timestamp of the last successfully committed hot-swap change",
		},
	)
)
