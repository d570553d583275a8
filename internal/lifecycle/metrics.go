package lifecycle

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "steward_reconcile_cycle_duration_seconds",
			Help:    "Duration of lifecycle reconciliation cycles.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)
	cyclesSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "steward_reconcile_cycles_skipped_total",
			Help: "Cycles skipped because a previous cycle was still running.",
		},
	)
	actionsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "steward_reconcile_actions_total",
			Help: "Lifecycle actions emitted by kind.",
		},
		[]string{"kind"},
	)
	actionApplyTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "steward_action_apply_total",
			Help: "Action application attempts by outcome.",
		},
		[]string{"outcome"},
	)
	applyRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "steward_action_apply_retries_total",
			Help: "Retries of claim source writes after transient failures.",
		},
	)
)
