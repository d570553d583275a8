package notifier

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	notifySendTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "steward_notify_send_total",
			Help: "Platform-team notification send attempts by status.",
		},
		[]string{"status"},
	)
	notifySendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "steward_notify_send_duration_seconds",
			Help:    "Duration of platform-team notification HTTP requests.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"status"},
	)
)
