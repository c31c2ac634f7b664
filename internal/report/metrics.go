package report

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	remoteSyncTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "doorcount_remote_sync_total",
			Help: "Total number of remote sync attempts",
		},
		[]string{"result"}, // result: success, error, dropped
	)

	remoteSyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "doorcount_remote_sync_duration_seconds",
			Help:    "Remote sync request duration in seconds",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	logFlushTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "doorcount_log_flush_total",
			Help: "Total number of durable log writes",
		},
		[]string{"result"},
	)
)
