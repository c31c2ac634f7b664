package collector

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	updatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "doorcount_collector_updates_total",
			Help: "Occupancy updates received by the collector",
		},
		[]string{"result"}, // result: stored, invalid, rate_limited, error
	)

	latestCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "doorcount_collector_current_count",
			Help: "Occupancy reported by the most recent update",
		},
	)

	rateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "doorcount_collector_rate_limit_hits_total",
			Help: "Updates rejected by the rate limiter",
		},
		[]string{"window"},
	)
)
