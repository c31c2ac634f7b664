package counter

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	crossingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "doorcount_crossings_total",
			Help: "Total number of counted line crossings",
		},
		[]string{"direction", "label"},
	)

	framesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "doorcount_frames_total",
			Help: "Total number of frame cycles",
		},
		[]string{"result"}, // result: processed, skipped, error
	)

	trackErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "doorcount_track_errors_total",
			Help: "Total number of tracker failures",
		},
	)

	commandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "doorcount_commands_total",
			Help: "Total number of accepted control commands",
		},
		[]string{"command"},
	)

	occupancyGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "doorcount_occupancy",
			Help: "Current estimated occupancy",
		},
	)

	countGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "doorcount_count",
			Help: "Cumulative counts since start or last reset",
		},
		[]string{"label"},
	)

	cycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "doorcount_cycle_duration_seconds",
			Help:    "Frame cycle processing time in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)
