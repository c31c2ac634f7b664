package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "doorcount_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "doorcount_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	controlCommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "doorcount_http_commands_total",
			Help: "Control commands received over HTTP",
		},
		[]string{"command", "result"}, // result: queued, rejected
	)

	snapshotBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "doorcount_snapshot_size_bytes",
			Help:    "Size of rendered snapshot JPEGs in bytes",
			Buckets: []float64{10 * 1024, 50 * 1024, 100 * 1024, 250 * 1024, 500 * 1024, 1024 * 1024},
		},
	)

	// WebSocket metrics
	websocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "doorcount_websocket_active_connections",
			Help: "Number of active WebSocket connections",
		},
	)

	websocketMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "doorcount_websocket_messages_total",
			Help: "Total number of WebSocket messages",
		},
		[]string{"direction"}, // direction: sent, received
	)
)
