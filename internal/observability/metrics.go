package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PositionUpdatesTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "freight_dispatch", Name: "position_updates_total", Help: "Total vehicle position updates processed"})
	InvalidPositionsTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "freight_dispatch", Name: "invalid_positions_total", Help: "Position updates rejected by coordinate validation"})
	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "freight_dispatch", Name: "geofence_transitions_total", Help: "Geofence transitions fired by event kind"},
		[]string{"event"},
	)
	VehiclesTracked = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "freight_dispatch", Name: "vehicles_tracked", Help: "Vehicles with a recent position"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "freight_dispatch", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "freight_dispatch",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
