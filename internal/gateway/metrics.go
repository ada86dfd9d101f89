package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// VenueRequestsTotal counts venue API requests by method and status.
	VenueRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nhl_reversion_venue_requests_total",
			Help: "Total number of venue order API requests",
		},
		[]string{"method", "status"},
	)

	// VenueRequestDurationSeconds tracks venue API latency.
	VenueRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nhl_reversion_venue_request_duration_seconds",
			Help:    "Latency of venue order API requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)
