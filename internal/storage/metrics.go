package storage

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StorageRetriesTotal counts failed telemetry write attempts by op.
	StorageRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nhl_reversion_storage_retries_total",
			Help: "Total number of failed telemetry write attempts",
		},
		[]string{"op"},
	)

	// StorageDroppedTotal counts telemetry writes dropped after retries.
	StorageDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nhl_reversion_storage_dropped_total",
			Help: "Total number of telemetry writes dropped after exhausting retries",
		},
		[]string{"op"},
	)
)
