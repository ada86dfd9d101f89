package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nhl_reversion_engine_ticks_total",
		Help: "Total number of completed poll cycles",
	})

	TickDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "nhl_reversion_engine_tick_duration_seconds",
		Help:    "Duration of a full poll cycle",
		Buckets: prometheus.DefBuckets,
	})

	TickErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nhl_reversion_engine_tick_errors_total",
		Help: "Errors encountered during poll cycles, by stage",
	}, []string{"stage"})
)
