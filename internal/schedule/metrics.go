package schedule

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ScheduleFetchesTotal counts league schedule fetches by outcome.
	ScheduleFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nhl_reversion_schedule_fetches_total",
			Help: "Total number of league schedule fetches",
		},
		[]string{"outcome"},
	)
)
