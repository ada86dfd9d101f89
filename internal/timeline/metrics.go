package timeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FixturesTrackedTotal counts fixtures ever registered.
	FixturesTrackedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nhl_reversion_fixtures_tracked_total",
		Help: "Total number of fixtures registered with the timeline tracker",
	})

	// ActiveFixtures tracks fixtures not yet closed or excluded.
	ActiveFixtures = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nhl_reversion_active_fixtures",
		Help: "Number of fixtures currently tracked and not closed",
	})

	// CheckpointsFiredTotal counts checkpoint due events by offset.
	CheckpointsFiredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nhl_reversion_checkpoints_fired_total",
			Help: "Total number of checkpoint due events emitted",
		},
		[]string{"offset"},
	)

	// CheckpointsMissedTotal counts checkpoints that lapsed past grace.
	CheckpointsMissedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nhl_reversion_checkpoints_missed_total",
			Help: "Total number of checkpoints missed past the grace window",
		},
		[]string{"offset"},
	)

	// CheckpointRetriesTotal counts checkpoint re-arms after failures.
	CheckpointRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nhl_reversion_checkpoint_retries_total",
			Help: "Total number of checkpoints re-armed for retry",
		},
		[]string{"offset"},
	)

	// FixturesExcludedTotal counts fixtures abandoned by reason.
	FixturesExcludedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nhl_reversion_fixtures_excluded_total",
			Help: "Total number of fixtures excluded from trading",
		},
		[]string{"reason"},
	)
)
