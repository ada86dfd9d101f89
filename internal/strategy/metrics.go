package strategy

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FavoritesIdentifiedTotal tracks fixtures where a favorite was found.
	FavoritesIdentifiedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nhl_reversion_favorites_identified_total",
		Help: "Total number of fixtures where a pre-game favorite was identified",
	})

	// FixturesQualifiedTotal tracks fixtures passing qualification.
	FixturesQualifiedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nhl_reversion_fixtures_qualified_total",
		Help: "Total number of fixtures that qualified for entry placement",
	})

	// FixturesRejectedTotal tracks qualification rejections by reason.
	FixturesRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nhl_reversion_fixtures_rejected_total",
			Help: "Total number of fixtures rejected at qualification",
		},
		[]string{"reason"},
	)

	// EntriesPlannedTotal tracks tier limit orders planned.
	EntriesPlannedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nhl_reversion_entries_planned_total",
			Help: "Total number of tier entry orders planned",
		},
		[]string{"tier"},
	)

	// ExitsSignaledTotal tracks exit signals by tier and reason.
	ExitsSignaledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nhl_reversion_exits_signaled_total",
			Help: "Total number of exit signals emitted",
		},
		[]string{"tier", "reason"},
	)
)
