package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OrdersPlacedTotal counts orders confirmed on the venue by tier.
	OrdersPlacedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nhl_reversion_orders_placed_total",
			Help: "Total number of limit orders placed",
		},
		[]string{"tier"},
	)

	// OrdersRejectedTotal counts orders rejected before placement.
	OrdersRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nhl_reversion_orders_rejected_total",
			Help: "Total number of orders rejected before reaching the venue",
		},
		[]string{"reason"},
	)

	// PositionsOpenedTotal counts positions opened by tier.
	PositionsOpenedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nhl_reversion_positions_opened_total",
			Help: "Total number of positions opened",
		},
		[]string{"tier"},
	)

	// PositionsClosedTotal counts positions closed by tier and reason.
	PositionsClosedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nhl_reversion_positions_closed_total",
			Help: "Total number of positions closed",
		},
		[]string{"tier", "reason"},
	)

	// LateFillsIgnoredTotal counts fill observations rejected because
	// their position had already closed.
	LateFillsIgnoredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nhl_reversion_late_fills_ignored_total",
		Help: "Total number of fill observations ignored because the position was already closed",
	})

	// OpenPositions tracks currently open positions.
	OpenPositions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nhl_reversion_open_positions",
		Help: "Number of currently open positions",
	})

	// ExposureUSD tracks dollars committed to orders and positions.
	ExposureUSD = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nhl_reversion_exposure_usd",
		Help: "Current exposure in USD across resting orders and open positions",
	})

	// RealizedPnLUSD tracks cumulative realized profit.
	RealizedPnLUSD = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nhl_reversion_realized_pnl_usd",
		Help: "Cumulative realized P&L in USD",
	})

	// BankrollUSD tracks the current bankroll.
	BankrollUSD = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nhl_reversion_bankroll_usd",
		Help: "Current bankroll in USD including realized P&L",
	})
)
