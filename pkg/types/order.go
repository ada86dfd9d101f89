package types

import "time"

// Tier names a position-sizing tier. The tier table itself (prices,
// multipliers, exit targets) lives in configuration.
type Tier string

const (
	TierShallow Tier = "shallow"
	TierMedium  Tier = "medium"
	TierDeep    Tier = "deep"
)

// FillState is an order's fill state at the venue.
type FillState string

const (
	FillStateOpen            FillState = "open"
	FillStatePartiallyFilled FillState = "partially_filled"
	FillStateFilled          FillState = "filled"
	FillStateCancelled       FillState = "cancelled"
)

// Terminal reports whether the state can no longer change.
func (s FillState) Terminal() bool {
	return s == FillStateFilled || s == FillStateCancelled
}

// OrderHandle identifies an order at the venue.
type OrderHandle string

// Order is a resting limit order owned by the ledger. At most one order
// exists per (fixture, tier).
type Order struct {
	Handle        OrderHandle
	ClientID      string
	FixtureID     string
	Ticker        string
	Tier          Tier
	PriceCents    int
	SizeUSD       float64 // reserved notional, counts toward exposure while open
	Contracts     int
	State         FillState
	FilledCount   int
	PlacedAt      time.Time
}

// PositionStatus is a position's lifecycle status.
type PositionStatus string

const (
	PositionOpen   PositionStatus = "open"
	PositionClosed PositionStatus = "closed"
)

// Position is an open or archived holding created from a filled order.
type Position struct {
	ID             string
	OrderHandle    OrderHandle
	FixtureID      string
	Ticker         string
	Tier           Tier
	EntryCents     int
	SizeUSD        float64
	Contracts      int
	OpenedAt       time.Time
	Status         PositionStatus
	ExitCents      int
	ClosedAt       time.Time
	PnLUSD         float64
	CloseReason    string
}
