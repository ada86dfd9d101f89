package gateway

import (
	"context"

	"github.com/pucklab/nhl-reversion/pkg/types"
)

// Gateway abstracts the venue's order API. The engine talks only to this
// interface; the live implementation signs requests against Kalshi and the
// simulated one fills orders from observed prices for dry runs.
type Gateway interface {
	// PlaceLimit places a resting yes-side limit buy and returns the
	// venue's handle for it.
	PlaceLimit(ctx context.Context, order *types.Order) (types.OrderHandle, error)

	// Cancel cancels a resting order. Cancelling an order that already
	// reached a terminal state is not an error.
	Cancel(ctx context.Context, handle types.OrderHandle) error

	// FillStatus reports how many contracts of the order have filled.
	FillStatus(ctx context.Context, handle types.OrderHandle) (int, types.FillState, error)

	// Sell market-sells contracts and returns the average exit price in
	// cents. fallbackCents is used when the venue does not report an
	// average fill price.
	Sell(ctx context.Context, ticker string, contracts int, fallbackCents int) (int, error)
}
