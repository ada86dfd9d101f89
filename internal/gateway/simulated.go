package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pucklab/nhl-reversion/pkg/types"
	"go.uber.org/zap"
)

func newClientID() string {
	return uuid.NewString()
}

// PriceFn returns the current yes price in cents for a ticker.
type PriceFn func(ctx context.Context, ticker string) (int, error)

type simOrder struct {
	ticker     string
	priceCents int
	contracts  int
	filled     int
	state      types.FillState
}

// Simulated is the dry-run gateway. No order ever reaches the venue:
// limit orders rest locally and fill in full whenever the observed price
// trades at or through the limit, and sells execute at the observed price.
type Simulated struct {
	mu      sync.Mutex
	logger  *zap.Logger
	priceFn PriceFn
	orders  map[types.OrderHandle]*simOrder
	seq     int
}

// NewSimulated creates a dry-run gateway fed by the given price source.
func NewSimulated(priceFn PriceFn, logger *zap.Logger) *Simulated {
	return &Simulated{
		logger:  logger,
		priceFn: priceFn,
		orders:  make(map[types.OrderHandle]*simOrder),
	}
}

// PlaceLimit rests the order locally.
func (s *Simulated) PlaceLimit(ctx context.Context, order *types.Order) (types.OrderHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	handle := types.OrderHandle(fmt.Sprintf("sim-%d", s.seq))
	s.orders[handle] = &simOrder{
		ticker:     order.Ticker,
		priceCents: order.PriceCents,
		contracts:  order.Contracts,
		state:      types.FillStateOpen,
	}

	s.logger.Info("sim-order-placed",
		zap.String("ticker", order.Ticker),
		zap.String("handle", string(handle)),
		zap.Int("price-cents", order.PriceCents),
		zap.Int("contracts", order.Contracts))

	return handle, nil
}

// Cancel marks a resting order cancelled.
func (s *Simulated) Cancel(ctx context.Context, handle types.OrderHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[handle]
	if !ok || order.state.Terminal() {
		return nil
	}

	order.state = types.FillStateCancelled
	s.logger.Info("sim-order-cancelled", zap.String("handle", string(handle)))
	return nil
}

// FillStatus checks the observed price against the resting limit and
// fills the whole order when price trades at or through it.
func (s *Simulated) FillStatus(ctx context.Context, handle types.OrderHandle) (int, types.FillState, error) {
	s.mu.Lock()
	order, ok := s.orders[handle]
	s.mu.Unlock()

	if !ok {
		return 0, "", types.ErrOrderNotFound
	}

	if order.state.Terminal() {
		return order.filled, order.state, nil
	}

	current, err := s.priceFn(ctx, order.ticker)
	if err != nil {
		return order.filled, order.state, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if current > 0 && current <= order.priceCents && order.state == types.FillStateOpen {
		order.filled = order.contracts
		order.state = types.FillStateFilled
		s.logger.Info("sim-order-filled",
			zap.String("handle", string(handle)),
			zap.String("ticker", order.ticker),
			zap.Int("limit-cents", order.priceCents),
			zap.Int("observed-cents", current))
	}

	return order.filled, order.state, nil
}

// Sell executes at the observed price, falling back when no price is
// available.
func (s *Simulated) Sell(ctx context.Context, ticker string, contracts, fallbackCents int) (int, error) {
	current, err := s.priceFn(ctx, ticker)
	if err != nil || current <= 0 {
		current = fallbackCents
	}

	s.logger.Info("sim-position-sold",
		zap.String("ticker", ticker),
		zap.Int("contracts", contracts),
		zap.Int("exit-cents", current))

	return current, nil
}
