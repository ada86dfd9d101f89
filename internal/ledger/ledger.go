package ledger

import (
	"sync"
	"time"

	"github.com/pucklab/nhl-reversion/internal/strategy"
	"github.com/pucklab/nhl-reversion/pkg/types"
	"go.uber.org/zap"
)

// Ledger is the book of record for resting orders and open positions. It
// enforces the exposure cap at reservation time, before any order reaches
// the venue, and it is the only component allowed to mutate order or
// position state. A single mutex guards everything: volumes here are a
// handful of fixtures a night, not a hot path.
type Ledger struct {
	mu     sync.Mutex
	config Config
	logger *zap.Logger

	orders    map[string]*types.Order    // keyed by client ID
	positions map[string]*types.Position // keyed by position ID

	bankrollUSD float64
	realizedPnL float64
}

// Config holds ledger configuration.
type Config struct {
	BankrollUSD    float64
	MaxExposurePct float64
	Logger         *zap.Logger
}

// New creates a new ledger.
func New(cfg Config) *Ledger {
	return &Ledger{
		config:      cfg,
		logger:      cfg.Logger,
		orders:      make(map[string]*types.Order),
		positions:   make(map[string]*types.Position),
		bankrollUSD: cfg.BankrollUSD,
	}
}

// Reserve admits an order against the exposure cap and records it. The
// check and the reservation happen under one lock acquisition so two
// orders cannot both pass against the same headroom. The order is not yet
// on the venue: the caller places it next and either confirms or releases.
func (l *Ledger) Reserve(order *types.Order) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	capUSD := l.bankrollUSD * l.config.MaxExposurePct
	exposure := l.exposureLocked()
	if exposure+order.SizeUSD > capUSD {
		OrdersRejectedTotal.WithLabelValues("exposure_cap").Inc()
		l.logger.Warn("order-rejected-exposure-cap",
			zap.String("fixture-id", order.FixtureID),
			zap.String("tier", string(order.Tier)),
			zap.Float64("order-size-usd", order.SizeUSD),
			zap.Float64("current-exposure-usd", exposure),
			zap.Float64("cap-usd", capUSD))
		return types.ErrExposureExceeded
	}

	order.State = types.FillStateOpen
	l.orders[order.ClientID] = order
	ExposureUSD.Set(exposure + order.SizeUSD)

	return nil
}

// ConfirmPlaced records the venue handle for a reserved order.
func (l *Ledger) ConfirmPlaced(clientID string, handle types.OrderHandle, at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	order, ok := l.orders[clientID]
	if !ok {
		return
	}

	order.Handle = handle
	order.PlacedAt = at
	OrdersPlacedTotal.WithLabelValues(string(order.Tier)).Inc()

	l.logger.Info("order-placed",
		zap.String("fixture-id", order.FixtureID),
		zap.String("ticker", order.Ticker),
		zap.String("tier", string(order.Tier)),
		zap.Int("price-cents", order.PriceCents),
		zap.Float64("size-usd", order.SizeUSD),
		zap.Int("contracts", order.Contracts),
		zap.String("handle", string(handle)))
}

// Release drops a reserved order whose venue placement failed, returning
// its headroom to the cap.
func (l *Ledger) Release(clientID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.orders, clientID)
	ExposureUSD.Set(l.exposureLocked())
}

// MarkCancelled moves an order to the cancelled state.
func (l *Ledger) MarkCancelled(clientID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	order, ok := l.orders[clientID]
	if !ok {
		return
	}

	order.State = types.FillStateCancelled
	ExposureUSD.Set(l.exposureLocked())
}

// OnFillObserved reconciles an observed fill count against the order's
// recorded count. Only the delta beyond what was already seen takes
// effect, so replayed observations are no-ops: fills apply exactly once
// no matter how often the venue reports them. A fill arriving after the
// position has closed is dropped. Returns the position and whether this
// observation changed anything.
func (l *Ledger) OnFillObserved(clientID string, filledCount int, at time.Time) (*types.Position, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	order, ok := l.orders[clientID]
	if !ok {
		return nil, false
	}

	if filledCount <= order.FilledCount {
		return nil, false
	}
	if filledCount > order.Contracts {
		filledCount = order.Contracts
	}

	pos := l.positionForOrderLocked(order)
	if pos != nil && pos.Status == types.PositionClosed {
		// The position already exited and its archived P&L is final: a
		// fill straggling in after the close must never resize it. The
		// engine cancels the residual order when it closes early, so
		// this is the backstop for a fill that raced the cancel.
		LateFillsIgnoredTotal.Inc()
		l.logger.Warn("fill-after-close-ignored",
			zap.String("fixture-id", order.FixtureID),
			zap.String("order-client-id", clientID),
			zap.Int("observed", filledCount),
			zap.Int("recorded", order.FilledCount))
		return nil, false
	}

	order.FilledCount = filledCount
	if filledCount == order.Contracts {
		order.State = types.FillStateFilled
	} else {
		order.State = types.FillStatePartiallyFilled
	}

	if pos == nil {
		pos = &types.Position{
			ID:          order.ClientID,
			OrderHandle: order.Handle,
			FixtureID:   order.FixtureID,
			Ticker:      order.Ticker,
			Tier:        order.Tier,
			EntryCents:  order.PriceCents,
			OpenedAt:    at,
			Status:      types.PositionOpen,
		}
		l.positions[pos.ID] = pos
		PositionsOpenedTotal.WithLabelValues(string(order.Tier)).Inc()
		OpenPositions.Inc()
	}

	pos.Contracts = order.FilledCount
	pos.SizeUSD = order.SizeUSD * float64(order.FilledCount) / float64(order.Contracts)
	ExposureUSD.Set(l.exposureLocked())

	l.logger.Info("fill-observed",
		zap.String("fixture-id", order.FixtureID),
		zap.String("tier", string(order.Tier)),
		zap.Int("filled", order.FilledCount),
		zap.Int("contracts", order.Contracts),
		zap.Float64("position-size-usd", pos.SizeUSD))

	return pos, true
}

// ClosePosition realizes a position at the given exit price. Closing an
// already-closed position returns ErrPositionClosed and changes nothing.
func (l *Ledger) ClosePosition(positionID string, exitCents int, at time.Time, reason string) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.positions[positionID]
	if !ok {
		return 0, types.ErrOrderNotFound
	}
	if pos.Status == types.PositionClosed {
		return 0, types.ErrPositionClosed
	}

	pnl := strategy.PnLUSD(pos.EntryCents, exitCents, pos.SizeUSD)

	pos.Status = types.PositionClosed
	pos.ExitCents = exitCents
	pos.ClosedAt = at
	pos.PnLUSD = pnl
	pos.CloseReason = reason

	l.realizedPnL += pnl
	l.bankrollUSD += pnl

	PositionsClosedTotal.WithLabelValues(string(pos.Tier), reason).Inc()
	RealizedPnLUSD.Set(l.realizedPnL)
	BankrollUSD.Set(l.bankrollUSD)
	OpenPositions.Dec()
	ExposureUSD.Set(l.exposureLocked())

	l.logger.Info("position-closed",
		zap.String("fixture-id", pos.FixtureID),
		zap.String("tier", string(pos.Tier)),
		zap.Int("entry-cents", pos.EntryCents),
		zap.Int("exit-cents", exitCents),
		zap.Float64("pnl-usd", pnl),
		zap.String("reason", reason))

	return pnl, nil
}

// ForceCloseAll closes every open position on a fixture, asking exitFor
// for each position's exit price. A position whose exit price cannot be
// determined stays open for the next attempt. Returns the closed
// positions. Used at window end.
func (l *Ledger) ForceCloseAll(fixtureID string, at time.Time, reason string, exitFor func(*types.Position) (int, error)) []*types.Position {
	open := l.OpenPositions(fixtureID)

	closed := make([]*types.Position, 0, len(open))
	for _, pos := range open {
		exitCents, err := exitFor(pos)
		if err != nil {
			l.logger.Error("force-close-exit-price-failed",
				zap.String("fixture-id", fixtureID),
				zap.String("position-id", pos.ID),
				zap.Error(err))
			continue
		}
		if _, err := l.ClosePosition(pos.ID, exitCents, at, reason); err != nil {
			continue
		}
		snapshot, ok := l.position(pos.ID)
		if ok {
			closed = append(closed, snapshot)
		}
	}

	return closed
}

// OpenOrders returns copies of non-terminal orders for a fixture.
func (l *Ledger) OpenOrders(fixtureID string) []*types.Order {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []*types.Order
	for _, order := range l.orders {
		if order.FixtureID != fixtureID || order.State.Terminal() {
			continue
		}
		copied := *order
		out = append(out, &copied)
	}

	return out
}

// OpenPositions returns copies of open positions for a fixture.
func (l *Ledger) OpenPositions(fixtureID string) []*types.Position {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []*types.Position
	for _, pos := range l.positions {
		if pos.FixtureID != fixtureID || pos.Status != types.PositionOpen {
			continue
		}
		copied := *pos
		out = append(out, &copied)
	}

	return out
}

// AllPositions returns copies of every position, open and closed.
func (l *Ledger) AllPositions() []*types.Position {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]*types.Position, 0, len(l.positions))
	for _, pos := range l.positions {
		copied := *pos
		out = append(out, &copied)
	}

	return out
}

// Exposure returns the dollars currently committed to resting orders and
// open positions.
func (l *Ledger) Exposure() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.exposureLocked()
}

// Bankroll returns the current bankroll including realized P&L.
func (l *Ledger) Bankroll() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.bankrollUSD
}

// RealizedPnL returns total realized profit since start.
func (l *Ledger) RealizedPnL() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.realizedPnL
}

// exposureLocked sums the unfilled value of resting orders plus the value
// of open positions. A filled contract is counted once: its value moves
// from the order's side of the sum to the position's.
func (l *Ledger) exposureLocked() float64 {
	total := 0.0

	for _, order := range l.orders {
		if order.State.Terminal() {
			continue
		}
		unfilled := order.SizeUSD
		if order.Contracts > 0 {
			unfilled = order.SizeUSD * float64(order.Contracts-order.FilledCount) / float64(order.Contracts)
		}
		total += unfilled
	}

	for _, pos := range l.positions {
		if pos.Status == types.PositionOpen {
			total += pos.SizeUSD
		}
	}

	return total
}

func (l *Ledger) positionForOrderLocked(order *types.Order) *types.Position {
	return l.positions[order.ClientID]
}

func (l *Ledger) position(id string) (*types.Position, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.positions[id]
	if !ok {
		return nil, false
	}
	copied := *pos
	return &copied, true
}
