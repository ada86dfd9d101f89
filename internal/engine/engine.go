package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pucklab/nhl-reversion/internal/gateway"
	"github.com/pucklab/nhl-reversion/internal/ledger"
	"github.com/pucklab/nhl-reversion/internal/storage"
	"github.com/pucklab/nhl-reversion/internal/strategy"
	"github.com/pucklab/nhl-reversion/internal/timeline"
	"github.com/pucklab/nhl-reversion/pkg/types"
	"go.uber.org/zap"
)

const (
	discoveryInterval = 5 * time.Minute
	retainClosedFor   = 6 * time.Hour
)

// MarketData is the engine's view of the market data client.
type MarketData interface {
	FetchQuote(ctx context.Context, ticker string) (*types.Quote, error)
	FindMarketForTeam(ctx context.Context, f *types.Fixture, side types.FixtureSide) (string, error)
}

// ScheduleSource is the engine's view of the league schedule client.
type ScheduleSource interface {
	UpcomingFixtures(ctx context.Context, now time.Time) ([]*types.Fixture, error)
}

// Engine drives the whole strategy from a single-threaded poll loop:
// discover fixtures, advance their timelines, handle the checkpoints the
// tracker fires, reconcile fills, evaluate exits, and force-close at
// window end. One fixture's failure never touches another: every
// per-fixture step logs its error and moves on.
type Engine struct {
	config   Config
	logger   *zap.Logger
	rules    *strategy.Rules
	tracker  *timeline.Tracker
	ledger   *ledger.Ledger
	gateway  gateway.Gateway
	markets  MarketData
	schedule ScheduleSource
	store    storage.Storage
	clock    func() time.Time

	lastDiscovery time.Time

	ctx context.Context
	wg  sync.WaitGroup
}

// Config holds engine configuration.
type Config struct {
	PollInterval   time.Duration
	FetchTimeout   time.Duration
	OpeningOffset  time.Duration // the checkpoint that identifies the favorite
	FinalOffset    time.Duration // the checkpoint that places orders
	Clock          func() time.Time
	OnTick         func(time.Time) // optional liveness hook
	Logger         *zap.Logger
}

// New creates the engine.
func New(
	cfg Config,
	rules *strategy.Rules,
	tracker *timeline.Tracker,
	book *ledger.Ledger,
	gw gateway.Gateway,
	markets MarketData,
	sched ScheduleSource,
	store storage.Storage,
) *Engine {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.OpeningOffset == 0 {
		cfg.OpeningOffset = 6 * time.Hour
	}
	if cfg.FinalOffset == 0 {
		cfg.FinalOffset = 30 * time.Minute
	}

	return &Engine{
		config:   cfg,
		logger:   cfg.Logger,
		rules:    rules,
		tracker:  tracker,
		ledger:   book,
		gateway:  gw,
		markets:  markets,
		schedule: sched,
		store:    store,
		clock:    cfg.Clock,
	}
}

// Start runs the poll loop until the context is cancelled.
func (e *Engine) Start(ctx context.Context) error {
	e.ctx = ctx
	e.logger.Info("engine-starting",
		zap.Duration("poll-interval", e.config.PollInterval))

	e.wg.Add(1)
	go e.pollLoop()

	return nil
}

func (e *Engine) pollLoop() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.config.PollInterval)
	defer ticker.Stop()

	// First tick immediately rather than one interval in.
	e.Tick(e.ctx, e.clock())

	for {
		select {
		case <-e.ctx.Done():
			e.logger.Info("engine-stopping")
			return
		case <-ticker.C:
			e.Tick(e.ctx, e.clock())
		}
	}
}

// Close waits for the poll loop to exit.
func (e *Engine) Close() error {
	e.wg.Wait()
	e.logger.Info("engine-closed")
	return nil
}

// Tick runs one full poll cycle at the given instant.
func (e *Engine) Tick(ctx context.Context, now time.Time) {
	start := time.Now()
	defer func() {
		TicksTotal.Inc()
		TickDurationSeconds.Observe(time.Since(start).Seconds())
	}()

	e.discoverFixtures(ctx, now)

	for _, event := range e.tracker.Advance(now) {
		e.handleEvent(ctx, event)
	}

	e.reconcileFills(ctx, now)
	e.evaluateExits(ctx, now)
	e.snapshotExposure(ctx, now)

	e.tracker.RemoveClosedBefore(now.Add(-retainClosedFor))

	if e.config.OnTick != nil {
		e.config.OnTick(now)
	}
}

// discoverFixtures registers upcoming games with the tracker.
func (e *Engine) discoverFixtures(ctx context.Context, now time.Time) {
	if !e.lastDiscovery.IsZero() && now.Sub(e.lastDiscovery) < discoveryInterval {
		return
	}
	e.lastDiscovery = now

	fetchCtx, cancel := context.WithTimeout(ctx, e.config.FetchTimeout)
	defer cancel()

	fixtures, err := e.schedule.UpcomingFixtures(fetchCtx, now)
	if err != nil {
		TickErrorsTotal.WithLabelValues("discovery").Inc()
		e.logger.Error("fixture-discovery-failed", zap.Error(err))
		return
	}

	for _, f := range fixtures {
		if e.tracker.Contains(f.ID) {
			continue
		}
		if err := e.tracker.Add(f, now); err != nil {
			e.logger.Warn("fixture-registration-failed",
				zap.String("fixture-id", f.ID),
				zap.Error(err))
			continue
		}
		_ = e.store.RecordFixture(ctx, f)
	}
}

func (e *Engine) handleEvent(ctx context.Context, event timeline.Event) {
	switch event.Type {
	case timeline.EventCheckpointDue:
		e.handleCheckpoint(ctx, event)
	case timeline.EventCheckpointMissed:
		e.handleCheckpointMissed(ctx, event)
	case timeline.EventWindowStarted:
		e.tracker.SetPhase(event.FixtureID, types.PhaseInWindow)
		e.logger.Info("window-started", zap.String("fixture-id", event.FixtureID))
	case timeline.EventWindowEnded:
		e.handleWindowEnd(ctx, event)
	}
}

func (e *Engine) handleCheckpoint(ctx context.Context, event timeline.Event) {
	var err error
	switch event.Offset {
	case e.config.OpeningOffset:
		err = e.handleOpeningCheckpoint(ctx, event)
	case e.config.FinalOffset:
		err = e.handleFinalCheckpoint(ctx, event)
	default:
		err = e.handleMidCheckpoint(ctx, event)
	}

	if err == nil {
		e.tracker.MarkCheckpointDone(event.FixtureID, event.Offset)
		return
	}

	if types.IsRetryable(err) {
		TickErrorsTotal.WithLabelValues("checkpoint_transient").Inc()
		e.logger.Warn("checkpoint-retrying",
			zap.String("fixture-id", event.FixtureID),
			zap.Duration("offset", event.Offset),
			zap.Error(err))
		e.tracker.Retry(event.FixtureID, event.Offset)
		_ = e.store.RecordCheckpoint(ctx, &storage.CheckpointRecord{
			FixtureID: event.FixtureID,
			Offset:    event.Offset,
			Status:    "retried",
			At:        event.At,
		})
		return
	}

	// Hard failure: the checkpoint cannot succeed, so treat the fixture
	// the way a missed checkpoint would.
	TickErrorsTotal.WithLabelValues("checkpoint_failed").Inc()
	e.logger.Error("checkpoint-failed",
		zap.String("fixture-id", event.FixtureID),
		zap.Duration("offset", event.Offset),
		zap.Error(err))
	e.tracker.MarkCheckpointDone(event.FixtureID, event.Offset)
	if e.isGatingOffset(event.Offset) {
		e.tracker.Exclude(event.FixtureID, "checkpoint_failed")
	}
}

// isGatingOffset reports whether a checkpoint gates the fixture's
// participation. The opening and final checkpoints do; the checkpoints
// between them are observational.
func (e *Engine) isGatingOffset(offset time.Duration) bool {
	return offset == e.config.OpeningOffset || offset == e.config.FinalOffset
}

// handleOpeningCheckpoint resolves the fixture's markets, identifies the
// favorite, and gates the fixture on the opening qualification.
func (e *Engine) handleOpeningCheckpoint(ctx context.Context, event timeline.Event) error {
	fixture, _, ok := e.tracker.Fixture(event.FixtureID)
	if !ok {
		return nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, e.config.FetchTimeout)
	defer cancel()

	awayTicker, err := e.markets.FindMarketForTeam(fetchCtx, &fixture, types.SideAway)
	if err != nil {
		return fmt.Errorf("resolve away market: %w", err)
	}
	homeTicker, err := e.markets.FindMarketForTeam(fetchCtx, &fixture, types.SideHome)
	if err != nil {
		return fmt.Errorf("resolve home market: %w", err)
	}

	awayQuote, err := e.markets.FetchQuote(fetchCtx, awayTicker)
	if err != nil {
		return fmt.Errorf("fetch away quote: %w", err)
	}
	homeQuote, err := e.markets.FetchQuote(fetchCtx, homeTicker)
	if err != nil {
		return fmt.Errorf("fetch home quote: %w", err)
	}

	side, cents, found := e.rules.IdentifyFavorite(awayQuote, homeQuote)
	if !found {
		e.logger.Info("no-favorite-identified",
			zap.String("fixture-id", fixture.ID),
			zap.String("matchup", fixture.Matchup()))
		e.tracker.Exclude(fixture.ID, "no_favorite")
		return nil
	}

	favTicker := awayTicker
	favQuote := awayQuote
	if side == types.SideHome {
		favTicker = homeTicker
		favQuote = homeQuote
	}

	qualified, reason := e.rules.Qualify(cents, favQuote.Volume)

	e.tracker.UpdateFixture(fixture.ID, func(f *types.Fixture) {
		f.AwayTicker = awayTicker
		f.HomeTicker = homeTicker
		f.AwayOpenCents = awayQuote.CurrentCents()
		f.HomeOpenCents = homeQuote.CurrentCents()
		f.FavoriteSide = side
		f.FavoriteTicker = favTicker
		f.FavoriteOpenCents = cents
		f.Qualified = qualified
	})

	// The opening checkpoint gates only on the price threshold. Volume
	// can still build before puck drop; it is binding at the final
	// qualification.
	if !qualified && reason == strategy.ReasonBelowThreshold {
		e.logger.Info("fixture-not-qualified",
			zap.String("fixture-id", fixture.ID),
			zap.String("reason", reason),
			zap.Int("favorite-cents", cents))
		e.tracker.Exclude(fixture.ID, reason)
	} else {
		e.tracker.SetPhase(fixture.ID, types.PhasePreEventPolling)
		e.logger.Info("favorite-identified",
			zap.String("fixture-id", fixture.ID),
			zap.String("favorite", favTicker),
			zap.Int("favorite-cents", cents),
			zap.Int64("volume", favQuote.Volume),
			zap.Bool("qualified", qualified))
	}

	updated, _, _ := e.tracker.Fixture(fixture.ID)
	_ = e.store.RecordFixture(ctx, &updated)
	_ = e.store.RecordCheckpoint(ctx, &storage.CheckpointRecord{
		FixtureID:      fixture.ID,
		Offset:         event.Offset,
		Status:         "completed",
		FavoriteTicker: favTicker,
		PriceCents:     cents,
		Volume:         favQuote.Volume,
		At:             event.At,
	})

	return nil
}

// handleMidCheckpoint re-observes the favorite between the opening and
// final checkpoints. Drift here is recorded, never acted on.
func (e *Engine) handleMidCheckpoint(ctx context.Context, event timeline.Event) error {
	fixture, _, ok := e.tracker.Fixture(event.FixtureID)
	if !ok || fixture.FavoriteTicker == "" {
		return nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, e.config.FetchTimeout)
	defer cancel()

	quote, err := e.markets.FetchQuote(fetchCtx, fixture.FavoriteTicker)
	if err != nil {
		return fmt.Errorf("fetch favorite quote: %w", err)
	}

	cents := quote.CurrentCents()
	if cents < fixture.FavoriteOpenCents {
		e.logger.Info("favorite-price-drifting",
			zap.String("fixture-id", fixture.ID),
			zap.Int("open-cents", fixture.FavoriteOpenCents),
			zap.Int("current-cents", cents))
	}

	e.tracker.SetPhase(fixture.ID, types.PhaseQualifying)
	_ = e.store.RecordCheckpoint(ctx, &storage.CheckpointRecord{
		FixtureID:      fixture.ID,
		Offset:         event.Offset,
		Status:         "completed",
		FavoriteTicker: fixture.FavoriteTicker,
		PriceCents:     cents,
		Volume:         quote.Volume,
		At:             event.At,
	})

	return nil
}

// handleFinalCheckpoint re-qualifies the favorite and places the tier
// ladder.
func (e *Engine) handleFinalCheckpoint(ctx context.Context, event timeline.Event) error {
	fixture, _, ok := e.tracker.Fixture(event.FixtureID)
	if !ok || fixture.FavoriteTicker == "" {
		return nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, e.config.FetchTimeout)
	defer cancel()

	quote, err := e.markets.FetchQuote(fetchCtx, fixture.FavoriteTicker)
	if err != nil {
		return fmt.Errorf("fetch favorite quote: %w", err)
	}

	cents := quote.CurrentCents()
	qualified, reason := e.rules.Qualify(cents, quote.Volume)
	_ = e.store.RecordCheckpoint(ctx, &storage.CheckpointRecord{
		FixtureID:      fixture.ID,
		Offset:         event.Offset,
		Status:         "completed",
		FavoriteTicker: fixture.FavoriteTicker,
		PriceCents:     cents,
		Volume:         quote.Volume,
		At:             event.At,
	})

	if !qualified {
		e.logger.Info("fixture-disqualified-at-final-checkpoint",
			zap.String("fixture-id", fixture.ID),
			zap.String("reason", reason),
			zap.Int("favorite-cents", cents))
		e.tracker.Exclude(fixture.ID, reason)
		return nil
	}

	placed := 0
	for _, plan := range e.rules.PlanEntries(&fixture) {
		order := &types.Order{
			ClientID:   uuid.NewString(),
			FixtureID:  fixture.ID,
			Ticker:     fixture.FavoriteTicker,
			Tier:       plan.Tier,
			PriceCents: plan.PriceCents,
			SizeUSD:    plan.SizeUSD,
			Contracts:  plan.Contracts,
		}

		if err := e.ledger.Reserve(order); err != nil {
			e.logger.Warn("tier-order-not-reserved",
				zap.String("fixture-id", fixture.ID),
				zap.String("tier", string(plan.Tier)),
				zap.Error(err))
			continue
		}

		handle, err := e.gateway.PlaceLimit(fetchCtx, order)
		if err != nil {
			e.ledger.Release(order.ClientID)
			e.logger.Error("tier-order-placement-failed",
				zap.String("fixture-id", fixture.ID),
				zap.String("tier", string(plan.Tier)),
				zap.Error(err))
			continue
		}

		e.ledger.ConfirmPlaced(order.ClientID, handle, event.At)
		_ = e.store.RecordOrder(ctx, order)
		placed++
	}

	if placed > 0 {
		e.tracker.SetPhase(fixture.ID, types.PhaseOrdersPlaced)
	} else {
		e.tracker.Exclude(fixture.ID, "no_orders_placed")
	}

	return nil
}

func (e *Engine) handleCheckpointMissed(ctx context.Context, event timeline.Event) {
	_ = e.store.RecordCheckpoint(ctx, &storage.CheckpointRecord{
		FixtureID: event.FixtureID,
		Offset:    event.Offset,
		Status:    "missed",
		At:        event.At,
	})

	// Missing the opening or final checkpoint means the fixture was
	// never vetted, or orders were never placed, so it is abandoned.
	// Observational checkpoints between them cost nothing to miss.
	if !e.isGatingOffset(event.Offset) {
		e.logger.Warn("checkpoint-missed",
			zap.String("fixture-id", event.FixtureID),
			zap.Duration("offset", event.Offset))
		return
	}

	e.tracker.Exclude(event.FixtureID, "checkpoint_missed")
}

// reconcileFills polls fill status for every resting order on fixtures
// that have placed their ladder.
func (e *Engine) reconcileFills(ctx context.Context, now time.Time) {
	for _, view := range e.tracker.Snapshot() {
		if view.Excluded || view.Phase < types.PhaseOrdersPlaced || view.Phase == types.PhaseClosed {
			continue
		}

		for _, order := range e.ledger.OpenOrders(view.Fixture.ID) {
			if order.Handle == "" {
				continue
			}

			fetchCtx, cancel := context.WithTimeout(ctx, e.config.FetchTimeout)
			filled, state, err := e.gateway.FillStatus(fetchCtx, order.Handle)
			cancel()
			if err != nil {
				TickErrorsTotal.WithLabelValues("fill_status").Inc()
				e.logger.Warn("fill-status-failed",
					zap.String("fixture-id", view.Fixture.ID),
					zap.String("handle", string(order.Handle)),
					zap.Error(err))
				continue
			}

			if state == types.FillStateCancelled {
				e.ledger.MarkCancelled(order.ClientID)
				continue
			}

			pos, changed := e.ledger.OnFillObserved(order.ClientID, filled, now)
			if changed {
				updated := *order
				updated.FilledCount = filled
				updated.State = state
				_ = e.store.RecordOrder(ctx, &updated)
				_ = e.store.RecordPosition(ctx, pos)
			}
		}
	}
}

// evaluateExits checks bounce targets for open positions on in-window
// fixtures.
func (e *Engine) evaluateExits(ctx context.Context, now time.Time) {
	for _, view := range e.tracker.Snapshot() {
		if view.Excluded || view.Phase != types.PhaseInWindow {
			continue
		}

		positions := e.ledger.OpenPositions(view.Fixture.ID)
		if len(positions) == 0 {
			continue
		}

		fetchCtx, cancel := context.WithTimeout(ctx, e.config.FetchTimeout)
		quote, err := e.markets.FetchQuote(fetchCtx, view.Fixture.FavoriteTicker)
		cancel()
		if err != nil {
			TickErrorsTotal.WithLabelValues("exit_quote").Inc()
			e.logger.Warn("exit-quote-failed",
				zap.String("fixture-id", view.Fixture.ID),
				zap.Error(err))
			continue
		}

		current := quote.CurrentCents()
		for _, pos := range positions {
			shouldExit, reason := e.rules.ShouldExit(pos, current)
			if !shouldExit {
				continue
			}
			e.closePosition(ctx, pos, current, now, reason)
		}
	}
}

func (e *Engine) closePosition(ctx context.Context, pos *types.Position, currentCents int, now time.Time, reason string) {
	sellCtx, cancel := context.WithTimeout(ctx, e.config.FetchTimeout)
	exitCents, err := e.gateway.Sell(sellCtx, pos.Ticker, pos.Contracts, currentCents)
	cancel()
	if err != nil {
		TickErrorsTotal.WithLabelValues("sell").Inc()
		e.logger.Error("position-sell-failed",
			zap.String("fixture-id", pos.FixtureID),
			zap.String("position-id", pos.ID),
			zap.Error(err))
		return
	}

	_, err = e.ledger.ClosePosition(pos.ID, exitCents, now, reason)
	if err != nil {
		e.logger.Warn("position-close-skipped",
			zap.String("position-id", pos.ID),
			zap.Error(err))
		return
	}

	e.cancelResidualOrder(ctx, pos)

	for _, closed := range e.ledger.AllPositions() {
		if closed.ID == pos.ID {
			_ = e.store.RecordPosition(ctx, closed)
			break
		}
	}
}

// cancelResidualOrder pulls the resting remainder of a partially filled
// order once its position has closed. Without this a late fill would
// hand the bot contracts with no open position behind them.
func (e *Engine) cancelResidualOrder(ctx context.Context, pos *types.Position) {
	for _, order := range e.ledger.OpenOrders(pos.FixtureID) {
		if order.ClientID != pos.ID {
			continue
		}

		if order.Handle != "" {
			cancelCtx, cancel := context.WithTimeout(ctx, e.config.FetchTimeout)
			err := e.gateway.Cancel(cancelCtx, order.Handle)
			cancel()
			if err != nil {
				e.logger.Warn("residual-order-cancel-failed",
					zap.String("fixture-id", pos.FixtureID),
					zap.String("handle", string(order.Handle)),
					zap.Error(err))
			}
		}

		e.ledger.MarkCancelled(order.ClientID)
		cancelled := *order
		cancelled.State = types.FillStateCancelled
		_ = e.store.RecordOrder(ctx, &cancelled)
	}
}

// handleWindowEnd cancels the remaining ladder and force-closes whatever
// filled. The window boundary is final: nothing stays open past it.
func (e *Engine) handleWindowEnd(ctx context.Context, event timeline.Event) {
	fixtureID := event.FixtureID
	fixture, _, ok := e.tracker.Fixture(fixtureID)
	if !ok {
		return
	}

	for _, order := range e.ledger.OpenOrders(fixtureID) {
		if order.Handle != "" {
			cancelCtx, cancel := context.WithTimeout(ctx, e.config.FetchTimeout)
			err := e.gateway.Cancel(cancelCtx, order.Handle)
			cancel()
			if err != nil {
				e.logger.Warn("order-cancel-failed",
					zap.String("fixture-id", fixtureID),
					zap.String("handle", string(order.Handle)),
					zap.Error(err))
			}
		}
		e.ledger.MarkCancelled(order.ClientID)
		cancelled := *order
		cancelled.State = types.FillStateCancelled
		_ = e.store.RecordOrder(ctx, &cancelled)
	}

	if len(e.ledger.OpenPositions(fixtureID)) == 0 {
		e.logger.Info("window-ended-flat", zap.String("fixture-id", fixtureID))
		return
	}

	// Best-effort current price for the fallback; entry price if even
	// that is unavailable.
	fallback := 0
	fetchCtx, cancel := context.WithTimeout(ctx, e.config.FetchTimeout)
	quote, err := e.markets.FetchQuote(fetchCtx, fixture.FavoriteTicker)
	cancel()
	if err == nil {
		fallback = quote.CurrentCents()
	}

	closed := e.ledger.ForceCloseAll(fixtureID, event.At, "window_end", func(pos *types.Position) (int, error) {
		posFallback := fallback
		if posFallback == 0 {
			posFallback = pos.EntryCents
		}
		sellCtx, sellCancel := context.WithTimeout(ctx, e.config.FetchTimeout)
		defer sellCancel()
		return e.gateway.Sell(sellCtx, pos.Ticker, pos.Contracts, posFallback)
	})

	for _, pos := range closed {
		_ = e.store.RecordPosition(ctx, pos)
	}

	e.logger.Info("window-ended-force-closed",
		zap.String("fixture-id", fixtureID),
		zap.Int("positions", len(closed)))
}

// snapshotExposure records the account-level telemetry row for this tick.
func (e *Engine) snapshotExposure(ctx context.Context, now time.Time) {
	open := 0
	for _, pos := range e.ledger.AllPositions() {
		if pos.Status == types.PositionOpen {
			open++
		}
	}

	_ = e.store.RecordExposure(ctx, &storage.ExposureSnapshot{
		At:             now,
		ExposureUSD:    e.ledger.Exposure(),
		BankrollUSD:    e.ledger.Bankroll(),
		RealizedPnLUSD: e.ledger.RealizedPnL(),
		OpenPositions:  open,
	})
}
