package ledger

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/pucklab/nhl-reversion/pkg/types"
	"go.uber.org/zap"
)

var testTime = time.Date(2025, 11, 1, 19, 0, 0, 0, time.UTC)

func newTestLedger() *Ledger {
	return New(Config{
		BankrollUSD:    1000,
		MaxExposurePct: 0.5,
		Logger:         zap.NewNop(),
	})
}

func tierOrder(clientID string, tier types.Tier, priceCents int, sizeUSD float64) *types.Order {
	return &types.Order{
		ClientID:   clientID,
		FixtureID:  "f1",
		Ticker:     "KXNHLGAME-25NOV01TORBOS-TOR",
		Tier:       tier,
		PriceCents: priceCents,
		SizeUSD:    sizeUSD,
		Contracts:  int(sizeUSD * 100 / float64(priceCents)),
	}
}

func TestReserve_ExposureCap(t *testing.T) {
	l := newTestLedger()

	// The standard three-tier ladder sums to 300 against a 500 cap.
	orders := []*types.Order{
		tierOrder("o1", types.TierShallow, 42, 50),
		tierOrder("o2", types.TierMedium, 38, 100),
		tierOrder("o3", types.TierDeep, 34, 150),
	}
	for _, o := range orders {
		if err := l.Reserve(o); err != nil {
			t.Fatalf("reserve %s: %v", o.ClientID, err)
		}
	}

	if got := l.Exposure(); got != 300 {
		t.Errorf("exposure = %f, want 300", got)
	}

	// A second fixture's ladder would breach the cap at its deep tier.
	o4 := tierOrder("o4", types.TierShallow, 42, 50)
	o4.FixtureID = "f2"
	if err := l.Reserve(o4); err != nil {
		t.Fatalf("reserve o4: %v", err)
	}

	o5 := tierOrder("o5", types.TierDeep, 34, 151)
	o5.FixtureID = "f2"
	err := l.Reserve(o5)
	if !errors.Is(err, types.ErrExposureExceeded) {
		t.Fatalf("expected ErrExposureExceeded, got %v", err)
	}

	// Rejection reserves nothing.
	if got := l.Exposure(); got != 350 {
		t.Errorf("exposure after rejection = %f, want 350", got)
	}
}

func TestRelease_ReturnsHeadroom(t *testing.T) {
	l := newTestLedger()

	o := tierOrder("o1", types.TierDeep, 34, 500)
	if err := l.Reserve(o); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	// Cap is fully consumed.
	if err := l.Reserve(tierOrder("o2", types.TierShallow, 42, 1)); !errors.Is(err, types.ErrExposureExceeded) {
		t.Fatalf("expected cap consumed, got %v", err)
	}

	l.Release("o1")

	if err := l.Reserve(tierOrder("o2", types.TierShallow, 42, 50)); err != nil {
		t.Fatalf("expected headroom after release, got %v", err)
	}
}

func TestOnFillObserved_ExactlyOnce(t *testing.T) {
	l := newTestLedger()
	o := tierOrder("o1", types.TierDeep, 34, 150)
	if err := l.Reserve(o); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	l.ConfirmPlaced("o1", "venue-1", testTime)

	pos, changed := l.OnFillObserved("o1", o.Contracts, testTime)
	if !changed {
		t.Fatal("expected first observation to apply")
	}
	if pos.Status != types.PositionOpen {
		t.Errorf("position status = %s, want open", pos.Status)
	}
	if pos.EntryCents != 34 {
		t.Errorf("entry = %d, want 34", pos.EntryCents)
	}
	if math.Abs(pos.SizeUSD-150) > 1e-9 {
		t.Errorf("position size = %f, want 150", pos.SizeUSD)
	}

	// Replaying the same fill count changes nothing.
	_, changed = l.OnFillObserved("o1", o.Contracts, testTime.Add(time.Minute))
	if changed {
		t.Error("expected replayed observation to be a no-op")
	}

	// Exposure is unchanged by the fill: value moved, not added.
	if got := l.Exposure(); math.Abs(got-150) > 1e-9 {
		t.Errorf("exposure after fill = %f, want 150", got)
	}
}

func TestOnFillObserved_PartialFill(t *testing.T) {
	l := newTestLedger()
	o := tierOrder("o1", types.TierMedium, 38, 100)
	if err := l.Reserve(o); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	l.ConfirmPlaced("o1", "venue-1", testTime)

	half := o.Contracts / 2
	pos, changed := l.OnFillObserved("o1", half, testTime)
	if !changed {
		t.Fatal("expected partial fill to apply")
	}

	wantSize := 100 * float64(half) / float64(o.Contracts)
	if math.Abs(pos.SizeUSD-wantSize) > 1e-9 {
		t.Errorf("partial position size = %f, want %f", pos.SizeUSD, wantSize)
	}

	// Unfilled remainder plus the position still sums to the order size.
	if got := l.Exposure(); math.Abs(got-100) > 1e-9 {
		t.Errorf("exposure after partial fill = %f, want 100", got)
	}

	// The rest fills later; the same position grows.
	pos2, changed := l.OnFillObserved("o1", o.Contracts, testTime.Add(time.Minute))
	if !changed {
		t.Fatal("expected completion fill to apply")
	}
	if pos2.ID != pos.ID {
		t.Error("expected fills to aggregate into one position")
	}
	if math.Abs(pos2.SizeUSD-100) > 1e-9 {
		t.Errorf("final position size = %f, want 100", pos2.SizeUSD)
	}
}

func TestOnFillObserved_AfterCloseIsIgnored(t *testing.T) {
	l := newTestLedger()
	o := tierOrder("o1", types.TierShallow, 42, 50)
	if err := l.Reserve(o); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	l.ConfirmPlaced("o1", "venue-1", testTime)

	half := o.Contracts / 2
	l.OnFillObserved("o1", half, testTime)
	if _, err := l.ClosePosition("o1", 45, testTime.Add(10*time.Minute), "shallow_bounce"); err != nil {
		t.Fatalf("close: %v", err)
	}

	sizeAtClose := 50 * float64(half) / float64(o.Contracts)
	pnlAtClose := l.RealizedPnL()

	// The residual order fills after the position has exited. The
	// archived record must not move.
	pos, changed := l.OnFillObserved("o1", o.Contracts, testTime.Add(15*time.Minute))
	if changed || pos != nil {
		t.Fatalf("late fill applied: pos=%+v changed=%v", pos, changed)
	}

	archived, ok := l.position("o1")
	if !ok {
		t.Fatal("archived position missing")
	}
	if archived.Status != types.PositionClosed {
		t.Errorf("status = %s, want closed", archived.Status)
	}
	if archived.Contracts != half {
		t.Errorf("contracts = %d, want %d", archived.Contracts, half)
	}
	if math.Abs(archived.SizeUSD-sizeAtClose) > 1e-9 {
		t.Errorf("size = %f, want %f", archived.SizeUSD, sizeAtClose)
	}
	if got := l.RealizedPnL(); math.Abs(got-pnlAtClose) > 1e-9 {
		t.Errorf("realized pnl moved: %f, want %f", got, pnlAtClose)
	}

	// Cancelling the residual leaves no exposure behind.
	l.MarkCancelled("o1")
	if got := l.Exposure(); math.Abs(got) > 1e-9 {
		t.Errorf("exposure = %f, want 0", got)
	}
}

func TestClosePosition(t *testing.T) {
	l := newTestLedger()
	o := tierOrder("o1", types.TierDeep, 34, 150)
	l.Reserve(o)
	l.ConfirmPlaced("o1", "venue-1", testTime)
	pos, _ := l.OnFillObserved("o1", o.Contracts, testTime)

	pnl, err := l.ClosePosition(pos.ID, 46, testTime.Add(20*time.Minute), "deep_bounce")
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if math.Abs(pnl-18) > 1e-9 {
		t.Errorf("pnl = %f, want 18", pnl)
	}

	if got := l.RealizedPnL(); math.Abs(got-18) > 1e-9 {
		t.Errorf("realized pnl = %f, want 18", got)
	}
	if got := l.Bankroll(); math.Abs(got-1018) > 1e-9 {
		t.Errorf("bankroll = %f, want 1018", got)
	}
	if got := l.Exposure(); math.Abs(got) > 1e-9 {
		t.Errorf("exposure after close = %f, want 0", got)
	}

	// Closing again is rejected and changes nothing.
	_, err = l.ClosePosition(pos.ID, 50, testTime.Add(30*time.Minute), "deep_bounce")
	if !errors.Is(err, types.ErrPositionClosed) {
		t.Fatalf("expected ErrPositionClosed, got %v", err)
	}
	if got := l.RealizedPnL(); math.Abs(got-18) > 1e-9 {
		t.Errorf("realized pnl after double close = %f, want 18", got)
	}
}

func TestForceCloseAll(t *testing.T) {
	l := newTestLedger()
	for i, spec := range []struct {
		id    string
		tier  types.Tier
		price int
		size  float64
	}{
		{"o1", types.TierShallow, 42, 50},
		{"o2", types.TierMedium, 38, 100},
		{"o3", types.TierDeep, 34, 150},
	} {
		o := tierOrder(spec.id, spec.tier, spec.price, spec.size)
		l.Reserve(o)
		l.ConfirmPlaced(spec.id, types.OrderHandle("venue-"+spec.id), testTime)
		l.OnFillObserved(spec.id, o.Contracts, testTime.Add(time.Duration(i)*time.Minute))
	}

	closed := l.ForceCloseAll("f1", testTime.Add(90*time.Minute), "window_end",
		func(*types.Position) (int, error) { return 20, nil })
	if len(closed) != 3 {
		t.Fatalf("expected 3 closed positions, got %d", len(closed))
	}

	for _, pos := range closed {
		if pos.Status != types.PositionClosed {
			t.Errorf("position %s not closed", pos.ID)
		}
		if pos.CloseReason != "window_end" {
			t.Errorf("position %s close reason = %s", pos.ID, pos.CloseReason)
		}
		if pos.ExitCents != 20 {
			t.Errorf("position %s exit = %d, want 20", pos.ID, pos.ExitCents)
		}
	}

	// (20-42)*50/100 + (20-38)*100/100 + (20-34)*150/100 = -11 - 18 - 21 = -50
	if got := l.RealizedPnL(); math.Abs(got-(-50)) > 1e-9 {
		t.Errorf("realized pnl = %f, want -50", got)
	}
	if len(l.OpenPositions("f1")) != 0 {
		t.Error("expected no open positions after force close")
	}
}

func TestForceCloseAll_ExitPriceFailureLeavesPositionOpen(t *testing.T) {
	l := newTestLedger()
	for _, id := range []string{"o1", "o2"} {
		o := tierOrder(id, types.TierShallow, 42, 50)
		l.Reserve(o)
		l.ConfirmPlaced(id, types.OrderHandle("venue-"+id), testTime)
		l.OnFillObserved(id, o.Contracts, testTime)
	}

	closed := l.ForceCloseAll("f1", testTime.Add(90*time.Minute), "window_end",
		func(pos *types.Position) (int, error) {
			if pos.ID == "o2" {
				return 0, errors.New("venue unavailable")
			}
			return 20, nil
		})

	if len(closed) != 1 {
		t.Fatalf("expected 1 closed position, got %d", len(closed))
	}
	if closed[0].ID != "o1" {
		t.Errorf("closed position = %s, want o1", closed[0].ID)
	}
	// The failed one stays open for the next attempt.
	if len(l.OpenPositions("f1")) != 1 {
		t.Errorf("expected 1 open position, got %d", len(l.OpenPositions("f1")))
	}
}

func TestMarkCancelled_FreesExposure(t *testing.T) {
	l := newTestLedger()
	o := tierOrder("o1", types.TierShallow, 42, 50)
	l.Reserve(o)
	l.ConfirmPlaced("o1", "venue-1", testTime)

	l.MarkCancelled("o1")

	if got := l.Exposure(); got != 0 {
		t.Errorf("exposure after cancel = %f, want 0", got)
	}
	if len(l.OpenOrders("f1")) != 0 {
		t.Error("expected no open orders after cancel")
	}
}
