package strategy

import (
	"math"
	"testing"

	"github.com/pucklab/nhl-reversion/pkg/config"
	"github.com/pucklab/nhl-reversion/pkg/types"
	"go.uber.org/zap"
)

func testConfig() Config {
	return Config{
		FavoriteThresholdCents: 57,
		LiquidityFloor:         50000,
		SkipBandLowCents:       46,
		SkipBandHighCents:      50,
		DeepBounceCents:        46,
		BankrollUSD:            1000,
		BaseSizeFraction:       0.1,
		GlobalMultiplier:       1.0,
		MinOrderUnitUSD:        1.0,
		Tiers: []config.TierSpec{
			{Name: types.TierShallow, PriceCents: 42, Multiplier: 0.5, CeilingCents: 45, TargetMinCents: 3, TargetMaxCents: 6},
			{Name: types.TierMedium, PriceCents: 38, Multiplier: 1.0, CeilingCents: 40, TargetMinCents: 10, TargetMaxCents: 15},
			{Name: types.TierDeep, PriceCents: 34, Multiplier: 1.5, CeilingCents: 35, TargetMinCents: 10, TargetMaxCents: 15},
		},
		Logger: zap.NewNop(),
	}
}

func TestIdentifyFavorite(t *testing.T) {
	rules := New(testConfig())

	t.Run("away_favorite", func(t *testing.T) {
		side, cents, ok := rules.IdentifyFavorite(
			&types.Quote{LastCents: 62},
			&types.Quote{LastCents: 38},
		)
		if !ok {
			t.Fatal("expected favorite to be identified")
		}
		if side != types.SideAway {
			t.Errorf("expected away favorite, got %s", side)
		}
		if cents != 62 {
			t.Errorf("expected favorite price 62, got %d", cents)
		}
	})

	t.Run("home_favorite", func(t *testing.T) {
		side, cents, ok := rules.IdentifyFavorite(
			&types.Quote{LastCents: 41},
			&types.Quote{LastCents: 59},
		)
		if !ok {
			t.Fatal("expected favorite to be identified")
		}
		if side != types.SideHome {
			t.Errorf("expected home favorite, got %s", side)
		}
		if cents != 59 {
			t.Errorf("expected favorite price 59, got %d", cents)
		}
	})

	t.Run("tie_means_no_favorite", func(t *testing.T) {
		_, _, ok := rules.IdentifyFavorite(
			&types.Quote{LastCents: 50},
			&types.Quote{LastCents: 50},
		)
		if ok {
			t.Error("expected no favorite on tied prices")
		}
	})

	t.Run("missing_quote", func(t *testing.T) {
		_, _, ok := rules.IdentifyFavorite(&types.Quote{LastCents: 62}, nil)
		if ok {
			t.Error("expected no favorite with missing quote")
		}
	})

	t.Run("falls_back_to_bid_without_last", func(t *testing.T) {
		side, cents, ok := rules.IdentifyFavorite(
			&types.Quote{YesBidCents: 61},
			&types.Quote{YesBidCents: 37},
		)
		if !ok {
			t.Fatal("expected favorite to be identified from bid")
		}
		if side != types.SideAway || cents != 61 {
			t.Errorf("expected away@61, got %s@%d", side, cents)
		}
	})
}

func TestQualify(t *testing.T) {
	rules := New(testConfig())

	tests := []struct {
		name       string
		cents      int
		volume     int64
		wantOK     bool
		wantReason string
	}{
		{name: "qualified", cents: 62, volume: 80000, wantOK: true},
		{name: "at_threshold", cents: 57, volume: 50000, wantOK: true},
		{name: "below_threshold", cents: 56, volume: 80000, wantOK: false, wantReason: "below_threshold"},
		{name: "illiquid", cents: 62, volume: 49999, wantOK: false, wantReason: "illiquid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, reason := rules.Qualify(tt.cents, tt.volume)
			if ok != tt.wantOK {
				t.Errorf("Qualify(%d, %d) = %v, want %v", tt.cents, tt.volume, ok, tt.wantOK)
			}
			if reason != tt.wantReason {
				t.Errorf("reason = %q, want %q", reason, tt.wantReason)
			}
		})
	}
}

func TestPlanEntries(t *testing.T) {
	rules := New(testConfig())
	fixture := &types.Fixture{ID: "2025020412"}

	plans := rules.PlanEntries(fixture)
	if len(plans) != 3 {
		t.Fatalf("expected 3 entry plans, got %d", len(plans))
	}

	want := []struct {
		tier      types.Tier
		price     int
		sizeUSD   float64
		contracts int
	}{
		{types.TierShallow, 42, 50, 119},
		{types.TierMedium, 38, 100, 263},
		{types.TierDeep, 34, 150, 441},
	}

	for i, w := range want {
		plan := plans[i]
		if plan.Tier != w.tier {
			t.Errorf("plan %d: tier = %s, want %s", i, plan.Tier, w.tier)
		}
		if plan.PriceCents != w.price {
			t.Errorf("tier %s: price = %d, want %d", w.tier, plan.PriceCents, w.price)
		}
		if plan.SizeUSD != w.sizeUSD {
			t.Errorf("tier %s: size = %f, want %f", w.tier, plan.SizeUSD, w.sizeUSD)
		}
		if plan.Contracts != w.contracts {
			t.Errorf("tier %s: contracts = %d, want %d", w.tier, plan.Contracts, w.contracts)
		}
	}
}

func TestPlanEntries_GlobalMultiplier(t *testing.T) {
	cfg := testConfig()
	cfg.GlobalMultiplier = 0.5
	rules := New(cfg)

	plans := rules.PlanEntries(&types.Fixture{ID: "2025020412"})
	if len(plans) != 3 {
		t.Fatalf("expected 3 entry plans, got %d", len(plans))
	}

	if plans[0].SizeUSD != 25 {
		t.Errorf("shallow size = %f, want 25", plans[0].SizeUSD)
	}
	if plans[2].SizeUSD != 75 {
		t.Errorf("deep size = %f, want 75", plans[2].SizeUSD)
	}
}

func TestPlanEntries_DropsDustTiers(t *testing.T) {
	cfg := testConfig()
	cfg.BankrollUSD = 10
	cfg.MinOrderUnitUSD = 1.0
	rules := New(cfg)

	// base = 1.0, shallow = 0.5 rounds down to 0 and is dropped
	plans := rules.PlanEntries(&types.Fixture{ID: "2025020412"})
	if len(plans) != 2 {
		t.Fatalf("expected shallow tier dropped, got %d plans", len(plans))
	}
	if plans[0].Tier != types.TierMedium {
		t.Errorf("first surviving tier = %s, want medium", plans[0].Tier)
	}
}

func TestTierFor(t *testing.T) {
	rules := New(testConfig())

	tests := []struct {
		cents    int
		wantTier types.Tier
		wantOK   bool
	}{
		{cents: 42, wantTier: types.TierShallow, wantOK: true},
		{cents: 45, wantTier: types.TierShallow, wantOK: true},
		{cents: 41, wantTier: types.TierShallow, wantOK: true},
		{cents: 40, wantTier: types.TierMedium, wantOK: true},
		{cents: 38, wantTier: types.TierMedium, wantOK: true},
		{cents: 36, wantTier: types.TierMedium, wantOK: true},
		{cents: 35, wantTier: types.TierDeep, wantOK: true},
		{cents: 34, wantTier: types.TierDeep, wantOK: true},
		{cents: 20, wantTier: types.TierDeep, wantOK: true},
		{cents: 46, wantOK: false},
		{cents: 50, wantOK: false},
		{cents: 55, wantOK: false},
	}

	for _, tt := range tests {
		tier, ok := rules.TierFor(tt.cents)
		if ok != tt.wantOK {
			t.Errorf("TierFor(%d) ok = %v, want %v", tt.cents, ok, tt.wantOK)
			continue
		}
		if ok && tier.Name != tt.wantTier {
			t.Errorf("TierFor(%d) = %s, want %s", tt.cents, tier.Name, tt.wantTier)
		}
	}
}

func TestShouldExit(t *testing.T) {
	rules := New(testConfig())

	tests := []struct {
		name       string
		tier       types.Tier
		entry      int
		current    int
		wantExit   bool
		wantReason string
	}{
		{name: "shallow_below_target", tier: types.TierShallow, entry: 42, current: 44, wantExit: false},
		{name: "shallow_at_target", tier: types.TierShallow, entry: 42, current: 45, wantExit: true, wantReason: "target_reached"},
		{name: "medium_below_target", tier: types.TierMedium, entry: 38, current: 47, wantExit: false},
		{name: "medium_at_target", tier: types.TierMedium, entry: 38, current: 48, wantExit: true, wantReason: "target_reached"},
		{name: "deep_below_bounce", tier: types.TierDeep, entry: 34, current: 45, wantExit: false},
		{name: "deep_at_bounce", tier: types.TierDeep, entry: 34, current: 46, wantExit: true, wantReason: "deep_bounce"},
		{name: "deep_bounce_is_absolute", tier: types.TierDeep, entry: 30, current: 46, wantExit: true, wantReason: "deep_bounce"},
		{name: "missing_price", tier: types.TierShallow, entry: 42, current: 0, wantExit: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pos := &types.Position{Tier: tt.tier, EntryCents: tt.entry}
			exit, reason := rules.ShouldExit(pos, tt.current)
			if exit != tt.wantExit {
				t.Errorf("ShouldExit = %v, want %v", exit, tt.wantExit)
			}
			if reason != tt.wantReason {
				t.Errorf("reason = %q, want %q", reason, tt.wantReason)
			}
		})
	}
}

func TestPnLUSD(t *testing.T) {
	tests := []struct {
		name    string
		entry   int
		exit    int
		sizeUSD float64
		want    float64
	}{
		{name: "deep_bounce_profit", entry: 34, exit: 46, sizeUSD: 150, want: 18},
		{name: "shallow_target_profit", entry: 42, exit: 45, sizeUSD: 50, want: 1.5},
		{name: "forced_close_loss", entry: 38, exit: 20, sizeUSD: 100, want: -18},
		{name: "flat", entry: 42, exit: 42, sizeUSD: 50, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PnLUSD(tt.entry, tt.exit, tt.sizeUSD)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("PnLUSD(%d, %d, %f) = %f, want %f", tt.entry, tt.exit, tt.sizeUSD, got, tt.want)
			}
		})
	}
}
