package config

import (
	"os"
	"testing"
	"time"

	"github.com/pucklab/nhl-reversion/pkg/types"
)

func TestConfig_Defaults(t *testing.T) {
	t.Run("defaults_load_without_env", func(t *testing.T) {
		cfg, err := LoadFromEnv()
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if cfg.FavoriteThresholdCents != 57 {
			t.Errorf("expected default FavoriteThresholdCents to be 57, got %d", cfg.FavoriteThresholdCents)
		}
		if cfg.BankrollUSD != 1000.0 {
			t.Errorf("expected default BankrollUSD to be 1000, got %f", cfg.BankrollUSD)
		}
		if cfg.WindowDuration != 90*time.Minute {
			t.Errorf("expected default WindowDuration to be 90m, got %v", cfg.WindowDuration)
		}
		if !cfg.DryRun {
			t.Error("expected DryRun to default to true")
		}
	})

	t.Run("default_tier_table", func(t *testing.T) {
		cfg, err := LoadFromEnv()
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if len(cfg.Tiers) != 3 {
			t.Fatalf("expected 3 tiers, got %d", len(cfg.Tiers))
		}

		want := []struct {
			name  types.Tier
			price int
			mult  float64
		}{
			{types.TierShallow, 42, 0.5},
			{types.TierMedium, 38, 1.0},
			{types.TierDeep, 34, 1.5},
		}
		for i, w := range want {
			tier := cfg.Tiers[i]
			if tier.Name != w.name {
				t.Errorf("tier %d: expected name %s, got %s", i, w.name, tier.Name)
			}
			if tier.PriceCents != w.price {
				t.Errorf("tier %s: expected price %d, got %d", w.name, w.price, tier.PriceCents)
			}
			if tier.Multiplier != w.mult {
				t.Errorf("tier %s: expected multiplier %f, got %f", w.name, w.mult, tier.Multiplier)
			}
		}
	})
}

func TestConfig_EnvOverrides(t *testing.T) {
	t.Run("bankroll_override", func(t *testing.T) {
		os.Setenv("TRADING_BANKROLL", "2500")
		t.Cleanup(func() {
			os.Unsetenv("TRADING_BANKROLL")
		})

		cfg, err := LoadFromEnv()
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if cfg.BankrollUSD != 2500.0 {
			t.Errorf("expected BankrollUSD to be 2500, got %f", cfg.BankrollUSD)
		}
	})

	t.Run("poll_interval_override", func(t *testing.T) {
		os.Setenv("POLL_INTERVAL", "30s")
		t.Cleanup(func() {
			os.Unsetenv("POLL_INTERVAL")
		})

		cfg, err := LoadFromEnv()
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if cfg.PollInterval != 30*time.Second {
			t.Errorf("expected PollInterval to be 30s, got %v", cfg.PollInterval)
		}
	})

	t.Run("malformed_int_falls_back_to_default", func(t *testing.T) {
		os.Setenv("FAVORITE_THRESHOLD_CENTS", "not-a-number")
		t.Cleanup(func() {
			os.Unsetenv("FAVORITE_THRESHOLD_CENTS")
		})

		cfg, err := LoadFromEnv()
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if cfg.FavoriteThresholdCents != 57 {
			t.Errorf("expected fallback to 57, got %d", cfg.FavoriteThresholdCents)
		}
	})
}

func TestConfig_Validation(t *testing.T) {
	base := func() *Config {
		cfg, err := LoadFromEnv()
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		return cfg
	}

	t.Run("exposure_pct_above_one_rejected", func(t *testing.T) {
		cfg := base()
		cfg.MaxExposurePct = 1.5

		err := cfg.Validate()
		if err == nil {
			t.Fatal("expected error for MaxExposurePct > 1.0, got nil")
		}
	})

	t.Run("threshold_at_50_rejected", func(t *testing.T) {
		cfg := base()
		cfg.FavoriteThresholdCents = 50

		err := cfg.Validate()
		if err == nil {
			t.Fatal("expected error for threshold 50, got nil")
		}
	})

	t.Run("tier_price_inside_skip_band_rejected", func(t *testing.T) {
		cfg := base()
		cfg.Tiers[0].PriceCents = 47

		err := cfg.Validate()
		if err == nil {
			t.Fatal("expected error for tier price inside skip band, got nil")
		}
	})

	t.Run("grace_shorter_than_tolerance_rejected", func(t *testing.T) {
		cfg := base()
		cfg.CheckpointGrace = 1 * time.Minute
		cfg.CheckpointTolerance = 5 * time.Minute

		err := cfg.Validate()
		if err == nil {
			t.Fatal("expected error for grace < tolerance, got nil")
		}
	})

	t.Run("live_mode_requires_credentials", func(t *testing.T) {
		cfg := base()
		cfg.DryRun = false
		cfg.KalshiAPIKeyID = ""

		err := cfg.Validate()
		if err == nil {
			t.Fatal("expected error for live mode without API key, got nil")
		}
	})

	t.Run("unknown_storage_mode_rejected", func(t *testing.T) {
		cfg := base()
		cfg.StorageMode = "supabase"

		err := cfg.Validate()
		if err == nil {
			t.Fatal("expected error for unknown storage mode, got nil")
		}
	})
}
