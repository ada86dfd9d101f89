package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pucklab/nhl-reversion/pkg/types"
)

// TierSpec defines one position-sizing tier: the pre-placed limit price,
// the sizing multiplier, the entry band ceiling, and the exit target range.
type TierSpec struct {
	Name           types.Tier
	PriceCents     int
	Multiplier     float64
	CeilingCents   int // upper bound of the entry band this tier covers
	TargetMinCents int // bounce target range, relative to entry
	TargetMaxCents int
}

// Config holds all application configuration.
type Config struct {
	// Application
	LogLevel string
	HTTPPort string

	// Venue APIs
	KalshiAPIURL     string
	KalshiWSURL      string
	KalshiAPIKeyID   string
	KalshiKeyPath    string // PEM file with the RSA private key
	NHLScheduleURL   string
	SeriesTicker     string

	// Bankroll and exposure
	BankrollUSD      float64
	MaxExposurePct   float64
	BaseSizeFraction float64
	GlobalMultiplier float64
	MinOrderUnitUSD  float64

	// Strategy thresholds (all prices integral cents)
	FavoriteThresholdCents int
	LiquidityFloor         int64
	SkipBandLowCents       int
	SkipBandHighCents      int
	DeepBounceCents        int
	Tiers                  []TierSpec

	// Timing
	PollInterval        time.Duration
	CheckpointTolerance time.Duration
	CheckpointGrace     time.Duration
	WindowDuration      time.Duration
	FetchTimeout        time.Duration

	// Execution
	DryRun bool

	// Quote stream
	StreamEnabled           bool
	StreamReconnectInitial  time.Duration
	StreamReconnectMax      time.Duration
	StreamReconnectBackoff  float64

	// Storage
	StorageMode       string // "postgres" or "console"
	StorageRetryCount int
	StorageRetryDelay time.Duration
	PostgresHost      string
	PostgresPort      string
	PostgresUser      string
	PostgresPass      string
	PostgresDB        string
	PostgresSSL       string
}

// LoadFromEnv loads configuration from environment variables with defaults.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		// Application defaults
		LogLevel: getEnvOrDefault("LOG_LEVEL", "info"),
		HTTPPort: getEnvOrDefault("HTTP_PORT", "8080"),

		// Venue defaults
		KalshiAPIURL:   getEnvOrDefault("KALSHI_API_URL", "https://api.elections.kalshi.com/trade-api/v2"),
		KalshiWSURL:    getEnvOrDefault("KALSHI_WS_URL", "wss://api.elections.kalshi.com/trade-api/ws/v2"),
		KalshiAPIKeyID: os.Getenv("KALSHI_API_KEY_ID"),
		KalshiKeyPath:  os.Getenv("KALSHI_PRIVATE_KEY_PATH"),
		NHLScheduleURL: getEnvOrDefault("NHL_SCHEDULE_URL", "https://api-web.nhle.com"),
		SeriesTicker:   getEnvOrDefault("SERIES_TICKER", "KXNHLGAME"),

		// Bankroll defaults
		BankrollUSD:      getFloat64OrDefault("TRADING_BANKROLL", 1000.0),
		MaxExposurePct:   getFloat64OrDefault("MAX_EXPOSURE_PCT", 0.5),
		BaseSizeFraction: getFloat64OrDefault("BASE_SIZE_FRACTION", 0.1),
		GlobalMultiplier: getFloat64OrDefault("POSITION_SIZE_MULTIPLIER", 1.0),
		MinOrderUnitUSD:  getFloat64OrDefault("MIN_ORDER_UNIT_USD", 1.0),

		// Strategy defaults
		FavoriteThresholdCents: getIntOrDefault("FAVORITE_THRESHOLD_CENTS", 57),
		LiquidityFloor:         int64(getIntOrDefault("LIQUIDITY_FLOOR", 50000)),
		SkipBandLowCents:       getIntOrDefault("SKIP_BAND_LOW_CENTS", 46),
		SkipBandHighCents:      getIntOrDefault("SKIP_BAND_HIGH_CENTS", 50),
		DeepBounceCents:        getIntOrDefault("DEEP_BOUNCE_CENTS", 46),
		Tiers:                  tiersFromEnv(),

		// Timing defaults
		PollInterval:        getDurationOrDefault("POLL_INTERVAL", 60*time.Second),
		CheckpointTolerance: getDurationOrDefault("CHECKPOINT_TOLERANCE", 5*time.Minute),
		CheckpointGrace:     getDurationOrDefault("CHECKPOINT_GRACE", 15*time.Minute),
		WindowDuration:      getDurationOrDefault("WINDOW_DURATION", 90*time.Minute),
		FetchTimeout:        getDurationOrDefault("FETCH_TIMEOUT", 10*time.Second),

		// Execution defaults
		DryRun: getBoolOrDefault("DRY_RUN", true),

		// Stream defaults
		StreamEnabled:          getBoolOrDefault("STREAM_ENABLED", false),
		StreamReconnectInitial: getDurationOrDefault("STREAM_RECONNECT_INITIAL_DELAY", 1*time.Second),
		StreamReconnectMax:     getDurationOrDefault("STREAM_RECONNECT_MAX_DELAY", 30*time.Second),
		StreamReconnectBackoff: getFloat64OrDefault("STREAM_RECONNECT_BACKOFF_MULTIPLIER", 2.0),

		// Storage defaults
		StorageMode:       getEnvOrDefault("STORAGE_MODE", "console"),
		StorageRetryCount: getIntOrDefault("STORAGE_RETRY_COUNT", 3),
		StorageRetryDelay: getDurationOrDefault("STORAGE_RETRY_DELAY", 1*time.Second),
		PostgresHost:      getEnvOrDefault("POSTGRES_HOST", "localhost"),
		PostgresPort:      getEnvOrDefault("POSTGRES_PORT", "5432"),
		PostgresUser:      getEnvOrDefault("POSTGRES_USER", "nhlbot"),
		PostgresPass:      getEnvOrDefault("POSTGRES_PASSWORD", "nhlbot123"),
		PostgresDB:        getEnvOrDefault("POSTGRES_DB", "nhl_reversion"),
		PostgresSSL:       getEnvOrDefault("POSTGRES_SSLMODE", "disable"),
	}

	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// tiersFromEnv builds the tier table from environment overrides with the
// backtested defaults: shallow 42¢ @0.5x (41-45 band, +3..+6 target),
// medium 38¢ @1.0x (36-40 band, +10..+15), deep 34¢ @1.5x (≤35 band).
func tiersFromEnv() []TierSpec {
	return []TierSpec{
		{
			Name:           types.TierShallow,
			PriceCents:     getIntOrDefault("TIER_SHALLOW_PRICE_CENTS", 42),
			Multiplier:     getFloat64OrDefault("TIER_SHALLOW_MULTIPLIER", 0.5),
			CeilingCents:   getIntOrDefault("TIER_SHALLOW_CEILING_CENTS", 45),
			TargetMinCents: getIntOrDefault("TIER_SHALLOW_TARGET_MIN_CENTS", 3),
			TargetMaxCents: getIntOrDefault("TIER_SHALLOW_TARGET_MAX_CENTS", 6),
		},
		{
			Name:           types.TierMedium,
			PriceCents:     getIntOrDefault("TIER_MEDIUM_PRICE_CENTS", 38),
			Multiplier:     getFloat64OrDefault("TIER_MEDIUM_MULTIPLIER", 1.0),
			CeilingCents:   getIntOrDefault("TIER_MEDIUM_CEILING_CENTS", 40),
			TargetMinCents: getIntOrDefault("TIER_MEDIUM_TARGET_MIN_CENTS", 10),
			TargetMaxCents: getIntOrDefault("TIER_MEDIUM_TARGET_MAX_CENTS", 15),
		},
		{
			Name:           types.TierDeep,
			PriceCents:     getIntOrDefault("TIER_DEEP_PRICE_CENTS", 34),
			Multiplier:     getFloat64OrDefault("TIER_DEEP_MULTIPLIER", 1.5),
			CeilingCents:   getIntOrDefault("TIER_DEEP_CEILING_CENTS", 35),
			TargetMinCents: getIntOrDefault("TIER_DEEP_TARGET_MIN_CENTS", 10),
			TargetMaxCents: getIntOrDefault("TIER_DEEP_TARGET_MAX_CENTS", 15),
		},
	}
}

// Validate checks that configuration values are valid.
func (c *Config) Validate() error {
	if c.HTTPPort == "" {
		return fmt.Errorf("HTTP_PORT cannot be empty")
	}

	if c.BankrollUSD <= 0 {
		return fmt.Errorf("TRADING_BANKROLL must be positive, got %f", c.BankrollUSD)
	}

	if c.MaxExposurePct <= 0 || c.MaxExposurePct > 1.0 {
		return fmt.Errorf("MAX_EXPOSURE_PCT must be in (0, 1.0], got %f", c.MaxExposurePct)
	}

	if c.BaseSizeFraction <= 0 || c.BaseSizeFraction > 1.0 {
		return fmt.Errorf("BASE_SIZE_FRACTION must be in (0, 1.0], got %f", c.BaseSizeFraction)
	}

	if c.FavoriteThresholdCents <= 50 || c.FavoriteThresholdCents >= 100 {
		return fmt.Errorf("FAVORITE_THRESHOLD_CENTS must be in (50, 100), got %d", c.FavoriteThresholdCents)
	}

	if c.SkipBandLowCents > c.SkipBandHighCents {
		return fmt.Errorf("skip band inverted: low %d > high %d", c.SkipBandLowCents, c.SkipBandHighCents)
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive")
	}

	if c.CheckpointGrace < c.CheckpointTolerance {
		return fmt.Errorf("CHECKPOINT_GRACE must be >= CHECKPOINT_TOLERANCE")
	}

	if c.WindowDuration <= 0 {
		return fmt.Errorf("WINDOW_DURATION must be positive")
	}

	for _, tier := range c.Tiers {
		if tier.PriceCents <= 0 || tier.PriceCents >= 100 {
			return fmt.Errorf("tier %s price must be in (0, 100), got %d", tier.Name, tier.PriceCents)
		}
		if tier.Multiplier <= 0 {
			return fmt.Errorf("tier %s multiplier must be positive", tier.Name)
		}
		if tier.PriceCents >= c.SkipBandLowCents && tier.PriceCents <= c.SkipBandHighCents {
			return fmt.Errorf("tier %s price %d falls inside skip band [%d, %d]",
				tier.Name, tier.PriceCents, c.SkipBandLowCents, c.SkipBandHighCents)
		}
	}

	if !c.DryRun {
		if c.KalshiAPIKeyID == "" {
			return fmt.Errorf("KALSHI_API_KEY_ID required when DRY_RUN is false")
		}
		if c.KalshiKeyPath == "" {
			return fmt.Errorf("KALSHI_PRIVATE_KEY_PATH required when DRY_RUN is false")
		}
	}

	if c.StorageMode != "postgres" && c.StorageMode != "console" {
		return fmt.Errorf("STORAGE_MODE must be 'postgres' or 'console', got %q", c.StorageMode)
	}

	return nil
}

func getEnvOrDefault(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intVal, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return intVal
}

func getFloat64OrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	floatVal, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}

	return floatVal
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}

	return duration
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	boolVal, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}

	return boolVal
}
