package app

import (
	"context"
	"fmt"

	"github.com/pucklab/nhl-reversion/internal/engine"
	"github.com/pucklab/nhl-reversion/internal/gateway"
	"github.com/pucklab/nhl-reversion/internal/ledger"
	"github.com/pucklab/nhl-reversion/internal/marketdata"
	"github.com/pucklab/nhl-reversion/internal/schedule"
	"github.com/pucklab/nhl-reversion/internal/storage"
	"github.com/pucklab/nhl-reversion/internal/strategy"
	"github.com/pucklab/nhl-reversion/internal/timeline"
	"github.com/pucklab/nhl-reversion/pkg/cache"
	"github.com/pucklab/nhl-reversion/pkg/config"
	"github.com/pucklab/nhl-reversion/pkg/healthprobe"
	"github.com/pucklab/nhl-reversion/pkg/httpserver"
	"go.uber.org/zap"
)

// New creates a new application instance.
func New(cfg *config.Config, logger *zap.Logger, opts *Options) (*App, error) {
	if opts == nil {
		opts = &Options{}
	}

	ctx, cancel := context.WithCancel(context.Background())

	healthChecker := setupHealthChecker(cfg)

	appCache, err := setupCache(logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup cache: %w", err)
	}

	markets := setupMarketData(cfg, logger, appCache)
	sched := setupSchedule(cfg, logger, appCache)

	// With the stream enabled, quote fetches are answered from the
	// websocket feed while it is fresh and fall back to REST.
	var quotes engine.MarketData = markets
	var stream *marketdata.Stream
	var streamQuotes *marketdata.StreamQuotes
	if cfg.StreamEnabled {
		stream = marketdata.NewStream(marketdata.StreamConfig{
			URL:               cfg.KalshiWSURL,
			InitialDelay:      cfg.StreamReconnectInitial,
			MaxDelay:          cfg.StreamReconnectMax,
			BackoffMultiplier: cfg.StreamReconnectBackoff,
			Logger:            logger,
		})
		streamQuotes = marketdata.NewStreamQuotes(markets, stream, 0, logger)
		quotes = streamQuotes
	}

	gw, err := setupGateway(cfg, logger, quotes, opts)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup gateway: %w", err)
	}

	store, err := setupStorage(cfg, logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup storage: %w", err)
	}

	tracker := setupTracker(cfg, logger)
	book := setupLedger(cfg, logger)
	rules := setupRules(cfg, logger)

	eng := engine.New(engine.Config{
		PollInterval: cfg.PollInterval,
		FetchTimeout: cfg.FetchTimeout,
		OnTick:       healthChecker.ObserveTick,
		Logger:       logger,
	}, rules, tracker, book, gw, quotes, sched, store)

	httpServer := setupHTTPServer(cfg, logger, healthChecker, tracker, book)

	return &App{
		cfg:           cfg,
		logger:        logger,
		healthChecker: healthChecker,
		httpServer:    httpServer,
		tracker:       tracker,
		book:          book,
		gateway:       gw,
		store:         store,
		engine:        eng,
		stream:        stream,
		streamQuotes:  streamQuotes,
		ctx:           ctx,
		cancel:        cancel,
	}, nil
}

func setupHealthChecker(cfg *config.Config) *healthprobe.HealthChecker {
	// Readiness goes stale when the engine misses several poll cycles.
	return healthprobe.New(3 * cfg.PollInterval)
}

func setupCache(logger *zap.Logger) (cache.Cache, error) {
	return cache.NewRistrettoCache(&cache.RistrettoConfig{
		NumCounters: 10000,
		MaxCost:     1000,
		BufferItems: 64,
		Logger:      logger,
	})
}

func setupMarketData(cfg *config.Config, logger *zap.Logger, appCache cache.Cache) *marketdata.Client {
	return marketdata.New(marketdata.Config{
		BaseURL:      cfg.KalshiAPIURL,
		SeriesTicker: cfg.SeriesTicker,
		Timeout:      cfg.FetchTimeout,
		Cache:        appCache,
		Logger:       logger,
	})
}

func setupSchedule(cfg *config.Config, logger *zap.Logger, appCache cache.Cache) *schedule.Client {
	return schedule.New(schedule.Config{
		BaseURL: cfg.NHLScheduleURL,
		Timeout: cfg.FetchTimeout,
		Cache:   appCache,
		Logger:  logger,
	})
}

func setupGateway(cfg *config.Config, logger *zap.Logger, quotes engine.MarketData, opts *Options) (gateway.Gateway, error) {
	if cfg.DryRun || opts.ForceDryRun {
		logger.Info("gateway-simulated",
			zap.String("note", "no order will reach the venue"))
		priceFn := func(ctx context.Context, ticker string) (int, error) {
			quote, err := quotes.FetchQuote(ctx, ticker)
			if err != nil {
				return 0, err
			}
			return quote.CurrentCents(), nil
		}
		return gateway.NewSimulated(priceFn, logger), nil
	}

	gw, err := gateway.NewKalshi(gateway.KalshiConfig{
		BaseURL:        cfg.KalshiAPIURL,
		APIKeyID:       cfg.KalshiAPIKeyID,
		PrivateKeyPath: cfg.KalshiKeyPath,
		Timeout:        cfg.FetchTimeout,
		Logger:         logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create kalshi gateway: %w", err)
	}

	return gw, nil
}

func setupStorage(cfg *config.Config, logger *zap.Logger) (storage.Storage, error) {
	var inner storage.Storage

	if cfg.StorageMode == "postgres" {
		pgStorage, err := storage.NewPostgresStorage(&storage.PostgresConfig{
			Host:     cfg.PostgresHost,
			Port:     cfg.PostgresPort,
			User:     cfg.PostgresUser,
			Password: cfg.PostgresPass,
			Database: cfg.PostgresDB,
			SSLMode:  cfg.PostgresSSL,
			Logger:   logger,
		})
		if err != nil {
			return nil, fmt.Errorf("create postgres storage: %w", err)
		}
		inner = pgStorage
	} else {
		inner = storage.NewConsoleStorage(logger)
	}

	return storage.NewRetryingStorage(inner, cfg.StorageRetryCount, cfg.StorageRetryDelay, logger), nil
}

func setupTracker(cfg *config.Config, logger *zap.Logger) *timeline.Tracker {
	return timeline.New(timeline.Config{
		Tolerance:      cfg.CheckpointTolerance,
		Grace:          cfg.CheckpointGrace,
		WindowDuration: cfg.WindowDuration,
		Logger:         logger,
	})
}

func setupLedger(cfg *config.Config, logger *zap.Logger) *ledger.Ledger {
	return ledger.New(ledger.Config{
		BankrollUSD:    cfg.BankrollUSD,
		MaxExposurePct: cfg.MaxExposurePct,
		Logger:         logger,
	})
}

func setupRules(cfg *config.Config, logger *zap.Logger) *strategy.Rules {
	return strategy.New(strategy.Config{
		FavoriteThresholdCents: cfg.FavoriteThresholdCents,
		LiquidityFloor:         cfg.LiquidityFloor,
		SkipBandLowCents:       cfg.SkipBandLowCents,
		SkipBandHighCents:      cfg.SkipBandHighCents,
		DeepBounceCents:        cfg.DeepBounceCents,
		BankrollUSD:            cfg.BankrollUSD,
		BaseSizeFraction:       cfg.BaseSizeFraction,
		GlobalMultiplier:       cfg.GlobalMultiplier,
		MinOrderUnitUSD:        cfg.MinOrderUnitUSD,
		Tiers:                  cfg.Tiers,
		Logger:                 logger,
	})
}

func setupHTTPServer(
	cfg *config.Config,
	logger *zap.Logger,
	healthChecker *healthprobe.HealthChecker,
	tracker *timeline.Tracker,
	book *ledger.Ledger,
) *httpserver.Server {
	return httpserver.New(&httpserver.Config{
		Port:          cfg.HTTPPort,
		Logger:        logger,
		HealthChecker: healthChecker,
		Tracker:       tracker,
		Ledger:        book,
	})
}
