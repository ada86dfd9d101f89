package app

import (
	"context"
	"sync"

	"github.com/pucklab/nhl-reversion/internal/engine"
	"github.com/pucklab/nhl-reversion/internal/gateway"
	"github.com/pucklab/nhl-reversion/internal/ledger"
	"github.com/pucklab/nhl-reversion/internal/marketdata"
	"github.com/pucklab/nhl-reversion/internal/storage"
	"github.com/pucklab/nhl-reversion/internal/timeline"
	"github.com/pucklab/nhl-reversion/pkg/config"
	"github.com/pucklab/nhl-reversion/pkg/healthprobe"
	"github.com/pucklab/nhl-reversion/pkg/httpserver"
	"go.uber.org/zap"
)

// App is the main application orchestrator.
type App struct {
	cfg           *config.Config
	logger        *zap.Logger
	healthChecker *healthprobe.HealthChecker
	httpServer    *httpserver.Server
	tracker       *timeline.Tracker
	book          *ledger.Ledger
	gateway       gateway.Gateway
	store         storage.Storage
	engine        *engine.Engine
	stream        *marketdata.Stream
	streamQuotes  *marketdata.StreamQuotes
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
}

// Options holds application options.
type Options struct {
	// ForceDryRun routes orders through the simulated gateway even when
	// live credentials are configured.
	ForceDryRun bool
}
