package storage

import (
	"context"
	"fmt"

	"github.com/pucklab/nhl-reversion/pkg/types"
	"go.uber.org/zap"
)

// ConsoleStorage implements Storage by pretty-printing to console. Used
// for dry runs and local development where no database is around.
type ConsoleStorage struct {
	logger *zap.Logger
}

// NewConsoleStorage creates a new console storage.
func NewConsoleStorage(logger *zap.Logger) *ConsoleStorage {
	logger.Info("console-storage-initialized")
	return &ConsoleStorage{
		logger: logger,
	}
}

// RecordFixture prints a fixture update.
func (c *ConsoleStorage) RecordFixture(ctx context.Context, f *types.Fixture) error {
	fmt.Printf("[fixture]    %s %s  puck drop %s  favorite=%s@%d¢ qualified=%v\n",
		f.ID, f.Matchup(), f.StartTime.Format("2006-01-02 15:04"),
		f.FavoriteTeam(), f.FavoriteOpenCents, f.Qualified)
	return nil
}

// RecordCheckpoint prints a checkpoint evaluation.
func (c *ConsoleStorage) RecordCheckpoint(ctx context.Context, rec *CheckpointRecord) error {
	fmt.Printf("[checkpoint] %s T-%s %s  %s@%d¢ vol=%d\n",
		rec.FixtureID, rec.Offset, rec.Status,
		rec.FavoriteTicker, rec.PriceCents, rec.Volume)
	return nil
}

// RecordOrder prints an order update.
func (c *ConsoleStorage) RecordOrder(ctx context.Context, o *types.Order) error {
	fmt.Printf("[order]      %s %s %s  %d¢ x %d ($%.2f)  %s  filled=%d\n",
		o.FixtureID, o.Tier, o.Ticker,
		o.PriceCents, o.Contracts, o.SizeUSD, o.State, o.FilledCount)
	return nil
}

// RecordPosition prints a position update, with P&L once closed.
func (c *ConsoleStorage) RecordPosition(ctx context.Context, p *types.Position) error {
	if p.Status == types.PositionClosed {
		fmt.Printf("[position]   %s %s CLOSED %d¢ -> %d¢  pnl=$%.2f (%s)\n",
			p.FixtureID, p.Tier, p.EntryCents, p.ExitCents, p.PnLUSD, p.CloseReason)
		return nil
	}

	fmt.Printf("[position]   %s %s OPEN %d¢ x %d ($%.2f)\n",
		p.FixtureID, p.Tier, p.EntryCents, p.Contracts, p.SizeUSD)
	return nil
}

// RecordExposure prints an exposure snapshot.
func (c *ConsoleStorage) RecordExposure(ctx context.Context, s *ExposureSnapshot) error {
	fmt.Printf("[exposure]   $%.2f committed  bankroll=$%.2f  realized=$%.2f  open=%d\n",
		s.ExposureUSD, s.BankrollUSD, s.RealizedPnLUSD, s.OpenPositions)
	return nil
}

// Close is a no-op for console storage.
func (c *ConsoleStorage) Close() error {
	c.logger.Info("closing-console-storage")
	return nil
}
