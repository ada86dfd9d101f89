package storage

import (
	"context"
	"time"

	"github.com/pucklab/nhl-reversion/pkg/types"
)

// CheckpointRecord is the telemetry row for one checkpoint evaluation.
type CheckpointRecord struct {
	FixtureID      string
	Offset         time.Duration
	Status         string // completed, missed, retried
	FavoriteTicker string
	PriceCents     int
	Volume         int64
	At             time.Time
}

// ExposureSnapshot is a periodic account-level telemetry row.
type ExposureSnapshot struct {
	At             time.Time
	ExposureUSD    float64
	BankrollUSD    float64
	RealizedPnLUSD float64
	OpenPositions  int
}

// Storage persists trading telemetry. Writes are advisory: trading
// never blocks on, or aborts for, a telemetry failure.
type Storage interface {
	RecordFixture(ctx context.Context, f *types.Fixture) error
	RecordCheckpoint(ctx context.Context, c *CheckpointRecord) error
	RecordOrder(ctx context.Context, o *types.Order) error
	RecordPosition(ctx context.Context, p *types.Position) error
	RecordExposure(ctx context.Context, s *ExposureSnapshot) error
	Close() error
}
