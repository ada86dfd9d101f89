package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/pucklab/nhl-reversion/pkg/types"
	"go.uber.org/zap"
)

// PostgresStorage implements Storage using PostgreSQL.
type PostgresStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

// PostgresConfig holds PostgreSQL configuration.
type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
	SSLMode  string
	Logger   *zap.Logger
}

// NewPostgresStorage creates a new PostgreSQL storage and ensures the
// telemetry schema exists.
func NewPostgresStorage(cfg *PostgresConfig) (*PostgresStorage, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	err = db.Ping()
	if err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &PostgresStorage{
		db:     db,
		logger: cfg.Logger,
	}

	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	cfg.Logger.Info("postgres-storage-connected",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database))

	return store, nil
}

func (p *PostgresStorage) migrate() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS fixtures (
			id TEXT PRIMARY KEY,
			start_time TIMESTAMPTZ NOT NULL,
			away_team TEXT NOT NULL,
			home_team TEXT NOT NULL,
			favorite_side TEXT,
			favorite_ticker TEXT,
			favorite_open_cents INT,
			qualified BOOLEAN NOT NULL DEFAULT FALSE,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS checkpoints (
			id SERIAL PRIMARY KEY,
			fixture_id TEXT NOT NULL,
			checkpoint_offset_seconds BIGINT NOT NULL,
			status TEXT NOT NULL,
			favorite_ticker TEXT,
			price_cents INT,
			volume BIGINT,
			recorded_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS orders (
			client_id TEXT PRIMARY KEY,
			handle TEXT,
			fixture_id TEXT NOT NULL,
			ticker TEXT NOT NULL,
			tier TEXT NOT NULL,
			price_cents INT NOT NULL,
			size_usd DOUBLE PRECISION NOT NULL,
			contracts INT NOT NULL,
			state TEXT NOT NULL,
			filled_count INT NOT NULL,
			placed_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS positions (
			id TEXT PRIMARY KEY,
			order_handle TEXT,
			fixture_id TEXT NOT NULL,
			ticker TEXT NOT NULL,
			tier TEXT NOT NULL,
			entry_cents INT NOT NULL,
			size_usd DOUBLE PRECISION NOT NULL,
			contracts INT NOT NULL,
			status TEXT NOT NULL,
			opened_at TIMESTAMPTZ NOT NULL,
			exit_cents INT,
			closed_at TIMESTAMPTZ,
			pnl_usd DOUBLE PRECISION,
			close_reason TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS exposure_snapshots (
			id SERIAL PRIMARY KEY,
			recorded_at TIMESTAMPTZ NOT NULL,
			exposure_usd DOUBLE PRECISION NOT NULL,
			bankroll_usd DOUBLE PRECISION NOT NULL,
			realized_pnl_usd DOUBLE PRECISION NOT NULL,
			open_positions INT NOT NULL
		)`,
	}

	for _, stmt := range statements {
		if _, err := p.db.Exec(stmt); err != nil {
			return err
		}
	}

	return nil
}

// RecordFixture upserts a fixture row.
func (p *PostgresStorage) RecordFixture(ctx context.Context, f *types.Fixture) error {
	query := `
		INSERT INTO fixtures (
			id, start_time, away_team, home_team,
			favorite_side, favorite_ticker, favorite_open_cents, qualified, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (id) DO UPDATE SET
			favorite_side = EXCLUDED.favorite_side,
			favorite_ticker = EXCLUDED.favorite_ticker,
			favorite_open_cents = EXCLUDED.favorite_open_cents,
			qualified = EXCLUDED.qualified,
			updated_at = NOW()
	`

	_, err := p.db.ExecContext(ctx, query,
		f.ID, f.StartTime, f.AwayTeam, f.HomeTeam,
		string(f.FavoriteSide), f.FavoriteTicker, f.FavoriteOpenCents, f.Qualified,
	)
	if err != nil {
		return fmt.Errorf("upsert fixture: %w", err)
	}

	return nil
}

// RecordCheckpoint appends a checkpoint telemetry row.
func (p *PostgresStorage) RecordCheckpoint(ctx context.Context, c *CheckpointRecord) error {
	query := `
		INSERT INTO checkpoints (
			fixture_id, checkpoint_offset_seconds, status,
			favorite_ticker, price_cents, volume, recorded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := p.db.ExecContext(ctx, query,
		c.FixtureID, int64(c.Offset.Seconds()), c.Status,
		c.FavoriteTicker, c.PriceCents, c.Volume, c.At,
	)
	if err != nil {
		return fmt.Errorf("insert checkpoint: %w", err)
	}

	return nil
}

// RecordOrder upserts an order row.
func (p *PostgresStorage) RecordOrder(ctx context.Context, o *types.Order) error {
	query := `
		INSERT INTO orders (
			client_id, handle, fixture_id, ticker, tier,
			price_cents, size_usd, contracts, state, filled_count, placed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (client_id) DO UPDATE SET
			handle = EXCLUDED.handle,
			state = EXCLUDED.state,
			filled_count = EXCLUDED.filled_count,
			placed_at = EXCLUDED.placed_at
	`

	_, err := p.db.ExecContext(ctx, query,
		o.ClientID, string(o.Handle), o.FixtureID, o.Ticker, string(o.Tier),
		o.PriceCents, o.SizeUSD, o.Contracts, string(o.State), o.FilledCount, o.PlacedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert order: %w", err)
	}

	return nil
}

// RecordPosition upserts a position row; closing writes exit fields.
func (p *PostgresStorage) RecordPosition(ctx context.Context, pos *types.Position) error {
	query := `
		INSERT INTO positions (
			id, order_handle, fixture_id, ticker, tier,
			entry_cents, size_usd, contracts, status, opened_at,
			exit_cents, closed_at, pnl_usd, close_reason
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			size_usd = EXCLUDED.size_usd,
			contracts = EXCLUDED.contracts,
			status = EXCLUDED.status,
			exit_cents = EXCLUDED.exit_cents,
			closed_at = EXCLUDED.closed_at,
			pnl_usd = EXCLUDED.pnl_usd,
			close_reason = EXCLUDED.close_reason
	`

	var closedAt interface{}
	if !pos.ClosedAt.IsZero() {
		closedAt = pos.ClosedAt
	}

	_, err := p.db.ExecContext(ctx, query,
		pos.ID, string(pos.OrderHandle), pos.FixtureID, pos.Ticker, string(pos.Tier),
		pos.EntryCents, pos.SizeUSD, pos.Contracts, string(pos.Status), pos.OpenedAt,
		pos.ExitCents, closedAt, pos.PnLUSD, pos.CloseReason,
	)
	if err != nil {
		return fmt.Errorf("upsert position: %w", err)
	}

	return nil
}

// RecordExposure appends an exposure snapshot row.
func (p *PostgresStorage) RecordExposure(ctx context.Context, s *ExposureSnapshot) error {
	query := `
		INSERT INTO exposure_snapshots (
			recorded_at, exposure_usd, bankroll_usd, realized_pnl_usd, open_positions
		) VALUES ($1, $2, $3, $4, $5)
	`

	_, err := p.db.ExecContext(ctx, query,
		s.At, s.ExposureUSD, s.BankrollUSD, s.RealizedPnLUSD, s.OpenPositions,
	)
	if err != nil {
		return fmt.Errorf("insert exposure snapshot: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (p *PostgresStorage) Close() error {
	p.logger.Info("closing-postgres-storage")
	return p.db.Close()
}
