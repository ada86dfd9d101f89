package storage

import (
	"context"
	"time"

	"github.com/pucklab/nhl-reversion/pkg/types"
	"go.uber.org/zap"
)

// RetryingStorage decorates a Storage with bounded retries and doubling
// backoff. Telemetry writes are advisory, so after the attempts are spent
// the error is logged and swallowed: a flaky database must never stop the
// trading loop.
type RetryingStorage struct {
	inner    Storage
	attempts int
	delay    time.Duration
	logger   *zap.Logger
}

// NewRetryingStorage wraps a storage with retry behavior.
func NewRetryingStorage(inner Storage, attempts int, delay time.Duration, logger *zap.Logger) *RetryingStorage {
	if attempts < 1 {
		attempts = 1
	}

	return &RetryingStorage{
		inner:    inner,
		attempts: attempts,
		delay:    delay,
		logger:   logger,
	}
}

func (r *RetryingStorage) retry(ctx context.Context, op string, fn func(context.Context) error) error {
	delay := r.delay

	var err error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}

		StorageRetriesTotal.WithLabelValues(op).Inc()
		r.logger.Warn("storage-write-failed",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Error(err))

		if attempt == r.attempts {
			break
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
	}

	StorageDroppedTotal.WithLabelValues(op).Inc()
	r.logger.Error("storage-write-dropped",
		zap.String("op", op),
		zap.Int("attempts", r.attempts),
		zap.Error(err))

	return nil
}

func (r *RetryingStorage) RecordFixture(ctx context.Context, f *types.Fixture) error {
	return r.retry(ctx, "fixture", func(ctx context.Context) error {
		return r.inner.RecordFixture(ctx, f)
	})
}

func (r *RetryingStorage) RecordCheckpoint(ctx context.Context, c *CheckpointRecord) error {
	return r.retry(ctx, "checkpoint", func(ctx context.Context) error {
		return r.inner.RecordCheckpoint(ctx, c)
	})
}

func (r *RetryingStorage) RecordOrder(ctx context.Context, o *types.Order) error {
	return r.retry(ctx, "order", func(ctx context.Context) error {
		return r.inner.RecordOrder(ctx, o)
	})
}

func (r *RetryingStorage) RecordPosition(ctx context.Context, p *types.Position) error {
	return r.retry(ctx, "position", func(ctx context.Context) error {
		return r.inner.RecordPosition(ctx, p)
	})
}

func (r *RetryingStorage) RecordExposure(ctx context.Context, s *ExposureSnapshot) error {
	return r.retry(ctx, "exposure", func(ctx context.Context) error {
		return r.inner.RecordExposure(ctx, s)
	})
}

func (r *RetryingStorage) Close() error {
	return r.inner.Close()
}
