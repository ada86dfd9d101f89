package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure taxonomy. Per-fixture failures carrying
// these are isolated by the scheduler loop and never abort other fixtures.
var (
	// ErrExposureExceeded rejects an order placement that would breach the
	// exposure cap. The affected tier is skipped; not fatal.
	ErrExposureExceeded = errors.New("exposure cap exceeded")

	// ErrDataUnavailable marks schedule or price data permanently missing
	// past a checkpoint's tolerance. The fixture is excluded.
	ErrDataUnavailable = errors.New("data unavailable")

	// ErrPositionClosed is returned when closing an already-closed position.
	// Callers treat it as a warning, not a failure.
	ErrPositionClosed = errors.New("position already closed")

	// ErrOrderNotFound is returned for an unknown order handle.
	ErrOrderNotFound = errors.New("order not found")
)

// RetryableError wraps a transient I/O failure (network error, timeout).
// Checkpoints are naturally re-polled, so callers retry on the next tick.
type RetryableError struct {
	Op  string
	Err error
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("%s: %v (retryable)", e.Op, e.Err)
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// Retryable wraps err as a transient failure.
func Retryable(op string, err error) error {
	return &RetryableError{Op: op, Err: err}
}

// IsRetryable reports whether err is a transient failure eligible for
// retry on the next poll tick.
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}
