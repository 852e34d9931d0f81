// Package retryutil provides exponential backoff retry helpers shared by the
// embedding worker and any other component calling an unreliable external
// dependency.
package retryutil

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// Config configures exponential backoff retry behavior.
type Config struct {
	// MaxAttempts is the total number of attempts, including the first.
	// Mirrors OPENAI_RETRY_MAX_ATTEMPTS.
	MaxAttempts int

	// BaseDelay is the delay before the first retry. Mirrors
	// OPENAI_RETRY_BASE_DELAY_MS.
	BaseDelay time.Duration

	// MaxDelay caps the backoff delay regardless of attempt count.
	MaxDelay time.Duration

	// Multiplier is the factor delay grows by after each failed attempt.
	Multiplier float64

	// Jitter randomizes the delay within [0.5, 1.0) of the computed value
	// to avoid synchronized retry storms across workers.
	Jitter bool
}

// DefaultConfig returns a sensible default: 5 attempts, 250ms base delay
// doubling up to 8s, with jitter enabled.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 5,
		BaseDelay:   250 * time.Millisecond,
		MaxDelay:    8 * time.Second,
		Multiplier:  2.0,
		Jitter:      true,
	}
}

// Do runs fn, retrying with exponential backoff on error up to
// cfg.MaxAttempts total attempts. Returns ctx.Err() immediately if ctx is
// cancelled between attempts.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	_, err := DoWithResult(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// DoWithResult runs fn, retrying with exponential backoff on error up to
// cfg.MaxAttempts total attempts, returning the last successful result.
func DoWithResult[T any](ctx context.Context, cfg Config, fn func() (T, error)) (T, error) {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	delay := cfg.BaseDelay
	var result T
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		default:
		}

		result, lastErr = fn()
		if lastErr == nil {
			return result, nil
		}

		if attempt >= cfg.MaxAttempts {
			break
		}

		wait := delay
		if cfg.Jitter {
			wait = time.Duration(float64(delay) * (0.5 + rand.Float64()*0.5))
		}

		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-time.After(wait):
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	var zero T
	return zero, fmt.Errorf("failed after %d attempts: %w", cfg.MaxAttempts, lastErr)
}
