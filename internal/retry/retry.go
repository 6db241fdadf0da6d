// Package retry provides bounded exponential backoff for transient upstream
// failures. Validation, signature and not-found errors are never retried.
package retry

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/orbit-yield/internal/errors"
	"github.com/orbit-yield/internal/logging"
)

// Config configures retry behavior
type Config struct {
	MaxAttempts int           // Total attempts including the first call
	InitialWait time.Duration // Delay before the first retry
	MaxWait     time.Duration // Cap on delay between retries
	Multiplier  float64       // Backoff multiplier
}

// DefaultConfig returns the default retry configuration.
// Pattern: 500ms, 1s, 2s, capped at 10s.
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts: 3,
		InitialWait: 500 * time.Millisecond,
		MaxWait:     10 * time.Second,
		Multiplier:  2.0,
	}
}

// Func is an operation that can be retried
type Func func(ctx context.Context, attempt int) error

// Do executes fn with bounded exponential backoff. Only errors classified as
// retryable by the error taxonomy trigger another attempt; everything else is
// returned immediately.
func Do(ctx context.Context, cfg *Config, fn Func) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	logger := logging.FromContext(ctx)

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := fn(ctx, attempt)
		if err == nil {
			if attempt > 1 {
				logger.WithField("attempts", attempt).Info("operation succeeded after retry")
			}
			return nil
		}
		lastErr = err

		if !errors.IsRetryable(err) {
			return err
		}
		if attempt >= cfg.MaxAttempts {
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		wait := backoff(cfg, attempt)
		logger.WithFields(map[string]interface{}{
			"attempt":     attempt,
			"maxAttempts": cfg.MaxAttempts,
			"wait":        wait.String(),
			"error":       err.Error(),
		}).Warn("operation failed, retrying")

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return fmt.Errorf("operation failed after %d attempts: %w", cfg.MaxAttempts, lastErr)
}

// backoff calculates the delay before the next attempt
func backoff(cfg *Config, attempt int) time.Duration {
	wait := float64(cfg.InitialWait) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if wait > float64(cfg.MaxWait) {
		wait = float64(cfg.MaxWait)
	}
	return time.Duration(wait)
}
