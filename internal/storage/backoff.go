package storage

import (
	"context"
	"fmt"
	"time"
)

// BackoffConfig is the exponential-backoff retry schedule storage
// operations use for transient failures, grounded on the reference
// codebase's RTSP reconnect policy (RunWithReconnect/calculateBackoff).
type BackoffConfig struct {
	MaxRetries    int
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
}

// DefaultBackoff mirrors the reference codebase's DefaultReconnectConfig.
func DefaultBackoff() BackoffConfig {
	return BackoffConfig{MaxRetries: 5, RetryDelay: time.Second, MaxRetryDelay: 30 * time.Second}
}

// Retry runs fn, retrying with exponential backoff on error until it
// succeeds or MaxRetries is exhausted, in which case it returns the last
// error wrapped with the attempt count.
func Retry(ctx context.Context, cfg BackoffConfig, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(attempt, cfg)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if err := fn(); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("storage: exhausted %d retries: %w", cfg.MaxRetries, lastErr)
}

func backoffDelay(attempt int, cfg BackoffConfig) time.Duration {
	delay := cfg.RetryDelay * time.Duration(1<<uint(attempt-1))
	if delay > cfg.MaxRetryDelay {
		delay = cfg.MaxRetryDelay
	}
	return delay
}
