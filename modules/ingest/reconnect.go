package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// ReconnectConfig contains configuration for exponential backoff on dial.
type ReconnectConfig struct {
	MaxRetries    int           // Maximum number of retries after the first attempt (default: 5)
	RetryDelay    time.Duration // Initial retry delay (default: 1 second)
	MaxRetryDelay time.Duration // Maximum retry delay cap (default: 30 seconds)
}

// DefaultReconnectConfig returns default reconnection configuration.
func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		MaxRetries:    5,
		RetryDelay:    1 * time.Second,
		MaxRetryDelay: 30 * time.Second,
	}
}

// dialFunc attempts to establish a connection once.
type dialFunc func(ctx context.Context) (Source, error)

// dialWithBackoff calls dial until it succeeds, the retries are exhausted or
// ctx is cancelled.
//
// Backoff schedule with the default config: 1s, 2s, 4s, 8s, 16s.
func dialWithBackoff(ctx context.Context, target string, cfg ReconnectConfig, dial dialFunc) (Source, error) {
	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		src, err := dial(ctx)
		if err == nil {
			if attempt > 0 {
				slog.Info("ingest: connection established after retries",
					"target", target,
					"attempts", attempt+1,
				)
			}
			return src, nil
		}

		slog.Error("ingest: connection failed", "target", target, "error", err)

		attempt++
		if attempt > cfg.MaxRetries {
			return nil, fmt.Errorf("ingest: dial %s: max retries exceeded (%d attempts): %w", target, cfg.MaxRetries, err)
		}

		delay := calculateBackoff(attempt, cfg)
		slog.Warn("ingest: retrying connection",
			"target", target,
			"attempt", attempt,
			"max_retries", cfg.MaxRetries,
			"delay", delay,
		)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// calculateBackoff returns retryDelay * 2^(attempt-1), capped at maxRetryDelay.
func calculateBackoff(attempt int, cfg ReconnectConfig) time.Duration {
	delay := cfg.RetryDelay * time.Duration(1<<uint(attempt-1))
	if delay > cfg.MaxRetryDelay || delay <= 0 {
		delay = cfg.MaxRetryDelay
	}
	return delay
}
