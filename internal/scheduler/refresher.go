// Package scheduler runs the periodic IAM token refresh.
package scheduler

import (
	"context"
	"log/slog"
	"time"
)

// Refresher is the part of the settings store the scheduler drives
type Refresher interface {
	RefreshToken(ctx context.Context) error
}

// TokenRefresher refreshes the IAM token on a fixed interval regardless of
// its current expiry. Failures are logged and the next tick tries again.
type TokenRefresher struct {
	refresher    Refresher
	interval     time.Duration
	callTimeout  time.Duration
	runAtStartup bool
	logger       *slog.Logger

	// ticked is signalled after every attempt; used by tests
	ticked func(error)
}

type Option func(*TokenRefresher)

func WithLogger(logger *slog.Logger) Option {
	return func(t *TokenRefresher) {
		t.logger = logger
	}
}

// WithCallTimeout bounds each refresh attempt
func WithCallTimeout(timeout time.Duration) Option {
	return func(t *TokenRefresher) {
		if timeout > 0 {
			t.callTimeout = timeout
		}
	}
}

// WithImmediateRefresh makes Run attempt a refresh before the first tick
func WithImmediateRefresh() Option {
	return func(t *TokenRefresher) {
		t.runAtStartup = true
	}
}

func NewTokenRefresher(refresher Refresher, interval time.Duration, opts ...Option) *TokenRefresher {
	t := &TokenRefresher{
		refresher:   refresher,
		interval:    interval,
		callTimeout: 2 * time.Minute,
		logger:      slog.Default().With("component", "scheduler"),
	}

	for _, opt := range opts {
		opt(t)
	}

	if t.interval <= 0 {
		t.interval = time.Hour
	}

	return t
}

// Run refreshes on every tick until ctx is cancelled. It always returns
// ctx.Err().
func (t *TokenRefresher) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	t.logger.Info("token refresher started", "interval", t.interval)

	if t.runAtStartup {
		t.attempt(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("token refresher stopped")
			return ctx.Err()
		case <-ticker.C:
			t.attempt(ctx)
		}
	}
}

func (t *TokenRefresher) attempt(ctx context.Context) {
	callCtx, cancel := context.WithTimeout(ctx, t.callTimeout)
	defer cancel()

	start := time.Now()
	err := t.refresher.RefreshToken(callCtx)
	if err != nil {
		t.logger.Error("scheduled token refresh failed",
			"error", err,
			"duration_ms", time.Since(start).Milliseconds())
	} else {
		t.logger.Debug("scheduled token refresh succeeded",
			"duration_ms", time.Since(start).Milliseconds())
	}

	if t.ticked != nil {
		t.ticked(err)
	}
}
