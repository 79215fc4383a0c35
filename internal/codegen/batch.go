package codegen

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dotcommander/actionlib/internal/actions"
)

// BatchResult is the outcome of generating code for one action
type BatchResult struct {
	ID     string
	Action actions.Action
	Err    error
}

// BatchOption allows customization of batch generation
type BatchOption func(*batchConfig)

type batchConfig struct {
	workers int
	timeout time.Duration
}

// WithWorkers sets how many actions are generated concurrently
func WithWorkers(workers int) BatchOption {
	return func(c *batchConfig) {
		if workers > 0 {
			c.workers = workers
		}
	}
}

// WithItemTimeout bounds the time spent on a single action
func WithItemTimeout(timeout time.Duration) BatchOption {
	return func(c *batchConfig) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// GenerateMany runs GenerateForAction for each id with bounded concurrency.
// A failure on one action does not stop the others; results come back in
// the order of ids, each carrying its own error.
func (s *Service) GenerateMany(ctx context.Context, ids []string, opts ...BatchOption) []BatchResult {
	cfg := batchConfig{
		workers: 2,
		timeout: 2 * time.Minute,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	results := make([]BatchResult, len(ids))
	if len(ids) == 0 {
		return results
	}

	logger := s.generator.logger
	logger.Info("starting batch generation",
		"item_count", len(ids),
		"worker_count", cfg.workers,
		"timeout", cfg.timeout)

	// Per-item errors go into results; workers always return nil
	var g errgroup.Group
	g.SetLimit(cfg.workers)

	for i, id := range ids {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = BatchResult{ID: id, Err: err}
				return nil
			}

			itemCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
			defer cancel()

			action, err := s.GenerateForAction(itemCtx, id)
			results[i] = BatchResult{ID: id, Action: action, Err: err}
			if err != nil {
				logger.Error("batch item failed", "action_id", id, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	logger.Log(ctx, levelFor(failed), "batch generation completed",
		"item_count", len(ids),
		"failed_count", failed)

	return results
}

func levelFor(failed int) slog.Level {
	if failed > 0 {
		return slog.LevelWarn
	}
	return slog.LevelInfo
}
