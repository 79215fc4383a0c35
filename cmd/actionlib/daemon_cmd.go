package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dotcommander/actionlib/internal/scheduler"
)

func newDaemonCmd(opts *rootOptions) *cobra.Command {
	var (
		interval  time.Duration
		immediate bool
	)

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Keep the IAM token fresh in the background",
		Long: `Refresh the IAM token on a fixed interval until interrupted, so other
invocations always find a valid token in the settings file.

Refreshes happen regardless of the current expiry. A failed refresh is
logged and retried on the next tick.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.app(cmd.Context())
			if err != nil {
				return err
			}

			if interval <= 0 {
				interval = a.cfg.Refresh.Interval
			}

			refresherOpts := []scheduler.Option{
				scheduler.WithLogger(a.logger.With("component", "scheduler")),
				scheduler.WithCallTimeout(a.cfg.API.Timeout * time.Duration(a.cfg.API.MaxRetries+1)),
			}
			if immediate {
				refresherOpts = append(refresherOpts, scheduler.WithImmediateRefresh())
			}
			refresher := scheduler.NewTokenRefresher(a.settings, interval, refresherOpts...)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return refresher.Run(ctx)
			})

			err = g.Wait()
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				a.logger.Info("daemon stopped")
				return nil
			}
			return err
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 0, "Time between refreshes (default from config, 1h)")
	cmd.Flags().BoolVar(&immediate, "now", false, "Refresh once at startup before the first interval")

	return cmd
}
