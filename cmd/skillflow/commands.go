package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"basegraph.app/skillflow/internal/store"
)

func newMigrateCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			database, err := openDatabase(ctx, rt.cfg)
			if err != nil {
				return err
			}
			defer database.Close()

			if err := database.Migrate(ctx); err != nil {
				return fmt.Errorf("migrating: %w", err)
			}
			slog.InfoContext(ctx, "migrations applied", "driver", rt.cfg.DB.Driver)
			return nil
		},
	}
}

func newPendingCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "Print the number of events still waiting to be processed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			database, err := openDatabase(ctx, rt.cfg)
			if err != nil {
				return err
			}
			defer database.Close()

			n, err := store.NewStores(database.Queries()).Events().CountUnresolved(ctx, rt.cfg.Retry.MaxRetries)
			if err != nil {
				return fmt.Errorf("counting pending events: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}
}

func newDrainCommand(rt *runtime) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "drain",
		Short: "Process every pending event and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			app, err := newApp(ctx, rt.cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			app.pool.Start(ctx)
			defer app.pool.Stop()

			enqueued, skipped, err := app.reconciler.ReconcileOnce(ctx)
			if err != nil {
				return fmt.Errorf("enqueueing pending events: %w", err)
			}
			slog.InfoContext(ctx, "draining", "enqueued", enqueued, "skipped", skipped)

			if err := waitIdle(ctx, app, timeout); err != nil {
				return err
			}

			left, err := app.stores.Events().CountUnresolved(ctx, rt.cfg.Retry.MaxRetries)
			if err != nil {
				return fmt.Errorf("counting pending events: %w", err)
			}
			stats := app.pool.Stats(ctx)
			fmt.Fprintf(cmd.OutOrStdout(), "processed=%d failed=%d abandoned=%d pending=%d\n",
				stats.Processed, stats.Failed, stats.Abandoned, left)
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "give up waiting after this long")
	return cmd
}

var errDrainTimeout = errors.New("drain timed out with events still in flight")

// waitIdle polls until the queue is empty and nothing is in flight,
// retries included.
func waitIdle(ctx context.Context, app *app, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		stats := app.pool.Stats(ctx)
		if stats.QueueDepth == 0 && stats.InFlight == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return errDrainTimeout
		case <-ticker.C:
		}
	}
}
