package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"basegraph.app/skillflow/common/id"
	"basegraph.app/skillflow/common/logger"
	"basegraph.app/skillflow/common/otel"
	"basegraph.app/skillflow/core/config"
)

var version = "dev"

// runtime is what every subcommand shares once the root has loaded config.
type runtime struct {
	cfg       config.Config
	telemetry *otel.Telemetry
}

func main() {
	rt := &runtime{}

	rootCmd := &cobra.Command{
		Use:           "skillflow",
		Short:         "Process GitHub webhooks for a skills repository",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return rt.init(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return rt.telemetry.Shutdown(context.WithoutCancel(cmd.Context()))
		},
	}

	rootCmd.AddCommand(
		newServeCommand(rt),
		newMigrateCommand(rt),
		newPendingCommand(rt),
		newDrainCommand(rt),
	)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		slog.Error("command failed", "error", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func (rt *runtime) init(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	rt.cfg = cfg

	// otel must be set up before the logger, which may export through it
	telemetry, err := otel.Setup(ctx, cfg.OTel, cfg.Env)
	if err != nil {
		return fmt.Errorf("initializing otel: %w", err)
	}
	rt.telemetry = telemetry

	logger.Setup(cfg)
	if telemetry != nil {
		slog.InfoContext(ctx, "otel initialized", "endpoint", cfg.OTel.Endpoint)
	}

	if err := id.Init(cfg.NodeID); err != nil {
		return fmt.Errorf("initializing id generator: %w", err)
	}
	return nil
}
