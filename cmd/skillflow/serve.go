package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"basegraph.app/skillflow/internal/http/handler/webhook"
	httprouter "basegraph.app/skillflow/internal/http/router"
)

func newServeCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server and the worker pool",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), rt)
		},
	}
}

func serve(ctx context.Context, rt *runtime) error {
	cfg := rt.cfg
	slog.InfoContext(ctx, "skillflow starting", "env", cfg.Env, "version", version)

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	// workers outlive the signal context so in-flight events finish
	workCtx, stopWork := context.WithCancel(context.WithoutCancel(ctx))
	defer stopWork()

	a.pool.Start(workCtx)
	go a.reconciler.Run(workCtx)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	handler := webhook.NewGitHubWebhookHandler(
		webhook.Config{
			Secret:      cfg.Webhook.Secret,
			MaxBodySize: cfg.Webhook.MaxBodySize,
			MaxRetries:  cfg.Retry.MaxRetries,
		},
		a.ingest,
		a.pool,
		a.reconciler,
		a.stores.Events(),
		a.stats,
	)
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httprouter.New(cfg.OTel.ServiceName, handler, a.db),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.InfoContext(ctx, "http server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case <-sigCtx.Done():
	case err, ok := <-serverErr:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
	}

	slog.InfoContext(ctx, "shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "http server shutdown error", "error", err)
	}
	a.reconciler.Stop()
	a.pool.Stop()
	stopWork()

	slog.InfoContext(shutdownCtx, "shutdown complete")
	return nil
}
