package app

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/stacklok/manifest-sync/internal/app"
	"github.com/stacklok/manifest-sync/internal/telemetry"
)

const (
	defaultGracefulTimeout = 30 * time.Second
	telemetryFlushTimeout  = 5 * time.Second
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run scheduled reconciliation and the HTTP API",
		Long: `Run reconciliation passes on the configured interval and serve the HTTP API.

The server requires a configuration file (--config) that specifies:
- The manifest source (http, git or file)
- The version store (file or database)
- The publication sink (http or log)

See the examples/ directory for sample configurations.`,
		RunE: runServe,
	}

	cmd.Flags().String("address", ":8080", "Address to listen on")
	addConfigFlag(cmd, false)

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	address, err := cmd.Flags().GetString("address")
	if err != nil {
		return fmt.Errorf("failed to get address flag: %w", err)
	}

	tel, err := telemetry.New(ctx, telemetry.WithTelemetryConfig(cfg.Telemetry))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), telemetryFlushTimeout)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to shut down telemetry", "error", err)
		}
	}()

	opts := []app.AppOption{
		app.WithConfig(cfg),
		app.WithAddress(address),
	}
	if cfg.Telemetry != nil && cfg.Telemetry.Enabled {
		opts = append(opts,
			app.WithMeterProvider(tel.MeterProvider()),
			app.WithTracerProvider(tel.TracerProvider()),
			app.WithMetricsHandler(tel.MetricsHandler()))
	}

	syncApp, err := app.NewManifestSyncApp(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to build application: %w", err)
	}

	slog.Info("Starting manifest-sync",
		"address", address,
		"manifest", cfg.Manifest.URL,
		"interval", cfg.Sync.Interval.Std())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(syncApp.Start)
	g.Go(func() error {
		<-gctx.Done()
		return syncApp.Stop(defaultGracefulTimeout)
	})

	return g.Wait()
}
