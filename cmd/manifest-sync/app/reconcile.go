package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/stacklok/manifest-sync/internal/app"
	"github.com/stacklok/manifest-sync/internal/sink"
	pkgsync "github.com/stacklok/manifest-sync/internal/sync"
)

func newReconcileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Run a single reconciliation pass",
		Long: `Run a single reconciliation pass and print the resulting delta as JSON.

The pass reads the manifest, updates the version store and publishes the delta
through the configured sink. With --dry-run the delta is printed but not published.`,
		RunE: runReconcile,
	}

	cmd.Flags().Bool("dry-run", false, "Print the delta without publishing it to the configured sink")
	addConfigFlag(cmd, false)

	return cmd
}

// discardSink accepts every delta without publishing it
type discardSink struct{}

func (discardSink) Publish(context.Context, sink.Delta) error { return nil }

func (discardSink) Name() string { return "dry-run" }

func runReconcile(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	dryRun, err := cmd.Flags().GetBool("dry-run")
	if err != nil {
		return fmt.Errorf("failed to get dry-run flag: %w", err)
	}

	opts := []app.AppOption{app.WithConfig(cfg)}
	if dryRun {
		opts = append(opts, app.WithSink(discardSink{}))
	}

	pc, err := app.NewPassComponents(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to build pass components: %w", err)
	}
	defer func() {
		if err := pc.Store.Close(); err != nil {
			slog.Error("Failed to close version store", "error", err)
		}
	}()

	passCtx, cancel := context.WithTimeout(ctx, cfg.Sync.Timeout.Std())
	defer cancel()

	result, syncErr := pc.Manager.PerformPass(passCtx)
	if result != nil {
		if err := writeDelta(cmd.OutOrStdout(), result); err != nil {
			return err
		}
	}
	if syncErr != nil {
		return fmt.Errorf("reconciliation pass failed (%s): %w", syncErr.Reason, syncErr)
	}
	return nil
}

func writeDelta(w io.Writer, result *pkgsync.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result.Delta); err != nil {
		return fmt.Errorf("failed to write delta: %w", err)
	}
	return nil
}
