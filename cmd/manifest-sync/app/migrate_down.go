package app

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/stacklok/manifest-sync/database"
)

func newMigrateDownCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "down",
		Short: "Revert database migrations",
		Long: `Revert database migrations. By default all migrations are reverted, which drops
the recorded manifest versions. Use --num-steps to revert only the latest migrations.`,
		RunE: runMigrateDown,
	}
}

func runMigrateDown(cmd *cobra.Command, _ []string) error {
	db, connString, err := loadDatabaseConfig(cmd)
	if err != nil {
		return err
	}

	steps, err := cmd.Flags().GetUint("num-steps")
	if err != nil {
		return fmt.Errorf("failed to get num-steps flag: %w", err)
	}

	ok, err := confirm(cmd, "About to revert migrations", db)
	if err != nil || !ok {
		return err
	}

	slog.Info("Reverting database migrations...", "steps", steps)
	version, err := database.MigrateDown(connString, int(steps))
	if err != nil {
		return fmt.Errorf("failed to revert migrations: %w", err)
	}

	slog.Info("Migrations reverted successfully", "version", version)
	return nil
}
