package app

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/stacklok/manifest-sync/database"
)

func newMigrateUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply pending database migrations",
		Long: `Apply all pending database migrations to bring the version store schema up to date.
The database connection parameters are read from the storage section of the config file.`,
		RunE: runMigrateUp,
	}
}

func runMigrateUp(cmd *cobra.Command, _ []string) error {
	db, connString, err := loadDatabaseConfig(cmd)
	if err != nil {
		return err
	}

	ok, err := confirm(cmd, "About to apply migrations", db)
	if err != nil || !ok {
		return err
	}

	slog.Info("Applying database migrations...")
	version, err := database.MigrateUp(connString)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	slog.Info("Migrations applied successfully", "version", version)
	return nil
}
