package cmd

import (
	"errors"
	"fmt"

	"github.com/psds-microservice/ticket-tracker/internal/config"
	"github.com/psds-microservice/ticket-tracker/internal/database"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run PostgreSQL schema migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE:  runMigrate(database.MigrateUp, "migrate up: ok"),
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the latest migration",
	RunE:  runMigrate(database.MigrateDown, "migrate down: ok"),
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the migration status",
	RunE:  runMigrate(database.MigrateStatus, ""),
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateStatusCmd)
}

func runMigrate(fn func(databaseURL string, log *zap.Logger) error, done string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, log, err := bootstrap()
		if err != nil {
			return err
		}
		defer log.Sync() //nolint:errcheck
		if cfg.StoreDriver != config.StoreDriverPostgres {
			return errors.New("migrate: only STORE_DRIVER=postgres uses migrations")
		}
		if err := fn(cfg.DatabaseURL(), log); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		if done != "" {
			log.Info(done)
		}
		return nil
	}
}
