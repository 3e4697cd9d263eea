package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-tenant-auth/repository"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadRuntime()
		if err != nil {
			return err
		}
		defer logger.Sync()

		db, err := repository.Open(cfg.DBDriver, cfg.DSN)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()

		if err := repository.Migrate(cmd.Context(), db); err != nil {
			return fmt.Errorf("failed to migrate: %w", err)
		}

		logger.Info("schema up to date", "driver", cfg.DBDriver)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
