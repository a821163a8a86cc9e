package main

import (
	"github.com/spf13/cobra"

	"github.com/untibullet/service-review/internal/repository"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the pending reviews schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := bootstrap()
		if err != nil {
			return err
		}
		defer logger.Sync()

		pool, err := initDatabase(cmd.Context(), cfg.Database)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := repository.Migrate(cmd.Context(), pool); err != nil {
			return err
		}
		logger.Info("migrations applied")
		return nil
	},
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd)
}
