package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var legacyRun bool

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Run one reconciliation pass over the pending reviews and exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := bootstrap()
		if err != nil {
			return err
		}
		defer logger.Sync()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		processor := a.primary
		if legacyRun {
			processor = a.legacy
		}
		report, err := processor.Run(ctx)
		if err != nil {
			return err
		}
		logger.Info("reconciliation completed",
			zap.String("mode", processor.Mode().Name),
			zap.Int("rows", report.Rows),
			zap.Int("reconciled", report.Reconciled),
			zap.Int("failed", report.Failed),
		)
		return nil
	},
}

func init() {
	reconcileCmd.Flags().BoolVar(&legacyRun, "legacy", false, "use the legacy status vocabulary (DONE, Completata) and override transitions")
}
