package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"onetwotranscript/internal/app"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the upload page and HTTP API until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			log := ctx.zapLogger()

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			application, err := app.NewApplication(runCtx, cfg, log)
			if err != nil {
				log.Error("failed to create application", zap.Error(err), zap.String("component", "main"))
				return fmt.Errorf("create application: %w", err)
			}

			runErr := application.Run(runCtx)
			if runErr != nil {
				log.Error("application runtime error", zap.Error(runErr), zap.String("component", "main"))
			}
			if err := application.Shutdown(); err != nil {
				log.Error("error during application shutdown", zap.Error(err), zap.String("component", "main"))
			}
			if runErr != nil {
				return runErr
			}

			log.Info("OneTwo Transcript stopped", zap.String("component", "main"))
			return nil
		},
	}
}
