package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/genius-labs/insight/internal/app"
	"github.com/genius-labs/insight/internal/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the orchestration core",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// runServe initializes the application and blocks until SIGINT or
// SIGTERM.
func runServe() error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting insight", "version", AppVersion)

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	logger.Info("orchestration core ready",
		"tenants", len(cfg.Tenants),
		"model", cfg.ModelName,
	)

	<-ctx.Done()
	logger.Info("signal received, shutting down")
	return nil
}
