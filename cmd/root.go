// Package cmd contains the insight CLI: serve, tenants and version.
package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/genius-labs/insight/internal/log"
)

var rootCmd = &cobra.Command{
	Use:   "insight",
	Short: "insight - multi-tenant research RAG and persona simulation",
	Long: `insight serves grounded answers over tenant research corpora and
runs synthetic consumer persona simulations (chats, surveys, focus
groups) on top of them.

Run 'insight serve' to start the orchestration core.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// newLogger builds the process logger. DEBUG in the environment lowers
// the level; logs go to stderr.
func newLogger() log.Logger {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	return log.New(log.Config{Level: level})
}
