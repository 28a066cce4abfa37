// Package cmd contains the doculake CLI commands.
package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/doculake/doculake/internal/log"
)

var rootCmd = &cobra.Command{
	Use:   "doculake",
	Short: "Doculake - PDF insight extraction service",
	Long: `Doculake ingests PDF documents into a vector index and answers
prompts against them with grounded, cached insights.

Run "doculake serve" to start the API server and the upload watcher.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// newLogger builds the process logger. DEBUG in the environment enables
// debug level.
func newLogger() *slog.Logger {
	cfg := log.Config{Level: slog.LevelInfo, JSON: os.Getenv("DOCULAKE_LOG_JSON") != ""}
	if os.Getenv("DEBUG") != "" {
		cfg.Level = slog.LevelDebug
	}
	return log.New(cfg)
}
