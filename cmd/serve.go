package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/doculake/doculake/api"
	"github.com/doculake/doculake/internal/app"
	"github.com/doculake/doculake/internal/config"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server and the upload directory watcher",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides configuration)")
	rootCmd.AddCommand(serveCmd)
}

// runServe initializes the application and runs the HTTP server and the
// filesystem watcher until interrupted.
func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := newLogger()
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting doculake", "version", AppVersion)

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	watchErr := make(chan error, 1)
	go func() {
		watchErr <- a.Watcher.Run(ctx)
	}()

	srv, err := api.NewServer(api.ServerConfig{
		Logger:  logger,
		Service: a.Insights,
		Status:  a.Status,
		Cache:   a.Cache,
		Broker:  a.Broker,
		Images:  a.Images,
		Pool:    a.Pool,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	addr := serveAddr
	if addr == "" {
		addr = cfg.ServerAddr
	}
	if err := srv.Run(ctx, addr); err != nil {
		return fmt.Errorf("HTTP server: %w", err)
	}

	// The watcher stops on the same context; wait so in-flight ingestions
	// finish before resources close.
	cancel()
	if err := <-watchErr; err != nil {
		logger.Warn("watcher stopped with error", "error", err)
	}
	return nil
}
