package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/utafrali/VideoTube/internal/app"
	"github.com/utafrali/VideoTube/internal/config"
	"github.com/utafrali/VideoTube/pkg/logger"
)

const serviceName = "videotube-accounts"

func main() {
	// Create a context that is cancelled on SIGINT or SIGTERM.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "videotube",
		Short:         "VideoTube accounts service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newMigrateCommand())
	return cmd
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			log.Info("starting accounts service",
				slog.String("environment", cfg.Environment),
				slog.Int("http_port", cfg.HTTPPort),
				slog.String("media_provider", cfg.MediaProvider),
			)

			// Create the application with all dependencies wired.
			application, err := app.NewApp(cfg, log)
			if err != nil {
				return fmt.Errorf("initialize application: %w", err)
			}

			// Run the application. This blocks until shutdown.
			if err := application.Run(cmd.Context()); err != nil {
				return err
			}

			log.Info("accounts service stopped")
			return nil
		},
	}
}

func newMigrateCommand() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			return app.Migrate(cmd.Context(), cfg, log, dryRun)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "List migration files without connecting")
	return cmd
}

// setup loads configuration from environment variables and builds the
// structured logger.
func setup() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, logger.New(serviceName, cfg.LogLevel), nil
}
