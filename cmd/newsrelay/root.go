package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"NewsRelay/internal/app"
	"NewsRelay/internal/config"
	"NewsRelay/internal/infrastructure/storage"
	"NewsRelay/internal/logging"
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "newsrelay",
		Short:        "Fetch, filter, translate and publish news to social channels",
		SilenceUsage: true,
		RunE:         runRelay,
	}
	root.AddCommand(newRunCommand(), newMigrateCommand(), newRetriesCommand())
	return root
}

func newRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the ingestion loop, retry worker and maintenance job",
		Long: `Run starts every long-lived worker and blocks until SIGINT or SIGTERM.
Send SIGUSR1 to start an ingestion cycle immediately.`,
		Args: cobra.NoArgs,
		RunE: runRelay,
	}
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			res, err := storage.Migrate(cfg.Database)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (changed: %t)\n", res.Version, res.Changed)
			return nil
		},
	}
}

func runRelay(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Logging.Level)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("application setup failed", zap.Error(err))
		return err
	}
	defer func() {
		if err := application.Close(); err != nil {
			logger.Warn("close application", zap.Error(err))
		}
	}()

	go forwardTriggers(ctx, application, logger)

	if err := application.Run(ctx); err != nil {
		logger.Error("application stopped", zap.Error(err))
		return err
	}
	logger.Info("application stopped")
	return nil
}

// forwardTriggers turns SIGUSR1 into a manual ingestion cycle.
func forwardTriggers(ctx context.Context, application *app.Application, logger *zap.Logger) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGUSR1)
	defer signal.Stop(sig)

	for {
		select {
		case <-ctx.Done():
			return
		case <-sig:
			logger.Info("manual trigger requested")
			application.Trigger()
		}
	}
}
