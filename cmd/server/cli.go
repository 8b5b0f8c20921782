package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/phrazzld/match-gateway/internal/cache"
	"github.com/phrazzld/match-gateway/internal/config"
	"github.com/phrazzld/match-gateway/internal/platform/logger"
)

// buildRootCommand assembles the command tree:
//
//	gateway serve
//	gateway migrate up|down|status|version
func buildRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "gateway",
		Short:         "Region-aware API gateway for the match backends",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(buildServeCommand())
	root.AddCommand(buildMigrateCommand())
	return root
}

func buildServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx)
		},
	}
}

func buildMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down|status|version]",
		Short:     "Manage the Postgres cache tables",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"up", "down", "status", "version"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			log, err := logger.Setup(cfg.Server)
			if err != nil {
				return fmt.Errorf("failed to set up logger: %w", err)
			}
			return runMigrations(cmd.Context(), cfg.Cache, cache.MigrateCommand(args[0]), log)
		},
	}
}

// serve loads configuration, builds the application and runs it until ctx
// is cancelled.
func serve(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	log, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}
	log.Info("Server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"cache_backend", cfg.Cache.Backend)

	app, err := newApplication(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	return app.Run(ctx)
}
