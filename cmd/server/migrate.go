package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/phrazzld/match-gateway/internal/cache"
	"github.com/phrazzld/match-gateway/internal/config"
)

// runMigrations applies a goose command to the Postgres cache tables.
// Other backends need no schema.
func runMigrations(ctx context.Context, cfg config.CacheConfig, command cache.MigrateCommand, log *slog.Logger) error {
	if cfg.Backend != cache.BackendPostgres {
		return fmt.Errorf("migrations apply to the postgres cache backend, configured backend is %q", cfg.Backend)
	}
	store, err := cache.NewPostgresStore(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("Error closing database connection", "error", err)
		}
	}()

	log.Info("Executing migrations", "command", string(command))
	return cache.Migrate(ctx, store.DB(), command, log)
}
