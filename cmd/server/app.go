package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/phrazzld/match-gateway/internal/backend"
	"github.com/phrazzld/match-gateway/internal/cache"
	"github.com/phrazzld/match-gateway/internal/config"
	"github.com/phrazzld/match-gateway/internal/metrics"
	"github.com/phrazzld/match-gateway/internal/pool"
	"github.com/phrazzld/match-gateway/internal/region"
	"github.com/phrazzld/match-gateway/internal/service/account"
	"github.com/phrazzld/match-gateway/internal/service/auth"
	"github.com/phrazzld/match-gateway/internal/service/payment"
	"github.com/phrazzld/match-gateway/internal/service/startracker"
	"github.com/phrazzld/match-gateway/internal/session"
)

// application holds all the shared application dependencies to simplify management
// and ensure proper cleanup on shutdown.
type application struct {
	config  *config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	// Connection pool and the cache handle it owns
	pool     *pool.Manager
	cacheRes *pool.Resource[cache.Store]
	cache    *session.Cache

	regions *region.Directory
	backend *backend.Client
	tokens  auth.TokenService

	accounts *account.Service
	tracker  *startracker.Service
	payments *payment.Service
}

// newApplication wires every dependency. Nothing here performs I/O: the
// cache and backend clients are opened lazily or by start.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*application, error) {
	app := &application{
		config:  cfg,
		logger:  logger,
		metrics: metrics.New(),
	}

	var err error
	app.tokens, err = auth.NewTokenService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token service: %w", err)
	}
	logger.Info("token service initialized",
		"token_lifetime", cfg.Auth.TokenLifetime.String(),
		"refresh_grace", cfg.Auth.RefreshGrace.String())

	app.regions, err = loadRegions(cfg)
	if err != nil {
		return nil, err
	}

	app.pool = pool.NewManager(pool.ConfigFrom(cfg.Pool), logger, app.metrics)
	app.cacheRes = cache.NewResource(cfg.Cache, logger, func(name string) {
		app.metrics.PoolReinits.WithLabelValues(name).Inc()
	})
	if err := app.pool.Register(app.cacheRes); err != nil {
		return nil, fmt.Errorf("failed to register cache handle: %w", err)
	}
	for _, u := range app.regions.URLs() {
		if _, err := app.pool.HTTP(u); err != nil {
			return nil, fmt.Errorf("failed to register backend %s: %w", u, err)
		}
	}

	app.cache = session.New(cache.Pooled(app.cacheRes), session.TTLsFrom(cfg.Cache))

	opts := backend.DefaultOptions()
	opts.MaxRetries = cfg.Pool.MaxRetries
	app.backend = backend.New(app.pool, app.metrics, opts)

	app.accounts = account.NewService(app.cache, app.backend, app.regions, app.tokens, app.metrics, account.Options{
		PrefetchSize:      cfg.Login.PrefetchSize,
		ExposeConfirmCode: cfg.Auth.ExposeConfirmCode,
	}, logger)
	app.tracker = startracker.NewService(app.cache, app.backend, app.regions, app.metrics, logger)
	app.payments = payment.NewService(app.cache, app.backend, app.regions, logger)

	if cfg.Auth.ExposeConfirmCode {
		logger.Warn("confirm codes are returned in signup responses")
	}
	logger.Info("Application initialized successfully",
		"regions", app.regions.Regions(region.Auth),
		"backend_domains", len(app.regions.URLs()))
	return app, nil
}

func loadRegions(cfg *config.Config) (*region.Directory, error) {
	if cfg.RegionsFile != "" {
		dir, err := region.LoadFile(cfg.RegionsFile, cfg.Regions)
		if err != nil {
			return nil, fmt.Errorf("failed to load regions: %w", err)
		}
		return dir, nil
	}
	dir, err := region.New(cfg.Regions)
	if err != nil {
		return nil, fmt.Errorf("failed to load regions: %w", err)
	}
	return dir, nil
}

// start warms every pooled handle and launches the probe loop. A handle
// that fails to warm is retried by the probe loop, so failures are logged
// but do not stop the server.
func (app *application) start(ctx context.Context) error {
	if err := app.pool.InitializeAll(ctx); err != nil {
		app.logger.Warn("some pooled resources failed to initialize", "error", err)
	}
	return app.pool.Start(ctx)
}

// Run starts the application server, handling lifecycle and cleanup.
func (app *application) Run(ctx context.Context) error {
	if err := app.start(ctx); err != nil {
		return fmt.Errorf("failed to start pool: %w", err)
	}
	defer app.cleanup()

	if err := app.startHTTPServer(ctx, app.setupRouter()); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// cleanup handles graceful shutdown of application resources.
func (app *application) cleanup() {
	app.pool.Stop()
	if err := app.pool.CloseAll(); err != nil {
		app.logger.Error("Error closing pooled resources", "error", err)
	}
	app.logger.Info("Application shutdown completed")
}
