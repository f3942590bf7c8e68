// Package app wires the signal pipeline from configuration. Postgres and Redis are
// optional: without DATABASE_URL bars come from the raw CSV and models from JSON files
// under DATA_DIR, and without Redis nothing is cached. A configured database that
// cannot be reached is an error.
package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"trendr/internal/cache"
	"trendr/internal/config"
	"trendr/internal/db"
	"trendr/internal/ml/registry"
	"trendr/internal/ml/training"
	"trendr/internal/provider"
	"trendr/internal/repository"
	"trendr/internal/service"
)

const cachePrefix = "trendr"

var (
	connectPostgresFunc = db.Connect
	connectRedisFunc    = cache.Connect
	migrateFunc         = func(ctx context.Context, pool *pgxpool.Pool) (int, error) {
		m, err := db.NewMigrator(pool)
		if err != nil {
			return 0, err
		}
		return m.Up(ctx)
	}
	newProviderFunc = func(tracer trace.Tracer) service.BarProvider {
		return provider.NewYahooProvider(tracer)
	}
)

type App struct {
	Service *service.SignalService
	// Storage is "postgres" or "files".
	Storage string
	Cached  bool

	pool  *pgxpool.Pool
	redis *redis.Client
}

func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger, tracer trace.Tracer) (*App, error) {
	a := &App{Storage: "files"}

	var (
		bars   service.BarStore
		models service.ModelStore
	)
	pool, err := connectPostgresFunc(ctx, cfg.DatabaseURL, logger)
	switch {
	case errors.Is(err, db.ErrNoDSN):
		logger.Info().Msg("DATABASE_URL not set, using file storage")
	case err != nil:
		return nil, fmt.Errorf("connect postgres: %w", err)
	default:
		applied, err := migrateFunc(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		if applied > 0 {
			logger.Info().Int("applied", applied).Msg("migrations applied")
		}
		a.pool = pool
		a.Storage = "postgres"
		bars = repository.NewBarRepository(pool, tracer)
		models = registry.NewRepository(pool, tracer)
	}
	if models == nil {
		models = registry.NewFileStore(filepath.Join(cfg.DataDir, "models"))
	}

	var jsonCache service.JSONCache
	if cfg.RedisURL != "" {
		client, err := connectRedisFunc(ctx, cfg.RedisURL, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, caching disabled")
		} else {
			a.redis = client
			a.Cached = true
			jsonCache = cache.New(client, cachePrefix)
		}
	}

	opts := training.DefaultOptions()
	opts.TestDays = cfg.TestDays
	a.Service = service.NewSignalService(tracer, logger, newProviderFunc(tracer), bars, models, jsonCache, service.Options{
		Interval: cfg.Interval,
		Start:    cfg.Start,
		Model:    cfg.Model,
		Params:   cfg.Backtest,
		DataDir:  cfg.DataDir,
		Training: opts,
	})
	return a, nil
}

func (a *App) Close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
