// File: internal/service/initializers.go
package service

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/internal/config"
	"github.com/xkilldash9x/webpilot/internal/store"
)

// InitializeJobStore connects to PostgreSQL when a URL is configured and falls
// back to the in-memory store otherwise. The returned pool is nil for the
// in-memory store; callers close it when it is not.
func InitializeJobStore(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger, useInMemory bool) (store.JobStore, *pgxpool.Pool, error) {
	if useInMemory || cfg.URL == "" {
		if !useInMemory {
			logger.Warn("Database URL (WEBPILOT_DATABASE_URL) is not set. Jobs are kept in memory and lost on exit.")
		}
		logger.Info("Initializing in-memory job store.")
		return store.NewMemory(), nil, nil
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create database connection pool: %w", err)
	}

	pg, err := store.NewPostgres(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to initialize database store: %w", err)
	}
	if cfg.MigrateOnStart {
		if err := pg.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
	}
	logger.Info("PostgreSQL job store initialized.", zap.String("host", poolCfg.ConnConfig.Host))
	return pg, pool, nil
}
