package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/sheltertrack/internal/config"
)

// Connect opens and pings a pgx pool sized from cfg.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	poolCfg.MinConns = int32(cfg.MaxIdleConns)
	poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// Open builds the Store selected by cfg.Store.Driver. For postgres it applies
// pending migrations before connecting.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		if err := RunMigrations(cfg.Database.URL, cfg.Store.MigrationsDir); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		slog.Info("database migrations applied")

		pool, err := Connect(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		return NewPostgresStore(pool), nil
	case config.DriverSQLite:
		return NewSQLiteStore(cfg.Store.SQLitePath)
	case config.DriverMemory:
		slog.Warn("using in-memory store; records are lost on exit")
		return NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}
