package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"fleet-tracker/internal/config"
	"fleet-tracker/pkg/e"
)

// Connect opens the TimescaleDB pool and verifies it with a ping. An
// unreachable store at startup is fatal to the process.
func Connect(ctx context.Context, cfg config.DBConfig, logger *zap.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, e.Wrap("store.Connect.ParseConfig", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, e.Wrap("store.Connect.New", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, e.Wrap("store.Connect.Ping", err)
	}

	logger.Info("connected to timescaledb",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Name),
	)
	return pool, nil
}
