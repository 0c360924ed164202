package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"autodrop/internal/retry"
)

type pingFunc func(ctx context.Context, pc *pgxpool.Config) error

// WaitReady pings the database until it answers, backing off between
// attempts, and gives up after maxAttempts or when ctx ends.
func WaitReady(ctx context.Context, cfg Config, retryCfg retry.Config, maxAttempts int) error {
	return waitReady(ctx, cfg, retryCfg, maxAttempts, ping)
}

func waitReady(ctx context.Context, cfg Config, retryCfg retry.Config, maxAttempts int, fn pingFunc) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	pc, err := cfg.PoolConfig()
	if err != nil {
		return err
	}
	return retry.Do(ctx, retryCfg, maxAttempts, func(ctx context.Context) error {
		return fn(ctx, pc)
	})
}

func ping(ctx context.Context, pc *pgxpool.Config) error {
	pool, err := pgxpool.NewWithConfig(ctx, pc.Copy())
	if err != nil {
		return err
	}
	defer pool.Close()
	return pool.Ping(ctx)
}
