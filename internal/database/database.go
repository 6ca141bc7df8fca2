// Package database opens the PostgreSQL and Redis connections used by the
// store backends.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/Shivanand-hulikatti/room-calendar/internal/config"
)

const connectAttempts = 5

// retryDelay is the pause between connection attempts.
var retryDelay = 2 * time.Second

// pause waits out retryDelay unless ctx ends first.
var pause = func(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(retryDelay):
		return nil
	}
}

// NewPool creates and validates a pgxpool connection pool.
// It retries up to 5 times to accommodate containers starting up.
func NewPool(ctx context.Context, cfg config.Config, logger *logrus.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}

	// The change listener holds one connection for the life of the process.
	poolCfg.MaxConns = 20
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	var pool *pgxpool.Pool
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		pool, err = pgxpool.NewWithConfig(ctx, poolCfg)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				break
			}
			pool.Close()
		}
		if attempt == connectAttempts {
			break
		}
		logger.WithFields(logrus.Fields{"attempt": attempt, "of": connectAttempts}).
			WithError(err).Warnf("postgres connect failed, retrying in %s", retryDelay)
		if pause(ctx) != nil {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	return pool, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS bookings (
	date_key   TEXT PRIMARY KEY,
	rooms      JSONB NOT NULL,
	version    BIGINT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS month_availability (
	year_month TEXT PRIMARY KEY,
	is_open    BOOLEAN NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);`

// Migrate creates the calendar tables if they do not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}
