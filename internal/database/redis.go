package database

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/Shivanand-hulikatti/room-calendar/internal/config"
)

// NewRedis creates a Redis client and waits until it answers PING, with the
// same retry policy as NewPool.
func NewRedis(ctx context.Context, cfg config.Config, logger *logrus.Logger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddress,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	var err error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		if err = rdb.Ping(ctx).Err(); err == nil {
			return rdb, nil
		}
		if attempt == connectAttempts {
			break
		}
		logger.WithFields(logrus.Fields{"attempt": attempt, "of": connectAttempts, "addr": cfg.RedisAddress}).
			WithError(err).Warnf("redis connect failed, retrying in %s", retryDelay)
		if pause(ctx) != nil {
			break
		}
	}
	_ = rdb.Close()
	return nil, fmt.Errorf("connect to redis: %w", err)
}
