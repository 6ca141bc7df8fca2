package database

import (
	"context"
	"os"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/room-calendar/internal/config"
)

func TestNewRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.Defaults()
	cfg.RedisAddress = mr.Addr()

	rdb, err := NewRedis(context.Background(), cfg, logrus.New())
	require.NoError(t, err)
	defer rdb.Close()
	assert.NoError(t, rdb.Set(context.Background(), "k", "v", 0).Err())
	got, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestNewRedisStopsRetryingAfterLastAttempt(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.Defaults()
	cfg.RedisAddress = mr.Addr()
	mr.Close()

	pauses := 0
	orig := pause
	pause = func(context.Context) error {
		pauses++
		return nil
	}
	t.Cleanup(func() { pause = orig })

	_, err := NewRedis(context.Background(), cfg, logrus.New())
	assert.ErrorContains(t, err, "connect to redis")
	assert.Equal(t, connectAttempts-1, pauses)
}

func TestNewRedisGivesUpWhenContextEnds(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.Defaults()
	cfg.RedisAddress = mr.Addr()
	mr.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewRedis(ctx, cfg, logrus.New())
	assert.Error(t, err)
}

func TestNewPoolAndMigrate(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	cfg := config.Defaults()
	cfg.DatabaseURL = url

	ctx := context.Background()
	pool, err := NewPool(ctx, cfg, logrus.New())
	require.NoError(t, err)
	defer pool.Close()
	require.NoError(t, Migrate(ctx, pool))
	require.NoError(t, Migrate(ctx, pool))
}
