package bootstrap

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fanout/internal/config"
	"fanout/internal/constants"
	"fanout/internal/lock"
	"fanout/internal/logger"
	"fanout/internal/testinfra"
)

func TestInitLockStore_Memory(t *testing.T) {
	cfg := &config.Config{Lock: config.LockConfig{Backend: constants.LockBackendMemory}}
	dc := NewDatabaseConnector(cfg, logger.NopLogger())

	store, rdb, err := dc.InitLockStore(context.Background())
	require.NoError(t, err)
	assert.Nil(t, rdb)
	assert.IsType(t, &lock.MemoryStore{}, store)
}

func TestInitLockStore_UnknownBackend(t *testing.T) {
	cfg := &config.Config{Lock: config.LockConfig{Backend: "etcd"}}
	dc := NewDatabaseConnector(cfg, logger.NopLogger())

	_, _, err := dc.InitLockStore(context.Background())
	assert.ErrorContains(t, err, "etcd")
}

func TestInitRedis_Unreachable(t *testing.T) {
	cfg := &config.Config{
		Database: config.DatabaseConfig{Redis: config.RedisConfig{Host: "127.0.0.1", Port: 1}},
		Retry: config.RetryConfig{
			MaxAttempts:     2,
			InitialInterval: time.Millisecond,
			MaxInterval:     time.Millisecond,
			Multiplier:      1,
		},
	}
	dc := NewDatabaseConnector(cfg, logger.NopLogger())

	_, err := dc.InitRedis(context.Background())
	assert.ErrorContains(t, err, "failed to ping Redis")
}

func TestInitLockStore_RedisWithCircuitBreaker(t *testing.T) {
	client := testinfra.SetupRedis(t)

	host, portStr, err := net.SplitHostPort(client.Options().Addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	cfg := &config.Config{
		Lock:           config.LockConfig{Backend: constants.LockBackendRedis},
		Database:       config.DatabaseConfig{Redis: config.RedisConfig{Host: host, Port: port}},
		CircuitBreaker: config.CircuitBreakerConfig{Enabled: true},
	}
	dc := NewDatabaseConnector(cfg, logger.NopLogger())

	ctx := context.Background()
	store, rdb, err := dc.InitLockStore(ctx)
	require.NoError(t, err)
	require.NotNil(t, rdb)
	assert.IsType(t, &lock.CircuitBreakerStore{}, store)

	ok, err := store.SetNX(ctx, "bootstrap:test", "owner", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, store.Close())
}
