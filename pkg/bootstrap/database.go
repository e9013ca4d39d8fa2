package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"fanout/internal/config"
	"fanout/internal/constants"
	"fanout/internal/lock"
	"fanout/internal/logger"
	"fanout/pkg/retry"
)

type DatabaseConnector struct {
	Config *config.Config
	Logger logger.Logger
}

func NewDatabaseConnector(cfg *config.Config, log logger.Logger) *DatabaseConnector {
	return &DatabaseConnector{
		Config: cfg,
		Logger: log,
	}
}

// InitRedis connects and pings Redis, retrying per the retry configuration.
func (dc *DatabaseConnector) InitRedis(ctx context.Context) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", dc.Config.Database.Redis.Host, dc.Config.Database.Redis.Port),
		Password: dc.Config.Database.Redis.Password,
		DB:       dc.Config.Database.Redis.DB,
	})

	policy := retry.Policy{
		MaxAttempts:     dc.Config.Retry.MaxAttempts,
		InitialInterval: dc.Config.Retry.InitialInterval,
		MaxInterval:     dc.Config.Retry.MaxInterval,
		Multiplier:      dc.Config.Retry.Multiplier,
		MaxElapsedTime:  dc.Config.Retry.MaxElapsedTime,
	}

	err := retry.RetryWithCallback(ctx, policy, func() error {
		return rdb.Ping(ctx).Err()
	}, func(attempt int, err error, nextDelay time.Duration) {
		dc.Logger.WarnwCtx(ctx, "Redis not reachable, retrying",
			"attempt", attempt,
			"retry_in", nextDelay,
			"error", err,
		)
	})
	if err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	dc.Logger.InfowCtx(ctx, "Redis connected successfully")
	return rdb, nil
}

// InitLockStore builds the lock store for the configured backend. The
// returned client is nil for the memory backend; otherwise the store owns it
// and closes it on Close.
func (dc *DatabaseConnector) InitLockStore(ctx context.Context) (lock.Store, *redis.Client, error) {
	switch dc.Config.Lock.Backend {
	case constants.LockBackendMemory:
		dc.Logger.WarnwCtx(ctx, "Using in-memory lock store, locks are not shared between instances")
		return lock.NewMemoryStore(), nil, nil
	case constants.LockBackendRedis, "":
		rdb, err := dc.InitRedis(ctx)
		if err != nil {
			return nil, nil, err
		}
		var store lock.Store = lock.NewRedisStore(rdb)
		if dc.Config.CircuitBreaker.Enabled {
			store = lock.NewCircuitBreakerStore(store, dc.Config.CircuitBreaker)
			dc.Logger.InfowCtx(ctx, "Circuit breaker enabled for lock store")
		}
		return store, rdb, nil
	default:
		return nil, nil, fmt.Errorf("unsupported lock backend %q", dc.Config.Lock.Backend)
	}
}
