package lock

import (
	"context"
	"fmt"
	"time"

	"fanout/internal/config"
	"fanout/pkg/circuitbreaker"
)

const breakerName = "redis-lock"

// CircuitBreakerStore fails fast while the lock store is unhealthy instead of
// letting every message wait on a dead connection.
type CircuitBreakerStore struct {
	store Store
	cb    *circuitbreaker.Wrapper
}

func NewCircuitBreakerStore(store Store, cfg config.CircuitBreakerConfig) *CircuitBreakerStore {
	if !cfg.Enabled {
		return &CircuitBreakerStore{store: store}
	}

	cbConfig := circuitbreaker.DefaultConfig(breakerName)
	if cfg.MaxRequests > 0 {
		cbConfig.MaxRequests = cfg.MaxRequests
	}
	if cfg.Interval > 0 {
		cbConfig.Interval = cfg.Interval
	}
	if cfg.Timeout > 0 {
		cbConfig.Timeout = cfg.Timeout
	}
	if cfg.FailureRatio > 0 && cfg.MinRequests > 0 {
		cbConfig.ReadyToTrip = circuitbreaker.RatioTrip(cfg.MinRequests, cfg.FailureRatio)
	}

	return &CircuitBreakerStore{
		store: store,
		cb:    circuitbreaker.NewWrapper(cbConfig),
	}
}

func (s *CircuitBreakerStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if s.cb == nil {
		return s.store.SetNX(ctx, key, value, ttl)
	}

	ok, err := circuitbreaker.Execute(ctx, s.cb, func() (bool, error) {
		return s.store.SetNX(ctx, key, value, ttl)
	})
	return ok, s.wrap(err)
}

func (s *CircuitBreakerStore) Delete(ctx context.Context, key, value string) (bool, error) {
	if s.cb == nil {
		return s.store.Delete(ctx, key, value)
	}

	ok, err := circuitbreaker.Execute(ctx, s.cb, func() (bool, error) {
		return s.store.Delete(ctx, key, value)
	})
	return ok, s.wrap(err)
}

func (s *CircuitBreakerStore) Close() error {
	return s.store.Close()
}

func (s *CircuitBreakerStore) State() string {
	if s.cb == nil {
		return "disabled"
	}
	return s.cb.State().String()
}

func (s *CircuitBreakerStore) wrap(err error) error {
	if err == nil {
		return nil
	}
	if s.cb.IsOpen() {
		return fmt.Errorf("circuit breaker is open for %s: %w", breakerName, err)
	}
	return err
}
