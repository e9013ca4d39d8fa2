package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecute_PassesResultThrough(t *testing.T) {
	w := NewWrapper(DefaultConfig("test-pass"))

	got, err := Execute(context.Background(), w, func() (bool, error) { return true, nil })
	require.NoError(t, err)
	assert.True(t, got)
}

func TestExecute_TripsOpen(t *testing.T) {
	cfg := DefaultConfig("test-trip")
	cfg.Timeout = time.Minute
	cfg.ReadyToTrip = RatioTrip(2, 0.5)
	w := NewWrapper(cfg)

	boom := errors.New("redis down")
	for i := 0; i < 2; i++ {
		_, err := Execute(context.Background(), w, func() (bool, error) { return false, boom })
		assert.ErrorIs(t, err, boom)
	}

	assert.True(t, w.IsOpen())
	_, err := Execute(context.Background(), w, func() (bool, error) { return true, nil })
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
}

func TestExecute_CancelledContext(t *testing.T) {
	w := NewWrapper(DefaultConfig("test-cancel"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	_, err := Execute(ctx, w, func() (int, error) {
		called = true
		return 1, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestRatioTrip(t *testing.T) {
	trip := RatioTrip(4, 0.5)
	assert.False(t, trip(gobreaker.Counts{Requests: 3, TotalFailures: 3}))
	assert.True(t, trip(gobreaker.Counts{Requests: 4, TotalFailures: 2}))
	assert.False(t, trip(gobreaker.Counts{Requests: 4, TotalFailures: 1}))
}
