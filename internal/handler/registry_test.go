package handler

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "fanout/pkg/errors"
	"fanout/pkg/models"
)

func noop(context.Context, *models.InboundMessage) error { return nil }

func TestRegistry_DuplicateRegistrationFails(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Handle("order.created", noop))

	err := r.Handle("order.created", noop)
	require.Error(t, err)
	assert.True(t, apperrors.IsDuplicateHandler(err))
	assert.Contains(t, err.Error(), "order.created")
}

func TestRegistry_SameHandlerUnderTwoNames(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Handle("order.created", noop))
	require.NoError(t, r.Handle("order.updated", noop))

	assert.Equal(t, []string{"order.created", "order.updated"}, r.Events())
}

func TestRegistry_DuplicateDefault(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.HandleDefault(noop))
	err := r.HandleDefault(noop)
	assert.True(t, apperrors.IsDuplicateHandler(err))
	assert.Contains(t, err.Error(), "default")
}

func TestRegistry_ZeroParameterHandlerRejected(t *testing.T) {
	tests := []struct {
		name string
		fn   interface{}
	}{
		{name: "func()", fn: func() {}},
		{name: "func() error", fn: func() error { return nil }},
		{name: "func(ctx)", fn: func(context.Context) {}},
		{name: "func(ctx) error", fn: func(context.Context) error { return nil }},
		{name: "nil", fn: nil},
		{name: "not a function", fn: "handler"},
		{name: "wrong parameter", fn: func(string) error { return nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			err := r.Handle("event", tt.fn)
			require.Error(t, err)
			assert.True(t, apperrors.IsInvalidHandler(err))
			assert.Zero(t, r.Len())
		})
	}
}

func TestRegistry_TypedNilHandlerRejected(t *testing.T) {
	var (
		plain     func(*models.InboundMessage)
		withError func(*models.InboundMessage) error
		withCtx   func(context.Context, *models.InboundMessage) error
		async     func(context.Context, *models.InboundMessage) <-chan error
	)

	tests := []struct {
		name string
		fn   interface{}
	}{
		{name: "HandlerFunc", fn: HandlerFunc(nil)},
		{name: "AsyncFunc", fn: AsyncFunc(nil)},
		{name: "func(msg)", fn: plain},
		{name: "func(msg) error", fn: withError},
		{name: "func(ctx, msg) error", fn: withCtx},
		{name: "func(ctx, msg) <-chan error", fn: async},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			err := r.Handle("event", tt.fn)
			require.Error(t, err)
			assert.True(t, apperrors.IsInvalidHandler(err))
			assert.Zero(t, r.Len())
		})
	}

	t.Run("Register", func(t *testing.T) {
		r := NewRegistry()
		err := r.Register("event", HandlerFunc(nil))
		assert.True(t, apperrors.IsInvalidHandler(err))
		err = r.RegisterDefault(AsyncFunc(nil))
		assert.True(t, apperrors.IsInvalidHandler(err))
		assert.Zero(t, r.Len())
	})
}

func TestRegistry_AcceptedShapes(t *testing.T) {
	var called []string
	var mu sync.Mutex
	record := func(name string) {
		mu.Lock()
		called = append(called, name)
		mu.Unlock()
	}

	shapes := map[string]interface{}{
		"ctx-error": func(context.Context, *models.InboundMessage) error { record("ctx-error"); return nil },
		"msg-error": func(*models.InboundMessage) error { record("msg-error"); return nil },
		"msg":       func(*models.InboundMessage) { record("msg") },
		"async": func(context.Context, *models.InboundMessage) <-chan error {
			done := make(chan error, 1)
			go func() {
				record("async")
				close(done)
			}()
			return done
		},
		"handler": HandlerFunc(func(context.Context, *models.InboundMessage) error { record("handler"); return nil }),
	}

	r := NewRegistry()
	for event, fn := range shapes {
		require.NoError(t, r.Handle(event, fn), event)
	}

	for event := range shapes {
		entry, ok := r.Lookup(event)
		require.True(t, ok)
		assert.Equal(t, event == "async", entry.Async, event)
		require.NoError(t, entry.Handler.Handle(context.Background(), &models.InboundMessage{Event: event}))
	}

	assert.ElementsMatch(t, []string{"ctx-error", "msg-error", "msg", "async", "handler"}, called)
}

func TestRegistry_LookupFallsBackToDefault(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Handle("order.created", noop))

	_, ok := r.Lookup("unknown")
	assert.False(t, ok)

	require.NoError(t, r.HandleDefault(noop))
	assert.True(t, r.HasDefault())

	entry, ok := r.Lookup("unknown")
	require.True(t, ok)
	assert.True(t, entry.IsDefault())

	entry, ok = r.Lookup(models.DefaultEvent)
	require.True(t, ok)
	assert.True(t, entry.IsDefault())

	entry, ok = r.Lookup("order.created")
	require.True(t, ok)
	assert.Equal(t, "order.created", entry.Event)
}

func TestRegistry_Clear(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Handle("a", noop))
	require.NoError(t, r.HandleDefault(noop))

	r.Clear()

	assert.Zero(t, r.Len())
	require.NoError(t, r.Handle("a", noop))
}

func TestRegistry_ConcurrentRegistrationIsSerialized(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- r.Handle("same", noop)
		}()
	}
	wg.Wait()
	close(errs)

	var ok, dup int
	for err := range errs {
		if err == nil {
			ok++
		} else if apperrors.IsDuplicateHandler(err) {
			dup++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 9, dup)
}

func TestRegistry_MustHandlePanics(t *testing.T) {
	r := NewRegistry()
	r.MustHandle("a", noop)
	assert.Panics(t, func() { r.MustHandle("a", noop) })
}

func TestAsyncFunc_PropagatesError(t *testing.T) {
	boom := errors.New("boom")
	h, err := Adapt(func(context.Context, *models.InboundMessage) <-chan error {
		done := make(chan error, 1)
		done <- boom
		return done
	})
	require.NoError(t, err)

	assert.ErrorIs(t, h.Handle(context.Background(), &models.InboundMessage{}), boom)
}
