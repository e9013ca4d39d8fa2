package handler

import (
	"fmt"
	"sort"
	"sync"

	apperrors "fanout/pkg/errors"
	"fanout/pkg/models"
)

// Entry is one registration. An empty Event is the default entry.
type Entry struct {
	Event   string
	Handler Handler
	Async   bool
}

func (e Entry) IsDefault() bool {
	return e.Event == models.DefaultEvent
}

// Registry is written during startup and read by every consumer afterwards.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Entry
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Entry)}
}

// Register binds h to event. An empty event registers the default handler.
func (r *Registry) Register(event string, h Handler) error {
	if isNilFunc(h) {
		return apperrors.ErrInvalidHandler.WithMessage("handler is nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[event]; exists {
		return apperrors.ErrDuplicateHandler.
			WithMessage(fmt.Sprintf("handler already registered for event %q", label(event))).
			WithDetail("event", label(event))
	}

	r.handlers[event] = Entry{Event: event, Handler: h, Async: isAsync(h)}
	return nil
}

func (r *Registry) RegisterDefault(h Handler) error {
	return r.Register(models.DefaultEvent, h)
}

// Handle adapts fn and registers it for event.
func (r *Registry) Handle(event string, fn interface{}) error {
	h, err := Adapt(fn)
	if err != nil {
		return err
	}
	return r.Register(event, h)
}

func (r *Registry) HandleDefault(fn interface{}) error {
	return r.Handle(models.DefaultEvent, fn)
}

// MustHandle panics on registration errors. Meant for package init wiring.
func (r *Registry) MustHandle(event string, fn interface{}) {
	if err := r.Handle(event, fn); err != nil {
		panic(err)
	}
}

// Lookup returns the handler for event, falling back to the default handler.
func (r *Registry) Lookup(event string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if e, ok := r.handlers[event]; ok {
		return e, true
	}
	e, ok := r.handlers[models.DefaultEvent]
	return e, ok
}

// Events lists the registered event names in sorted order, excluding the default.
func (r *Registry) Events() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	events := make([]string, 0, len(r.handlers))
	for event := range r.handlers {
		if event != models.DefaultEvent {
			events = append(events, event)
		}
	}
	sort.Strings(events)
	return events
}

func (r *Registry) HasDefault() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[models.DefaultEvent]
	return ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = make(map[string]Entry)
}

func label(event string) string {
	if event == models.DefaultEvent {
		return "default"
	}
	return event
}
