package lifecycle

import (
	"sort"
	"sync"

	"fanout/internal/consumer"
	"fanout/internal/producer"
)

// Attribute names under which the listener publishes its components.
const (
	ProducerAttr = "producer"
	ConsumerAttr = "consumer"
)

// Host is the attribute bag shared with the rest of the application.
type Host struct {
	mu    sync.RWMutex
	attrs map[string]interface{}
}

func NewHost() *Host {
	return &Host{attrs: make(map[string]interface{})}
}

func (h *Host) Set(name string, v interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.attrs[name] = v
}

func (h *Host) Get(name string) (interface{}, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	v, ok := h.attrs[name]
	return v, ok
}

func (h *Host) Names() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.attrs))
	for name := range h.attrs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (h *Host) Producer() (*producer.Producer, bool) {
	v, ok := h.Get(ProducerAttr)
	if !ok {
		return nil, false
	}
	p, ok := v.(*producer.Producer)
	return p, ok
}

func (h *Host) Consumer() (*consumer.Consumer, bool) {
	v, ok := h.Get(ConsumerAttr)
	if !ok {
		return nil, false
	}
	c, ok := v.(*consumer.Consumer)
	return c, ok
}
