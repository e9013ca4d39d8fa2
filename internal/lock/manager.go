// Package lock suppresses concurrent handling of the same message across
// consumer processes with a short-lived per-message lock.
//
// A lock outlives its handler only until its TTL expires. A handler that runs
// longer than the TTL can overlap with a second worker that re-received the
// message; the TTL bounds that window and is not extended.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"fanout/internal/logger"
	apperrors "fanout/pkg/errors"
)

var ErrStoreClosed = errors.New("lock store is closed")

const (
	DefaultKeyPrefix = "fanout:lock:"
	DefaultTTL       = 10 * time.Second
)

// Entry is a lock held by this process for one handling attempt.
type Entry struct {
	Key        string
	MessageID  string
	Owner      string
	TTL        time.Duration
	AcquiredAt time.Time
}

func (e *Entry) ExpiresAt() time.Time {
	return e.AcquiredAt.Add(e.TTL)
}

type Manager struct {
	store     Store
	keyPrefix string
	ttl       time.Duration
	logger    logger.Logger

	mu     sync.Mutex
	held   map[string]*Entry
	closed bool
}

func NewManager(store Store, keyPrefix string, ttl time.Duration, log logger.Logger) *Manager {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		store:     store,
		keyPrefix: keyPrefix,
		ttl:       ttl,
		logger:    log,
		held:      make(map[string]*Entry),
	}
}

func (m *Manager) Key(messageID string) string {
	return m.keyPrefix + messageID
}

func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// TryAcquire returns nil without error when another owner holds the lock.
func (m *Manager) TryAcquire(ctx context.Context, messageID string) (*Entry, error) {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return nil, apperrors.ErrLockStore.WithCause(ErrStoreClosed)
	}

	entry := &Entry{
		Key:        m.Key(messageID),
		MessageID:  messageID,
		Owner:      uuid.NewString(),
		TTL:        m.ttl,
		AcquiredAt: time.Now(),
	}

	ok, err := m.store.SetNX(ctx, entry.Key, entry.Owner, entry.TTL)
	if err != nil {
		return nil, apperrors.ErrLockStore.WithCause(err).WithDetail("key", entry.Key)
	}
	if !ok {
		return nil, nil
	}

	m.mu.Lock()
	m.held[entry.Key] = entry
	m.mu.Unlock()

	return entry, nil
}

// Release drops the lock if this process still owns it. Releasing a lock that
// already expired is not an error.
func (m *Manager) Release(ctx context.Context, entry *Entry) error {
	if entry == nil {
		return nil
	}

	m.mu.Lock()
	delete(m.held, entry.Key)
	m.mu.Unlock()

	released, err := m.store.Delete(ctx, entry.Key, entry.Owner)
	if err != nil {
		return apperrors.ErrLockStore.WithCause(err).WithDetail("key", entry.Key)
	}
	if !released {
		m.logger.WarnwCtx(ctx, "Lock expired before release",
			"key", entry.Key,
			"message_id", entry.MessageID,
			"held_for", time.Since(entry.AcquiredAt),
			"ttl", entry.TTL,
		)
	}
	return nil
}

// Held returns the number of locks currently owned by this manager.
func (m *Manager) Held() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.held)
}

// Close releases the locks this manager still owns and disconnects from the
// store. Locks owned by other processes are never touched.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	entries := make([]*Entry, 0, len(m.held))
	for _, e := range m.held {
		entries = append(entries, e)
	}
	m.held = make(map[string]*Entry)
	m.mu.Unlock()

	var errs []error
	for _, e := range entries {
		if _, err := m.store.Delete(ctx, e.Key, e.Owner); err != nil {
			errs = append(errs, fmt.Errorf("release %s: %w", e.Key, err))
		}
	}
	if err := m.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close lock store: %w", err))
	}
	return errors.Join(errs...)
}
