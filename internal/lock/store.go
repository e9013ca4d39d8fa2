package lock

import (
	"context"
	"time"
)

// Store is the shared key-value system behind the lock manager. SetNX must be
// atomic across processes; Delete only removes the key while value still matches.
type Store interface {
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key, value string) (bool, error)
	Close() error
}
