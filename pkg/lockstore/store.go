// Package lockstore is the fast key-value tier shared by the lock manager,
// the session counters and the duplicate-detection entries.
package lockstore

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotInteger = errors.New("value is not an integer")
	ErrClosed     = errors.New("lock store is closed")
)

// Store is the set of primitives the booking core needs from the fast tier.
// SetNX and CompareAndDelete must be atomic on the server side.
type Store interface {
	// SetNX sets key to value with ttl only if key is absent.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// CompareAndDelete deletes key only if its current value equals value.
	CompareAndDelete(ctx context.Context, key, value string) (bool, error)
	// Get returns the value and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set overwrites key. A zero ttl keeps the key forever.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) (int64, error)
	// IncrBy adds delta to the integer at key and refreshes its ttl.
	IncrBy(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error)
	// Keys lists every live key starting with prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)
	Ping(ctx context.Context) error
	Close() error
}
