// Package dedup tracks which booking a requester holds on a given date so a
// second booking for the same day can be refused without a record-store
// query.
package dedup

import (
	"context"
	"fmt"
	"strings"
	"time"

	"exambook/pkg/lockstore"
)

const (
	KeyPrefix  = "dup:"
	DefaultTTL = 24 * time.Hour
)

func Key(requesterID, date string) string {
	return KeyPrefix + requesterID + ":" + date
}

// ParseKey splits a dup key back into requester and date.
func ParseKey(key string) (requesterID, date string, ok bool) {
	rest, found := strings.CutPrefix(key, KeyPrefix)
	if !found {
		return "", "", false
	}
	idx := strings.LastIndex(rest, ":")
	if idx <= 0 || idx == len(rest)-1 {
		return "", "", false
	}
	return rest[:idx], rest[idx+1:], true
}

type Cache struct {
	store lockstore.Store
	ttl   time.Duration
}

func NewCache(store lockstore.Store, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{store: store, ttl: ttl}
}

// Lookup returns the booking id recorded for requester on date.
func (c *Cache) Lookup(ctx context.Context, requesterID, date string) (string, bool, error) {
	id, found, err := c.store.Get(ctx, Key(requesterID, date))
	if err != nil {
		return "", false, fmt.Errorf("failed to read duplicate entry: %w", err)
	}
	return id, found, nil
}

func (c *Cache) Record(ctx context.Context, requesterID, date, bookingID string) error {
	if err := c.store.Set(ctx, Key(requesterID, date), bookingID, c.ttl); err != nil {
		return fmt.Errorf("failed to write duplicate entry: %w", err)
	}
	return nil
}

// Forget removes the entry only while it still points at bookingID, so a
// newer booking's entry survives a late cancellation of an older one.
func (c *Cache) Forget(ctx context.Context, requesterID, date, bookingID string) (bool, error) {
	deleted, err := c.store.CompareAndDelete(ctx, Key(requesterID, date), bookingID)
	if err != nil {
		return false, fmt.Errorf("failed to delete duplicate entry: %w", err)
	}
	return deleted, nil
}

// Entries lists every live entry as key -> booking id.
func (c *Cache) Entries(ctx context.Context) (map[string]string, error) {
	keys, err := c.store.Keys(ctx, KeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list duplicate entries: %w", err)
	}
	out := make(map[string]string, len(keys))
	for _, key := range keys {
		id, found, err := c.store.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("failed to read duplicate entry %s: %w", key, err)
		}
		if found {
			out[key] = id
		}
	}
	return out, nil
}

func (c *Cache) DeleteKey(ctx context.Context, key, bookingID string) (bool, error) {
	return c.store.CompareAndDelete(ctx, key, bookingID)
}
