// Package capacity keeps the per-session "bookings used" counter in two
// tiers: a fast counter in the lock store and the authoritative field on the
// session record. A fast-tier miss is healed by seeding from the record store.
package capacity

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"exambook/internal/bookings/repository"
	"exambook/pkg/lockstore"
	"exambook/pkg/logger"
	"exambook/pkg/metrics"
	"exambook/pkg/model"
)

const (
	KeyPrefix  = "counter:session:"
	DefaultTTL = 30 * 24 * time.Hour

	SourceFastTier    = "fast_tier"
	SourceRecordStore = "record_store"
)

func Key(sessionID string) string {
	return KeyPrefix + sessionID
}

type Counter struct {
	store   lockstore.Store
	records repository.RecordStore
	ttl     time.Duration
	log     *logger.Logger
	metrics *metrics.Metrics
}

func NewCounter(store lockstore.Store, records repository.RecordStore, ttl time.Duration, log *logger.Logger, m *metrics.Metrics) *Counter {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Counter{
		store:   store,
		records: records,
		ttl:     ttl,
		log:     log.Component("capacity"),
		metrics: m,
	}
}

// Value reads the fast-tier counter. found is false on a miss or when the
// stored value is not an integer.
func (c *Counter) Value(ctx context.Context, sessionID string) (int, bool, error) {
	raw, found, err := c.store.Get(ctx, Key(sessionID))
	if err != nil {
		return 0, false, fmt.Errorf("failed to read counter for session %s: %w", sessionID, err)
	}
	if !found {
		return 0, false, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		c.log.Warn("Discarding malformed fast-tier counter", "session_id", sessionID, "value", raw)
		return 0, false, nil
	}
	return n, true, nil
}

// GetCapacitySnapshot returns capacity and used seats for a session. On a
// fast-tier hit only capacity is read from the record store; on a miss both
// are read and the fast tier is seeded with the authoritative count.
func (c *Counter) GetCapacitySnapshot(ctx context.Context, sessionID string) (*model.CapacitySnapshot, error) {
	used, hit, err := c.Value(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	var capacity int
	source := SourceFastTier
	if hit {
		capacity, err = c.records.GetSessionCapacity(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("failed to read capacity for session %s: %w", sessionID, err)
		}
	} else {
		source = SourceRecordStore
		capacity, used, err = c.seed(ctx, sessionID)
		if err != nil {
			return nil, err
		}
	}
	c.metrics.CapacitySnapshot(source)

	return &model.CapacitySnapshot{
		SessionID:      sessionID,
		Capacity:       capacity,
		Used:           used,
		AvailableSlots: max(0, capacity-used),
		Source:         source,
	}, nil
}

// seed loads the session from the record store and writes its used count to
// the fast tier unless another writer got there first, in which case the
// stored value wins.
func (c *Counter) seed(ctx context.Context, sessionID string) (int, int, error) {
	session, err := c.records.GetSession(ctx, sessionID)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read session %s: %w", sessionID, err)
	}
	used := session.BookingsUsed

	seeded, err := c.store.SetNX(ctx, Key(sessionID), strconv.Itoa(used), c.ttl)
	if err != nil {
		c.log.Warn("Failed to seed fast-tier counter", "session_id", sessionID, "error", err)
		return session.Capacity, used, nil
	}
	if seeded {
		c.log.Debug("Seeded fast-tier counter", "session_id", sessionID, "used", used)
		return session.Capacity, used, nil
	}

	if current, ok, err := c.Value(ctx, sessionID); err == nil && ok {
		used = current
	}
	return session.Capacity, used, nil
}

func (c *Counter) ensureSeeded(ctx context.Context, sessionID string) error {
	_, hit, err := c.Value(ctx, sessionID)
	if err != nil || hit {
		return err
	}
	_, _, err = c.seed(ctx, sessionID)
	return err
}

// Increment adds one seat. Callers hold the session lock.
func (c *Counter) Increment(ctx context.Context, sessionID string) (int, error) {
	if err := c.ensureSeeded(ctx, sessionID); err != nil {
		return 0, err
	}
	n, err := c.store.IncrBy(ctx, Key(sessionID), 1, c.ttl)
	if err != nil {
		return 0, fmt.Errorf("failed to increment counter for session %s: %w", sessionID, err)
	}
	return int(n), nil
}

// Decrement releases one seat, never going below zero.
func (c *Counter) Decrement(ctx context.Context, sessionID string) (int, error) {
	if err := c.ensureSeeded(ctx, sessionID); err != nil {
		return 0, err
	}
	n, err := c.store.IncrBy(ctx, Key(sessionID), -1, c.ttl)
	if err != nil {
		return 0, fmt.Errorf("failed to decrement counter for session %s: %w", sessionID, err)
	}
	if n < 0 {
		c.log.Warn("Fast-tier counter went negative, clamping", "session_id", sessionID, "value", n)
		if err := c.store.Set(ctx, Key(sessionID), "0", c.ttl); err != nil {
			return 0, fmt.Errorf("failed to clamp counter for session %s: %w", sessionID, err)
		}
		return 0, nil
	}
	return int(n), nil
}

// Overwrite replaces the fast-tier value. Only reconciliation calls this,
// without the session lock.
func (c *Counter) Overwrite(ctx context.Context, sessionID string, value int) error {
	if value < 0 {
		value = 0
	}
	if err := c.store.Set(ctx, Key(sessionID), strconv.Itoa(value), c.ttl); err != nil {
		return fmt.Errorf("failed to overwrite counter for session %s: %w", sessionID, err)
	}
	return nil
}

// TrackedSessions lists the session ids that have a fast-tier counter.
func (c *Counter) TrackedSessions(ctx context.Context) ([]string, error) {
	keys, err := c.store.Keys(ctx, KeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate counters: %w", err)
	}
	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		if id := strings.TrimPrefix(key, KeyPrefix); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
