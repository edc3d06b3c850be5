// Package cache is a process-local TTL cache for rendered read responses.
// Entries are invalidated by exact key or by glob pattern whenever the data
// behind them changes.
package cache

import (
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	DefaultTTL        = 30 * time.Second
	DefaultMaxEntries = 10000
	sweepInterval     = time.Minute
)

type entry struct {
	value     []byte
	expiresAt time.Time
	seq       uint64
}

type Config struct {
	DefaultTTL time.Duration
	MaxEntries int
	Clock      clockwork.Clock
	// SweepInterval of zero disables the background sweep.
	SweepInterval time.Duration
}

type ResponseCache struct {
	mu         sync.Mutex
	entries    map[string]entry
	defaultTTL time.Duration
	maxEntries int
	clock      clockwork.Clock
	seq        uint64
	// gen advances on every invalidation, matched or not
	gen uint64

	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func New(cfg Config) *ResponseCache {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = DefaultTTL
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}

	c := &ResponseCache{
		entries:    make(map[string]entry),
		defaultTTL: cfg.DefaultTTL,
		maxEntries: cfg.MaxEntries,
		clock:      cfg.Clock,
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
	}

	if cfg.SweepInterval > 0 {
		go c.sweep(c.clock.NewTicker(cfg.SweepInterval))
	} else {
		close(c.done)
	}
	return c
}

// Set stores value under key. A non-positive ttl uses the default.
func (c *ResponseCache) Set(key string, value []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(key, value, ttl)
}

func (c *ResponseCache) setLocked(key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictOldest()
	}
	c.seq++
	c.entries[key] = entry{
		value:     value,
		expiresAt: c.clock.Now().Add(ttl),
		seq:       c.seq,
	}
}

// Generation returns the invalidation generation. Pair it with SetIfCurrent
// to fill the cache from a read that started before a concurrent mutation.
func (c *ResponseCache) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// SetIfCurrent stores value only if no invalidation has happened since gen
// was read, and reports whether it did.
func (c *ResponseCache) SetIfCurrent(key string, value []byte, ttl time.Duration, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gen != gen {
		return false
	}
	c.setLocked(key, value, ttl)
	return true
}

func (c *ResponseCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !c.clock.Now().Before(e.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

func (c *ResponseCache) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen++
	_, ok := c.entries[key]
	delete(c.entries, key)
	return ok
}

// DeletePattern removes every key matching pattern and returns how many
// were removed. '*' matches any run of characters; everything else is literal.
func (c *ResponseCache) DeletePattern(pattern string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen++
	removed := 0
	for key := range c.entries {
		if Match(pattern, key) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

func (c *ResponseCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.entries = make(map[string]entry)
}

// CleanExpired drops expired entries and returns how many were dropped.
func (c *ResponseCache) CleanExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	removed := 0
	for key, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

func (c *ResponseCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stop ends the background sweep. Safe to call more than once.
func (c *ResponseCache) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	<-c.done
}

func (c *ResponseCache) sweep(ticker clockwork.Ticker) {
	defer close(c.done)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			c.CleanExpired()
		case <-c.stopCh:
			return
		}
	}
}

// evictOldest drops the earliest inserted entry. Caller holds mu.
func (c *ResponseCache) evictOldest() {
	var (
		oldestKey string
		oldestSeq uint64
		found     bool
	)
	for key, e := range c.entries {
		if !found || e.seq < oldestSeq {
			oldestKey, oldestSeq, found = key, e.seq, true
		}
	}
	if found {
		delete(c.entries, oldestKey)
	}
}

// Match reports whether key matches the glob pattern, where '*' matches any
// (possibly empty) sequence of characters.
func Match(pattern, key string) bool {
	if !strings.Contains(pattern, "*") {
		return pattern == key
	}

	parts := strings.Split(pattern, "*")
	if !strings.HasPrefix(key, parts[0]) {
		return false
	}
	key = key[len(parts[0]):]

	last := parts[len(parts)-1]
	for _, part := range parts[1 : len(parts)-1] {
		idx := strings.Index(key, part)
		if idx < 0 {
			return false
		}
		key = key[idx+len(part):]
	}
	return strings.HasSuffix(key, last)
}
