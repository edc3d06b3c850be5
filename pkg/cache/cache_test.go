package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(maxEntries int) (*ResponseCache, clockwork.FakeClock) {
	clock := clockwork.NewFakeClock()
	return New(Config{DefaultTTL: time.Minute, MaxEntries: maxEntries, Clock: clock}), clock
}

func TestSetGet(t *testing.T) {
	c, _ := newTestCache(0)
	defer c.Stop()

	c.Set("capacity:1", []byte(`{"used":2}`), 0)

	got, ok := c.Get("capacity:1")
	require.True(t, ok)
	assert.Equal(t, `{"used":2}`, string(got))

	_, ok = c.Get("capacity:2")
	assert.False(t, ok)
}

func TestExpiry(t *testing.T) {
	c, clock := newTestCache(0)
	defer c.Stop()

	c.Set("short", []byte("a"), 5*time.Second)
	c.Set("default", []byte("b"), 0)

	clock.Advance(5 * time.Second)
	_, ok := c.Get("short")
	assert.False(t, ok)
	_, ok = c.Get("default")
	assert.True(t, ok)

	clock.Advance(time.Minute)
	assert.Equal(t, 1, c.CleanExpired())
	assert.Zero(t, c.Len())
}

func TestDeleteAndClear(t *testing.T) {
	c, _ := newTestCache(0)
	defer c.Stop()

	c.Set("a", []byte("1"), 0)
	c.Set("b", []byte("2"), 0)

	assert.True(t, c.Delete("a"))
	assert.False(t, c.Delete("a"))
	assert.Equal(t, 1, c.Len())

	c.Clear()
	assert.Zero(t, c.Len())
}

func TestDeletePattern(t *testing.T) {
	c, _ := newTestCache(0)
	defer c.Stop()

	for _, key := range []string{
		"bookings:42:page1",
		"bookings:42:page2",
		"bookings:43:page1",
		"bookings:420:page1",
		"capacity:42",
	} {
		c.Set(key, []byte("x"), 0)
	}

	assert.Equal(t, 2, c.DeletePattern("bookings:42:*"))

	_, ok := c.Get("bookings:43:page1")
	assert.True(t, ok)
	_, ok = c.Get("bookings:420:page1")
	assert.True(t, ok)

	assert.Equal(t, 1, c.DeletePattern("capacity:42"))
	assert.Equal(t, 2, c.DeletePattern("*:page1"))
	assert.Zero(t, c.Len())
}

func TestMatch(t *testing.T) {
	tests := []struct {
		pattern string
		key     string
		want    bool
	}{
		{"bookings:42:*", "bookings:42:", true},
		{"bookings:42:*", "bookings:42:x", true},
		{"bookings:42:*", "bookings:43:x", false},
		{"bookings:42:*", "bookings:420:x", false},
		{"exact", "exact", true},
		{"exact", "exactly", false},
		{"*", "anything", true},
		{"a*b*c", "axxbyyc", true},
		{"a*b*c", "acb", false},
		{"a*b*b", "ab", false},
		{"a*b*b", "abb", true},
		{"bookings:?:*", "bookings:1:x", false},
		{"bookings:[1]:*", "bookings:[1]:x", true},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"~"+tt.key, func(t *testing.T) {
			assert.Equal(t, tt.want, Match(tt.pattern, tt.key))
		})
	}
}

func TestEvictsOldestInsertion(t *testing.T) {
	c, _ := newTestCache(3)
	defer c.Stop()

	for i := 0; i < 3; i++ {
		c.Set(fmt.Sprintf("k%d", i), []byte("v"), 0)
	}
	c.Set("k1", []byte("updated"), 0)
	c.Set("k3", []byte("v"), 0)

	assert.Equal(t, 3, c.Len())
	_, ok := c.Get("k0")
	assert.False(t, ok, "oldest insertion is evicted")
	for _, key := range []string{"k1", "k2", "k3"} {
		_, ok := c.Get(key)
		assert.True(t, ok, key)
	}
}

func TestBackgroundSweep(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := New(Config{DefaultTTL: time.Second, Clock: clock, SweepInterval: 10 * time.Second})

	c.Set("k", []byte("v"), 0)
	clock.Advance(10 * time.Second)

	assert.Eventually(t, func() bool { return c.Len() == 0 }, time.Second, 5*time.Millisecond)

	c.Stop()
	c.Stop()
}

func TestBookingPatternsStayScoped(t *testing.T) {
	c := New(Config{Clock: clockwork.NewFakeClock()})
	defer c.Stop()

	c.Set(SessionBookingsKey("s1", "all"), []byte("a"), 0)
	c.Set(SessionBookingsKey("s10", "all"), []byte("b"), 0)
	c.Set(RequesterBookingsKey("r1", "all"), []byte("c"), 0)
	c.Set(RequesterBookingsKey("r2", "all"), []byte("d"), 0)
	c.Set(CapacityKey("s1"), []byte("e"), 0)
	c.Set(CapacityKey("s10"), []byte("f"), 0)

	removed := 0
	for _, p := range BookingPatterns("s1", "r1") {
		removed += c.DeletePattern(p)
	}

	if removed != 3 {
		t.Fatalf("expected 3 keys removed, got %d", removed)
	}
	for _, key := range []string{SessionBookingsKey("s10", "all"), RequesterBookingsKey("r2", "all"), CapacityKey("s10")} {
		if _, ok := c.Get(key); !ok {
			t.Errorf("expected %s to survive", key)
		}
	}
}

func TestSetIfCurrent(t *testing.T) {
	c, _ := newTestCache(0)
	defer c.Stop()

	gen := c.Generation()
	assert.True(t, c.SetIfCurrent("capacity:1", []byte("a"), 0, gen))

	gen = c.Generation()
	c.DeletePattern("bookings:session:9:*")
	assert.False(t, c.SetIfCurrent("capacity:2", []byte("b"), 0, gen), "an unrelated invalidation still bumps the generation")
	_, ok := c.Get("capacity:2")
	assert.False(t, ok)

	gen = c.Generation()
	c.Delete("capacity:1")
	assert.False(t, c.SetIfCurrent("capacity:1", []byte("stale"), 0, gen))

	gen = c.Generation()
	c.Clear()
	assert.False(t, c.SetIfCurrent("capacity:1", []byte("stale"), 0, gen))

	assert.True(t, c.SetIfCurrent("capacity:1", []byte("fresh"), 0, c.Generation()))
	got, ok := c.Get("capacity:1")
	require.True(t, ok)
	assert.Equal(t, "fresh", string(got))
}
