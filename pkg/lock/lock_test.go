package lock

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"exambook/pkg/backoff"
	"exambook/pkg/lockstore"
	"exambook/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingStore fails every call with err.
type failingStore struct {
	lockstore.Store
	err   error
	calls atomic.Int32
}

func (f *failingStore) SetNX(context.Context, string, string, time.Duration) (bool, error) {
	f.calls.Add(1)
	return false, f.err
}

func (f *failingStore) CompareAndDelete(context.Context, string, string) (bool, error) {
	return false, f.err
}

func (f *failingStore) Ping(context.Context) error { return f.err }

type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.waits = append(r.waits, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *sleepRecorder) total() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	var sum time.Duration
	for _, w := range r.waits {
		sum += w
	}
	return sum
}

func newMemoryManager(t *testing.T) (*Manager, clockwork.FakeClock, *sleepRecorder) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	rec := &sleepRecorder{}
	m := NewManager(lockstore.NewMemoryStore(clock), nil,
		WithClock(clock),
		WithBackoff(backoff.NoJitter, rec.sleep),
	)
	return m, clock, rec
}

func TestAcquire_Exclusive(t *testing.T) {
	m, _, _ := newMemoryManager(t)
	ctx := context.Background()

	token, ok, err := m.Acquire(ctx, "session:42", time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEmpty(t, token)

	other, ok, err := m.Acquire(ctx, "session:42", time.Second)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, other)

	holder, found, err := m.Holder(ctx, "session:42")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, token, holder)
}

func TestAcquire_InvalidTTL(t *testing.T) {
	m, _, _ := newMemoryManager(t)
	_, _, err := m.Acquire(context.Background(), "session:1", 0)
	assert.ErrorIs(t, err, ErrInvalidTTL)
}

func TestAcquire_ConcurrentSingleWinner(t *testing.T) {
	stores := map[string]lockstore.Store{
		"memory": lockstore.NewMemoryStore(nil),
	}
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	stores["redis"] = lockstore.NewRedisStore(client)

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			m := NewManager(store, nil)
			var winners atomic.Int32
			var wg sync.WaitGroup
			for i := 0; i < 64; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, ok, err := m.Acquire(context.Background(), "user:r1:2024-01-01", 5*time.Second)
					assert.NoError(t, err)
					if ok {
						winners.Add(1)
					}
				}()
			}
			wg.Wait()
			assert.Equal(t, int32(1), winners.Load())
		})
	}
}

func TestRelease_RequiresOwnerToken(t *testing.T) {
	m, _, _ := newMemoryManager(t)
	ctx := context.Background()

	token, ok, err := m.Acquire(ctx, "session:7", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	released, err := m.Release(ctx, "session:7", "someone-else")
	require.NoError(t, err)
	assert.False(t, released)

	_, ok, _ = m.Acquire(ctx, "session:7", time.Second)
	assert.False(t, ok, "foreign release must not free the lock")

	released, err = m.Release(ctx, "session:7", token)
	require.NoError(t, err)
	assert.True(t, released)

	released, err = m.Release(ctx, "session:7", token)
	require.NoError(t, err)
	assert.False(t, released, "second release is a no-op")

	_, ok, _ = m.Acquire(ctx, "session:7", time.Second)
	assert.True(t, ok)
}

func TestRelease_NotOwnerLeavesReportingToCaller(t *testing.T) {
	var buf bytes.Buffer
	clock := clockwork.NewFakeClock()
	m := NewManager(lockstore.NewMemoryStore(clock), logger.New(logger.Config{Output: &buf, Level: logger.DEBUG}), WithClock(clock))
	ctx := context.Background()

	token, ok, err := m.Acquire(ctx, "session:3", time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	clock.Advance(2 * time.Second)

	released, err := m.Release(ctx, "session:3", token)
	require.NoError(t, err)
	assert.False(t, released)
	assert.NotContains(t, buf.String(), `"level":"WARN"`)
}

func TestRelease_EmptyToken(t *testing.T) {
	m, _, _ := newMemoryManager(t)
	released, err := m.Release(context.Background(), "session:1", "")
	require.NoError(t, err)
	assert.False(t, released)
}

func TestExpiredLockCanBeRetaken(t *testing.T) {
	m, clock, _ := newMemoryManager(t)
	ctx := context.Background()

	stale, ok, err := m.Acquire(ctx, "session:9", 10*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	clock.Advance(9 * time.Second)
	_, ok, _ = m.Acquire(ctx, "session:9", 10*time.Second)
	assert.False(t, ok)

	clock.Advance(time.Second)
	fresh, ok, err := m.Acquire(ctx, "session:9", 10*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	released, err := m.Release(ctx, "session:9", stale)
	require.NoError(t, err)
	assert.False(t, released, "expired holder must not release the new holder's lock")

	holder, _, _ := m.Holder(ctx, "session:9")
	assert.Equal(t, fresh, holder)
}

func TestAcquireWithRetry_BoundedWait(t *testing.T) {
	m, _, rec := newMemoryManager(t)
	ctx := context.Background()

	_, ok, err := m.Acquire(ctx, "session:busy", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	opts := RetryOptions{MaxRetries: 5, BaseDelay: 100 * time.Millisecond}
	token, ok, err := m.AcquireWithRetry(ctx, "session:busy", opts, time.Minute)

	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, token)
	assert.Len(t, rec.waits, 4, "no wait after the last attempt")
	assert.LessOrEqual(t, rec.total(), opts.BaseDelay*time.Duration((1<<opts.MaxRetries)-1))
}

func TestAcquireWithRetry_SucceedsOnceReleased(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := lockstore.NewMemoryStore(clock)
	holder := NewManager(store, nil)
	ctx := context.Background()

	token, ok, err := holder.Acquire(ctx, "user:r1:2024-05-01", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	var sleeps int
	waiter := NewManager(store, nil, WithBackoff(backoff.NoJitter, func(context.Context, time.Duration) error {
		sleeps++
		if sleeps == 2 {
			_, _ = holder.Release(ctx, "user:r1:2024-05-01", token)
		}
		return nil
	}))

	got, ok, err := waiter.AcquireWithRetry(ctx, "user:r1:2024-05-01", RetryOptions{MaxRetries: 3, BaseDelay: time.Millisecond}, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotEmpty(t, got)
	assert.Equal(t, 2, sleeps)
}

func TestAcquireWithRetry_StoreErrorAbortsEarly(t *testing.T) {
	boom := errors.New("dial tcp: connection refused")
	store := &failingStore{err: boom}
	rec := &sleepRecorder{}
	m := NewManager(store, nil, WithBackoff(backoff.NoJitter, rec.sleep))

	_, ok, err := m.AcquireWithRetry(context.Background(), "session:1", RetryOptions{MaxRetries: 5, BaseDelay: time.Millisecond}, time.Second)

	assert.False(t, ok)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int32(1), store.calls.Load())
	assert.Empty(t, rec.waits)
}

func TestAcquireWithRetry_ContextCancelled(t *testing.T) {
	m, _, _ := newMemoryManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	_, _, _ = m.Acquire(ctx, "session:c", time.Minute)
	cancel()

	_, ok, err := m.AcquireWithRetry(ctx, "session:c", RetryOptions{MaxRetries: 3, BaseDelay: time.Millisecond}, time.Minute)
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHealthCheck(t *testing.T) {
	m, _, _ := newMemoryManager(t)
	assert.True(t, m.HealthCheck(context.Background()))

	down := NewManager(&failingStore{err: errors.New("down")}, nil)
	assert.False(t, down.HealthCheck(context.Background()))
}

func TestLevel(t *testing.T) {
	assert.Equal(t, "user", level("user:r1:2024-01-01"))
	assert.Equal(t, "session", level("session:42"))
	assert.Equal(t, "reconcile", level("reconcile"))
	assert.Equal(t, "lock:session:1", Key("session:1"))
}
