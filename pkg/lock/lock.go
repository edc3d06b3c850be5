// Package lock is the cross-process mutual exclusion used by the booking
// protocol. A lock is a key in the lock store holding a random ownership
// token; only the holder of that token can release it, and the TTL bounds
// how long a crashed holder can block others.
package lock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"exambook/pkg/backoff"
	"exambook/pkg/lockstore"
	"exambook/pkg/logger"
	"exambook/pkg/metrics"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

const (
	KeyPrefix  = "lock:"
	DefaultTTL = 10 * time.Second
)

var ErrInvalidTTL = errors.New("lock ttl must be positive")

// RetryOptions bounds AcquireWithRetry: at most MaxRetries attempts with
// exponential backoff from BaseDelay between them.
type RetryOptions struct {
	MaxRetries int
	BaseDelay  time.Duration
}

type Manager struct {
	store   lockstore.Store
	log     *logger.Logger
	metrics *metrics.Metrics
	clock   clockwork.Clock
	jitter  backoff.JitterFunc
	sleep   backoff.SleepFunc
	newID   func() string
}

type Option func(*Manager)

func WithClock(clock clockwork.Clock) Option {
	return func(m *Manager) { m.clock = clock }
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// WithBackoff replaces the jitter and sleep used between retries.
func WithBackoff(jitter backoff.JitterFunc, sleep backoff.SleepFunc) Option {
	return func(m *Manager) {
		m.jitter = jitter
		m.sleep = sleep
	}
}

func NewManager(store lockstore.Store, log *logger.Logger, opts ...Option) *Manager {
	if log == nil {
		log = logger.Discard()
	}
	m := &Manager{
		store:  store,
		log:    log.Component("lock"),
		clock:  clockwork.NewRealClock(),
		jitter: backoff.UniformJitter,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.sleep == nil {
		m.sleep = backoff.ClockSleep(m.clock)
	}
	return m
}

// Key is the lock-store key guarding resource.
func Key(resource string) string {
	return KeyPrefix + resource
}

// level is the resource class used as a metric label: "user", "session", ...
func level(resource string) string {
	if i := strings.IndexByte(resource, ':'); i > 0 {
		return resource[:i]
	}
	return resource
}

// Acquire makes a single attempt. ok is false when another holder has the
// lock; err is non-nil only when the store could not be reached.
func (m *Manager) Acquire(ctx context.Context, resource string, ttl time.Duration) (string, bool, error) {
	if ttl <= 0 {
		return "", false, ErrInvalidTTL
	}
	token := m.newID()

	ok, err := m.store.SetNX(ctx, Key(resource), token, ttl)
	if err != nil {
		m.metrics.LockAcquire(level(resource), "error")
		return "", false, fmt.Errorf("failed to acquire lock %s: %w", resource, err)
	}
	if !ok {
		m.metrics.LockAcquire(level(resource), "busy")
		return "", false, nil
	}

	m.metrics.LockAcquire(level(resource), "acquired")
	return token, true, nil
}

// Release deletes the lock only if it still holds token. false means the
// lock expired or now belongs to someone else; callers decide how to report it.
func (m *Manager) Release(ctx context.Context, resource, token string) (bool, error) {
	if token == "" {
		return false, nil
	}

	ok, err := m.store.CompareAndDelete(ctx, Key(resource), token)
	if err != nil {
		m.metrics.LockRelease(level(resource), "error")
		return false, fmt.Errorf("failed to release lock %s: %w", resource, err)
	}
	if !ok {
		m.metrics.LockRelease(level(resource), "not_owner")
		return false, nil
	}

	m.metrics.LockRelease(level(resource), "released")
	return true, nil
}

// AcquireWithRetry retries Acquire up to opts.MaxRetries times. It gives up
// early on a store error or when ctx is done.
func (m *Manager) AcquireWithRetry(ctx context.Context, resource string, opts RetryOptions, ttl time.Duration) (string, bool, error) {
	policy := backoff.Policy{
		MaxAttempts: max(opts.MaxRetries, 1),
		BaseDelay:   opts.BaseDelay,
		Jitter:      m.jitter,
		Sleep:       m.sleep,
	}

	var token string
	attempts, err := policy.Retry(ctx, func(int) (bool, error) {
		t, ok, err := m.Acquire(ctx, resource, ttl)
		if err != nil {
			return false, err
		}
		token = t
		return ok, nil
	})

	switch {
	case err == nil:
		if attempts > 1 {
			m.log.Debug("Lock acquired after retries", "lock_key", Key(resource), "attempts", attempts)
		}
		return token, true, nil
	case errors.Is(err, backoff.ErrExhausted):
		m.log.Info("Lock still held after retries", "lock_key", Key(resource), "attempts", attempts)
		return "", false, nil
	default:
		return "", false, err
	}
}

// Holder returns the token currently stored for resource, if any.
func (m *Manager) Holder(ctx context.Context, resource string) (string, bool, error) {
	return m.store.Get(ctx, Key(resource))
}

// HealthCheck reports whether the lock store answers a ping.
func (m *Manager) HealthCheck(ctx context.Context) bool {
	if err := m.store.Ping(ctx); err != nil {
		m.log.Warn("Lock store health check failed", "error", err)
		return false
	}
	return true
}
