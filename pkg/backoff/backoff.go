// Package backoff holds the exponential backoff policy used wherever the
// booking path retries against the lock store.
package backoff

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/jonboulle/clockwork"
)

var ErrExhausted = errors.New("retry budget exhausted")

// JitterFunc returns extra wait added on top of the exponential delay.
type JitterFunc func(base time.Duration) time.Duration

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Policy is exponential backoff: attempt i (zero based) waits
// BaseDelay*2^i + Jitter(BaseDelay), capped at MaxDelay before jitter.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      JitterFunc
	Sleep       SleepFunc
}

// New returns a policy with uniform jitter in [0, base) and a sleep driven by clock.
func New(maxAttempts int, base time.Duration, clock clockwork.Clock) Policy {
	return Policy{
		MaxAttempts: maxAttempts,
		BaseDelay:   base,
		Jitter:      UniformJitter,
		Sleep:       ClockSleep(clock),
	}
}

// UniformJitter spreads concurrent retriers over [0, base).
func UniformJitter(base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(base)))
}

func NoJitter(time.Duration) time.Duration { return 0 }

// ClockSleep waits on clock, returning early with ctx.Err() on cancellation.
func ClockSleep(clock clockwork.Clock) SleepFunc {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return func(ctx context.Context, d time.Duration) error {
		if d <= 0 {
			return ctx.Err()
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-clock.After(d):
			return nil
		}
	}
}

// Delay is the wait after the given failed attempt.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := p.BaseDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			delay = p.MaxDelay
			break
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	if p.Jitter != nil {
		delay += p.Jitter(p.BaseDelay)
	}
	return delay
}

// Budget is the worst-case total wait without jitter: sum of the delays
// between MaxAttempts attempts.
func (p Policy) Budget() time.Duration {
	var total time.Duration
	noJitter := p
	noJitter.Jitter = nil
	for i := 0; i < p.MaxAttempts-1; i++ {
		total += noJitter.Delay(i)
	}
	return total
}

// Retry calls op until it reports done, returns an error, the attempts run
// out (ErrExhausted) or ctx is cancelled. There is no wait after the last
// attempt.
func (p Policy) Retry(ctx context.Context, op func(attempt int) (done bool, err error)) (int, error) {
	sleep := p.Sleep
	if sleep == nil {
		sleep = ClockSleep(nil)
	}
	attempts := max(p.MaxAttempts, 1)

	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt, err
		}

		done, err := op(attempt)
		if err != nil {
			return attempt + 1, err
		}
		if done {
			return attempt + 1, nil
		}

		if attempt < attempts-1 {
			if err := sleep(ctx, p.Delay(attempt)); err != nil {
				return attempt + 1, err
			}
		}
	}
	return attempts, ErrExhausted
}
