package reconcile

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"exambook/pkg/lock"
	"exambook/pkg/logger"

	"github.com/jonboulle/clockwork"
)

// JobResource is the lock guarding a pass across processes.
const JobResource = "reconcile:job"

var ErrPassInProgress = errors.New("reconciliation pass already in progress")

type Runner struct {
	engine   *Engine
	locks    *lock.Manager
	interval time.Duration
	lockTTL  time.Duration
	clock    clockwork.Clock
	log      *logger.Logger

	running atomic.Bool
	mu      sync.RWMutex
	last    *Report

	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewRunner schedules engine every interval. The job lock lives for one
// interval so a crashed pass never blocks more than one tick.
func NewRunner(engine *Engine, locks *lock.Manager, interval time.Duration, clock clockwork.Clock, log *logger.Logger) *Runner {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Runner{
		engine:   engine,
		locks:    locks,
		interval: interval,
		lockTTL:  interval,
		clock:    clock,
		log:      log.Component("reconcile_runner"),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Trigger runs one pass unless another is already running here or in any
// other process sharing the lock store.
func (r *Runner) Trigger(ctx context.Context) (*Report, error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, ErrPassInProgress
	}
	defer r.running.Store(false)

	token, ok, err := r.locks.Acquire(ctx, JobResource, r.lockTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrPassInProgress
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if released, err := r.locks.Release(releaseCtx, JobResource, token); err != nil || !released {
			r.log.Warn("Reconciliation job lock not released", "released", released, "error", err)
		}
	}()

	report, err := r.engine.RunOnce(ctx)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.last = report
	r.mu.Unlock()
	return report, nil
}

// Last returns the most recent completed pass run by this process.
func (r *Runner) Last() (*Report, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last, r.last != nil
}

// Start runs a pass immediately and then once per interval until ctx is
// done or Stop is called.
func (r *Runner) Start(ctx context.Context) {
	go func() {
		defer close(r.done)

		ticker := r.clock.NewTicker(r.interval)
		defer ticker.Stop()

		r.tick(ctx)
		for {
			select {
			case <-ticker.Chan():
				r.tick(ctx)
			case <-ctx.Done():
				return
			case <-r.stopCh:
				return
			}
		}
	}()
}

func (r *Runner) tick(ctx context.Context) {
	if _, err := r.Trigger(ctx); err != nil {
		if errors.Is(err, ErrPassInProgress) {
			r.log.Debug("Skipping scheduled pass", "reason", err)
			return
		}
		r.log.Error("Scheduled reconciliation failed", "error", err)
	}
}

// Stop halts the schedule and waits for the loop to exit. Only call after Start.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	<-r.done
}
