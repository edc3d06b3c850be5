package tasks

import (
	"context"
	"errors"
	"sync"
	"time"

	"exambook/pkg/backoff"
	"exambook/pkg/kafka"
	"exambook/pkg/logger"
	"exambook/pkg/metrics"
)

const (
	DefaultMemoryBuffer     = 256
	DefaultMemoryWorkers    = 2
	DefaultMemoryMaxRetries = 3
)

// DeadLetter is a task that failed permanently or ran out of retries.
type DeadLetter struct {
	Task   Task
	Err    error
	Failed time.Time
}

type MemoryOptions struct {
	Buffer     int
	Workers    int
	MaxRetries int
	Retry      backoff.Policy
}

// MemoryQueue runs tasks in process with the same retry classification as
// the kafka consumer. It backs local runs and tests.
type MemoryQueue struct {
	tasks      chan Task
	handler    Handler
	maxRetries int
	retry      backoff.Policy
	workers    int
	log        *logger.Logger
	metrics    *metrics.Metrics

	mu      sync.RWMutex
	closed  bool
	started bool
	dead    []DeadLetter
	pending sync.WaitGroup
	wg      sync.WaitGroup
	cancel  context.CancelFunc
}

func NewMemoryQueue(handler Handler, opts MemoryOptions, log *logger.Logger, m *metrics.Metrics) *MemoryQueue {
	if opts.Buffer <= 0 {
		opts.Buffer = DefaultMemoryBuffer
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultMemoryWorkers
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = DefaultMemoryMaxRetries
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = backoff.New(opts.MaxRetries+1, 50*time.Millisecond, nil)
	}
	if log == nil {
		log = logger.Discard()
	}
	return &MemoryQueue{
		tasks:      make(chan Task, opts.Buffer),
		handler:    handler,
		maxRetries: opts.MaxRetries,
		retry:      opts.Retry,
		workers:    opts.Workers,
		log:        log.Component("task_queue"),
		metrics:    m,
	}
}

// Start launches the workers. They stop when ctx is cancelled or Close is called.
func (q *MemoryQueue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.closed {
		return
	}
	q.started = true

	ctx, q.cancel = context.WithCancel(ctx)
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.work(ctx)
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, task Task) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	q.pending.Add(1)
	select {
	case q.tasks <- task:
		q.metrics.Task(task.Type, "published")
		return nil
	case <-ctx.Done():
		q.pending.Done()
		return ctx.Err()
	}
}

func (q *MemoryQueue) work(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case task, ok := <-q.tasks:
			if !ok {
				return
			}
			q.process(ctx, task)
			q.pending.Done()
		}
	}
}

func (q *MemoryQueue) process(ctx context.Context, task Task) {
	var lastErr error
	_, err := q.retry.Retry(ctx, func(int) (bool, error) {
		lastErr = q.handler(ctx, task)
		if lastErr == nil {
			return true, nil
		}
		if !kafka.ShouldRetry(lastErr, task.Attempt, q.maxRetries) {
			return true, nil
		}
		task.Attempt++
		q.metrics.Task(task.Type, "retried")
		q.log.Warn("retrying task",
			"task_id", task.ID,
			"task_type", task.Type,
			"attempt", task.Attempt,
			"error", lastErr,
		)
		return false, nil
	})
	if err != nil && !errors.Is(err, backoff.ErrExhausted) {
		lastErr = err
	}

	if lastErr == nil {
		q.metrics.Task(task.Type, "handled")
		return
	}

	q.metrics.Task(task.Type, "dead_lettered")
	q.log.Error("task dead-lettered",
		"task_id", task.ID,
		"task_type", task.Type,
		"attempts", task.Attempt+1,
		"error_type", kafka.ClassifyError(lastErr).String(),
		"error", lastErr,
	)

	q.mu.Lock()
	q.dead = append(q.dead, DeadLetter{Task: task, Err: lastErr, Failed: time.Now()})
	q.mu.Unlock()
}

// Wait blocks until every enqueued task has been handled or dead-lettered.
func (q *MemoryQueue) Wait() {
	q.pending.Wait()
}

func (q *MemoryQueue) DeadLetters() []DeadLetter {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]DeadLetter, len(q.dead))
	copy(out, q.dead)
	return out
}

// Close stops accepting tasks, lets the workers drain the buffer and waits
// for them to exit.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.tasks)
	started := q.started
	q.mu.Unlock()

	if started {
		q.wg.Wait()
		q.cancel()
	}
	return nil
}

var _ Queue = (*MemoryQueue)(nil)
