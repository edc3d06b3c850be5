package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"exambook/pkg/backoff"
	"exambook/pkg/kafka"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func instantRetry(maxRetries int) MemoryOptions {
	return MemoryOptions{
		Workers:    1,
		MaxRetries: maxRetries,
		Retry: backoff.Policy{
			MaxAttempts: maxRetries + 1,
			BaseDelay:   time.Millisecond,
			Jitter:      backoff.NoJitter,
			Sleep:       func(context.Context, time.Duration) error { return nil },
		},
	}
}

func mustTask(t *testing.T, taskType string) Task {
	t.Helper()
	task, err := New(taskType, "session-1", BookingEvent{BookingID: "b1", SessionID: "session-1"})
	require.NoError(t, err)
	return task
}

func runQueue(t *testing.T, h Handler, opts MemoryOptions) *MemoryQueue {
	t.Helper()
	q := NewMemoryQueue(h, opts, nil, nil)
	q.Start(context.Background())
	t.Cleanup(func() { _ = q.Close() })
	return q
}

// ──────────────────────────── task ────────────────────────────

func TestNewRequiresTypeAndKey(t *testing.T) {
	_, err := New("", "k", nil)
	assert.Error(t, err)
	_, err = New(TypeBookingCreated, "", nil)
	assert.Error(t, err)
}

func TestDecodeMalformedIsPermanent(t *testing.T) {
	task := Task{ID: "t1", Type: TypeCounterSync, Payload: json.RawMessage(`{"session_id":`)}
	var payload CounterSync
	err := task.Decode(&payload)
	require.Error(t, err)
	assert.Equal(t, kafka.ErrorTypePermanent, kafka.ClassifyError(err))
}

func TestMessageRoundTrip(t *testing.T) {
	task := mustTask(t, TypeBookingCreated)
	msg, err := NewMessage(task, "bookings")
	require.NoError(t, err)
	assert.Equal(t, "bookings", msg.Headers[kafka.HeaderSource])

	msg.IncrementRetryCount()
	got := FromMessage(msg)
	assert.Equal(t, task.ID, got.ID)
	assert.Equal(t, task.Type, got.Type)
	assert.Equal(t, task.Key, got.Key)
	assert.JSONEq(t, string(task.Payload), string(got.Payload))
	assert.Equal(t, 1, got.Attempt)
}

func TestRouterUnknownTypeIsPermanent(t *testing.T) {
	r := NewRouter()
	r.Register(TypeCounterSync, func(context.Context, Task) error { return nil })

	err := r.Handle(context.Background(), Task{ID: "t1", Type: "nope"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownType)
	assert.Equal(t, kafka.ErrorTypePermanent, kafka.ClassifyError(err))
	assert.NoError(t, r.Handle(context.Background(), Task{Type: TypeCounterSync}))
	assert.Equal(t, []string{TypeCounterSync}, r.Types())
}

// ──────────────────────────── memory queue ────────────────────────────

func TestMemoryQueueDeliversEveryTask(t *testing.T) {
	var handled atomic.Int32
	q := runQueue(t, func(context.Context, Task) error {
		handled.Add(1)
		return nil
	}, instantRetry(3))

	for i := 0; i < 20; i++ {
		require.NoError(t, q.Enqueue(context.Background(), mustTask(t, TypeBookingCreated)))
	}
	q.Wait()

	assert.Equal(t, int32(20), handled.Load())
	assert.Empty(t, q.DeadLetters())
}

func TestMemoryQueueRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	q := runQueue(t, func(context.Context, Task) error {
		if calls.Add(1) < 3 {
			return kafka.NewTransientError("webhook", errors.New("503"))
		}
		return nil
	}, instantRetry(3))

	require.NoError(t, q.Enqueue(context.Background(), mustTask(t, TypeBookingCreated)))
	q.Wait()

	assert.Equal(t, int32(3), calls.Load())
	assert.Empty(t, q.DeadLetters())
}

func TestMemoryQueueDeadLettersAfterRetryBudget(t *testing.T) {
	var calls atomic.Int32
	q := runQueue(t, func(context.Context, Task) error {
		calls.Add(1)
		return kafka.NewTransientError("webhook", errors.New("timeout"))
	}, instantRetry(2))

	task := mustTask(t, TypeBookingCreated)
	require.NoError(t, q.Enqueue(context.Background(), task))
	q.Wait()

	assert.Equal(t, int32(3), calls.Load())
	dead := q.DeadLetters()
	require.Len(t, dead, 1)
	assert.Equal(t, task.ID, dead[0].Task.ID)
	assert.Equal(t, 2, dead[0].Task.Attempt)
}

func TestMemoryQueuePermanentFailureSkipsRetry(t *testing.T) {
	var calls atomic.Int32
	q := runQueue(t, func(context.Context, Task) error {
		calls.Add(1)
		return kafka.NewPermanentError("decode", errors.New("bad payload"))
	}, instantRetry(5))

	require.NoError(t, q.Enqueue(context.Background(), mustTask(t, TypeBookingCancelled)))
	q.Wait()

	assert.Equal(t, int32(1), calls.Load())
	assert.Len(t, q.DeadLetters(), 1)
}

func TestMemoryQueueRejectsAfterClose(t *testing.T) {
	q := NewMemoryQueue(func(context.Context, Task) error { return nil }, instantRetry(1), nil, nil)
	q.Start(context.Background())
	require.NoError(t, q.Close())
	require.NoError(t, q.Close())

	err := q.Enqueue(context.Background(), mustTask(t, TypeCounterSync))
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestMemoryQueueCloseDrainsBuffer(t *testing.T) {
	var handled atomic.Int32
	q := NewMemoryQueue(func(context.Context, Task) error {
		handled.Add(1)
		return nil
	}, instantRetry(0), nil, nil)

	for i := 0; i < 5; i++ {
		require.NoError(t, q.Enqueue(context.Background(), mustTask(t, TypeCounterSync)))
	}
	q.Start(context.Background())
	require.NoError(t, q.Close())

	assert.Equal(t, int32(5), handled.Load())
}
