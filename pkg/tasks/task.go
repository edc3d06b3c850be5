// Package tasks carries the booking side effects that run after a booking
// commits. Delivery is at least once, so every handler must tolerate seeing
// the same task twice.
package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"exambook/pkg/kafka"

	"github.com/google/uuid"
)

const (
	TypeBookingCreated   = "booking.created"
	TypeBookingCancelled = "booking.cancelled"
	TypeCounterSync      = "session.counter_sync"
)

var (
	ErrQueueClosed = errors.New("task queue is closed")
	ErrUnknownType = errors.New("unknown task type")
)

type Task struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Key       string          `json:"key"`
	Payload   json.RawMessage `json:"payload"`
	Attempt   int             `json:"attempt"`
	CreatedAt time.Time       `json:"created_at"`
}

// BookingEvent is the payload of booking.created and booking.cancelled.
type BookingEvent struct {
	BookingID      string    `json:"booking_id"`
	SessionID      string    `json:"session_id"`
	RequesterID    string    `json:"requester_id"`
	Date           string    `json:"date"`
	Purpose        string    `json:"purpose"`
	Status         string    `json:"status"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// CounterSync asks the worker to copy the fast-tier counter of a session
// into its record.
type CounterSync struct {
	SessionID string `json:"session_id"`
}

// New builds a task with a fresh id. key picks the partition, so tasks for
// one session should share it.
func New(taskType, key string, payload any) (Task, error) {
	if taskType == "" {
		return Task{}, fmt.Errorf("task type cannot be empty")
	}
	if key == "" {
		return Task{}, fmt.Errorf("task key cannot be empty")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Task{}, fmt.Errorf("encode %s payload: %w", taskType, err)
	}
	return Task{
		ID:        uuid.New().String(),
		Type:      taskType,
		Key:       key,
		Payload:   data,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Decode unmarshals the payload. A malformed payload is a permanent failure.
func (t Task) Decode(v any) error {
	if err := json.Unmarshal(t.Payload, v); err != nil {
		return kafka.NewPermanentError(fmt.Sprintf("deserialization failed for %s task %s", t.Type, t.ID), err)
	}
	return nil
}

type Queue interface {
	Enqueue(ctx context.Context, task Task) error
	Close() error
}

type Handler func(ctx context.Context, task Task) error

// Router dispatches tasks to the handler registered for their type.
type Router struct {
	handlers map[string]Handler
}

func NewRouter() *Router {
	return &Router{handlers: make(map[string]Handler)}
}

func (r *Router) Register(taskType string, h Handler) {
	r.handlers[taskType] = h
}

func (r *Router) Types() []string {
	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	return types
}

func (r *Router) Handle(ctx context.Context, task Task) error {
	h, ok := r.handlers[task.Type]
	if !ok {
		return kafka.NewPermanentError(fmt.Sprintf("task %s", task.ID), fmt.Errorf("%w: %q", ErrUnknownType, task.Type))
	}
	return h(ctx, task)
}
