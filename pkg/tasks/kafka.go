package tasks

import (
	"context"
	"fmt"

	"exambook/pkg/kafka"
)

const schemaVersion = "1"

// KafkaQueue publishes tasks to the tasks topic. Consumption happens in the
// notifier through a kafka.Consumer wrapping MessageHandler.
type KafkaQueue struct {
	producer *kafka.Producer
	source   string
}

func NewKafkaQueue(producer *kafka.Producer, source string) *KafkaQueue {
	return &KafkaQueue{producer: producer, source: source}
}

func (q *KafkaQueue) Enqueue(ctx context.Context, task Task) error {
	msg, err := NewMessage(task, q.source)
	if err != nil {
		return err
	}
	if err := q.producer.Publish(ctx, msg); err != nil {
		return fmt.Errorf("publish %s task %s: %w", task.Type, task.ID, err)
	}
	return nil
}

func (q *KafkaQueue) Close() error {
	return q.producer.Close()
}

// NewMessage maps a task onto a kafka message. The task id becomes the event id.
func NewMessage(task Task, source string) (kafka.Message, error) {
	return kafka.NewMessage().
		WithKey(task.Key).
		WithEventID(task.ID).
		WithEventType(task.Type).
		WithSource(source).
		WithSchemaVersion(schemaVersion).
		WithTimestamp(task.CreatedAt).
		WithRawValue(task.Payload).
		Build()
}

// FromMessage is the inverse of NewMessage.
func FromMessage(msg kafka.Message) Task {
	return Task{
		ID:        msg.GetEventID(),
		Type:      msg.GetEventType(),
		Key:       msg.Key,
		Payload:   msg.Value,
		Attempt:   msg.GetRetryCount(),
		CreatedAt: msg.Timestamp,
	}
}

// MessageHandler adapts a task handler to the kafka consumer.
func MessageHandler(h Handler) kafka.MessageHandler {
	return func(ctx context.Context, msg kafka.Message) error {
		return h(ctx, FromMessage(msg))
	}
}

var _ Queue = (*KafkaQueue)(nil)
