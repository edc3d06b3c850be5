package kafka_middleware

import (
	"context"

	"exambook/pkg/kafka"
	"exambook/pkg/metrics"
)

const (
	StagePublished     = "published"
	StagePublishFailed = "publish_failed"
	StageHandled       = "handled"
	StageFailed        = "failed"
)

func MetricsProducerMiddleware(m *metrics.Metrics) kafka.ProducerMiddleware {
	return func(ctx context.Context, msg kafka.Message, next func(ctx context.Context, msg kafka.Message) error) error {
		err := next(ctx, msg)
		if err != nil {
			m.Task(msg.GetEventType(), StagePublishFailed)
		} else {
			m.Task(msg.GetEventType(), StagePublished)
		}
		return err
	}
}

func MetricsConsumerMiddleware(m *metrics.Metrics) kafka.ConsumerMiddleware {
	return func(ctx context.Context, msg kafka.Message, next kafka.MessageHandler) error {
		err := next(ctx, msg)
		if err != nil {
			m.Task(msg.GetEventType(), StageFailed)
		} else {
			m.Task(msg.GetEventType(), StageHandled)
		}
		return err
	}
}
