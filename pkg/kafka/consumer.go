package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"exambook/pkg/backoff"
	kafka_config "exambook/pkg/kafka/config"
	"exambook/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// Consumer reads a topic in a consumer group. Offsets are committed only
// after the handler succeeded or the message was parked in the DLQ, which
// gives at-least-once processing.
type Consumer struct {
	reader     *kafka.Reader
	dlqWriter  *kafka.Writer
	topic      string
	groupID    string
	dlqTopic   string
	maxRetries int
	retry      backoff.Policy
	handler    MessageHandler
	log        *logger.Logger
	middleware []ConsumerMiddleware
	closed     bool
	mu         sync.RWMutex
	wg         sync.WaitGroup
}

type ConsumerMiddleware func(ctx context.Context, msg Message, next MessageHandler) error

func NewConsumer(cfg *kafka_config.Config, topic, groupID, dlqTopic string, handler MessageHandler, log *logger.Logger) (*Consumer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	if topic == "" {
		return nil, fmt.Errorf("topic cannot be empty")
	}
	if groupID == "" {
		return nil, fmt.Errorf("group ID cannot be empty")
	}
	if handler == nil {
		return nil, fmt.Errorf("message handler cannot be nil")
	}
	if log == nil {
		log = logger.Discard()
	}
	log = log.Component("kafka_consumer")

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:           cfg.Brokers,
		Topic:             topic,
		GroupID:           groupID,
		MinBytes:          cfg.ConsumerMinBytes,
		MaxBytes:          cfg.ConsumerMaxBytes,
		MaxWait:           cfg.ConsumerMaxWait,
		CommitInterval:    cfg.ConsumerCommitInterval,
		HeartbeatInterval: cfg.ConsumerHeartbeatInterval,
		SessionTimeout:    cfg.ConsumerSessionTimeout,
		RebalanceTimeout:  cfg.ConsumerRebalanceTimeout,
		StartOffset:       cfg.ConsumerStartOffset,
		Logger:            kafka.LoggerFunc(func(string, ...any) {}),
		ErrorLogger:       errorLogger(log),
	})

	consumer := &Consumer{
		reader:     reader,
		topic:      topic,
		groupID:    groupID,
		dlqTopic:   dlqTopic,
		maxRetries: cfg.ConsumerMaxRetries,
		retry:      backoff.New(cfg.ConsumerMaxRetries+1, cfg.ConsumerRetryBaseDelay, nil),
		handler:    handler,
		log:        log,
	}

	if dlqTopic != "" {
		consumer.dlqWriter = newDLQWriter(cfg, dlqTopic, log)
	}

	return consumer, nil
}

func (c *Consumer) Use(middleware ConsumerMiddleware) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.middleware = append(c.middleware, middleware)
}

// Start blocks consuming messages until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return ErrConsumerClosed
	}
	c.wg.Add(1)
	c.mu.RUnlock()
	defer c.wg.Done()

	fetchBackoff := c.retry
	failures := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		kafkaMsg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			if errors.Is(err, io.EOF) {
				return ErrConsumerClosed
			}
			c.log.Error("failed to fetch message", "topic", c.topic, "error", err)
			if sleepErr := fetchBackoff.Sleep(ctx, fetchBackoff.Delay(min(failures, 5))); sleepErr != nil {
				return sleepErr
			}
			failures++
			continue
		}
		failures = 0

		msg := fromKafkaMessage(kafkaMsg)
		if err := c.processMessage(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Error("message processing failed",
				"topic", c.topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
				"event_id", msg.GetEventID(),
				"error", err,
			)
		}

		if err := c.reader.CommitMessages(ctx, kafkaMsg); err != nil {
			c.log.Error("failed to commit offset",
				"topic", c.topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		}
	}
}

func (c *Consumer) chain() MessageHandler {
	c.mu.RLock()
	defer c.mu.RUnlock()

	handler := c.handler
	for i := len(c.middleware) - 1; i >= 0; i-- {
		middleware := c.middleware[i]
		next := handler
		handler = func(ctx context.Context, m Message) error {
			return middleware(ctx, m, next)
		}
	}
	return handler
}

// processMessage retries transient failures with backoff and parks the
// message in the DLQ once it fails permanently or runs out of retries.
func (c *Consumer) processMessage(ctx context.Context, msg Message) error {
	handler := c.chain()

	var lastErr error
	_, err := c.retry.Retry(ctx, func(int) (bool, error) {
		lastErr = handler(ctx, msg)
		if lastErr == nil {
			return true, nil
		}
		if !ShouldRetry(lastErr, msg.GetRetryCount(), c.maxRetries) {
			return true, nil
		}
		msg.IncrementRetryCount()
		c.log.Warn("retrying message",
			"event_id", msg.GetEventID(),
			"attempt", msg.GetRetryCount(),
			"max_retries", c.maxRetries,
			"error", lastErr,
		)
		return false, nil
	})
	if err != nil && !errors.Is(err, backoff.ErrExhausted) {
		return err
	}
	if lastErr == nil {
		return nil
	}

	if c.dlqWriter != nil {
		dlqMsg := withDLQHeaders(msg, c.topic, lastErr)
		dlqMsg.Headers[HeaderDLQGroup] = c.groupID
		if dlqErr := c.dlqWriter.WriteMessages(ctx, toKafkaMessage(dlqMsg)); dlqErr != nil {
			c.log.Error("failed to send message to DLQ", "dlq_topic", c.dlqTopic, "error", dlqErr)
		} else {
			c.log.Warn("message sent to DLQ",
				"dlq_topic", c.dlqTopic,
				"event_id", msg.GetEventID(),
				"retries", msg.GetRetryCount(),
				"error_type", ClassifyError(lastErr).String(),
			)
		}
	}
	return lastErr
}

func (c *Consumer) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	err := c.reader.Close()
	c.wg.Wait()

	if c.dlqWriter != nil {
		if dlqErr := c.dlqWriter.Close(); err == nil {
			err = dlqErr
		}
	}
	return err
}

func (c *Consumer) Stats() kafka.ReaderStats {
	return c.reader.Stats()
}

func (c *Consumer) Lag() int64 {
	return c.reader.Stats().Lag
}
