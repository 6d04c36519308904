package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// RetryRecorder observes retry and dead-letter decisions.
type RetryRecorder interface {
	IncRetryScheduled()
	IncDeadLettered()
}

type nopRecorder struct{}

func (nopRecorder) IncRetryScheduled() {}
func (nopRecorder) IncDeadLettered()   {}

type RabbitMQConsumer struct {
	client   *RabbitMQ
	prefetch int
	policy   RetryPolicy
	retry    func(ctx context.Context, msg DeliveryMessage, delay time.Duration) error
	recorder RetryRecorder
	logger   *zap.Logger
}

func NewRabbitMQConsumer(client *RabbitMQ, prefetch int, policy RetryPolicy, recorder RetryRecorder, logger *zap.Logger) *RabbitMQConsumer {
	if prefetch < 1 {
		prefetch = 1
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RabbitMQConsumer{
		client:   client,
		prefetch: prefetch,
		policy:   policy,
		retry:    NewRabbitMQPublisher(client).Enqueue,
		recorder: recorder,
		logger:   logger,
	}
}

// Consume processes the work queue until ctx is canceled, reconnecting with
// backoff when the channel drops.
func (c *RabbitMQConsumer) Consume(ctx context.Context, handler MessageHandler) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("consumer is not initialized")
	}
	if handler == nil {
		return fmt.Errorf("message handler is required")
	}

	backoff := reconnectBackoff
	for {
		err := c.consumeOnce(ctx, handler)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			backoff = reconnectBackoff
			continue
		}

		c.logger.Warn("consumer interrupted, reconnecting",
			zap.Error(err),
			zap.Duration("backoff", backoff),
		)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (c *RabbitMQConsumer) consumeOnce(ctx context.Context, handler MessageHandler) error {
	ch, err := c.client.channel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close() //nolint:errcheck // best-effort channel close

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set qos: %w", err)
	}

	deliveries, err := ch.Consume(
		EmailQueue,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to consume queue %q: %w", EmailQueue, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}

			if err := c.handleDelivery(ctx, d, handler); err != nil {
				return err
			}
		}
	}
}

// handleDelivery acks on success. On failure it republishes the next attempt
// through the delay queue and acks, or rejects to the dead-letter queue when the
// error is permanent or the retry budget is spent.
func (c *RabbitMQConsumer) handleDelivery(ctx context.Context, d amqp.Delivery, handler MessageHandler) error {
	var msg DeliveryMessage
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		c.logger.Warn("rejecting message: invalid JSON",
			zap.Error(err),
			zap.String("routingKey", d.RoutingKey),
		)
		return c.deadLetter(d)
	}

	if err := msg.Validate(); err != nil {
		c.logger.Warn("rejecting message: validation failed",
			zap.Error(err),
			zap.String("messageId", msg.MessageID),
		)
		return c.deadLetter(d)
	}

	attempt := msg.attempt()
	msg.Attempt = attempt

	handlerErr := handler(ctx, msg)
	if handlerErr == nil {
		if err := d.Ack(false); err != nil {
			return fmt.Errorf("failed to ack delivery: %w", err)
		}
		return nil
	}

	logger := c.logger.With(
		zap.String("messageId", msg.MessageID),
		zap.Int("attempt", attempt),
		zap.Error(handlerErr),
	)

	if IsPermanent(handlerErr) || c.policy.Exhausted(attempt) {
		logger.Warn("dead-lettering message", zap.Bool("permanent", IsPermanent(handlerErr)))
		return c.deadLetter(d)
	}

	delay := c.policy.Backoff(attempt)
	next := msg
	next.Attempt = attempt + 1
	if err := c.retry(ctx, next, delay); err != nil {
		logger.Error("failed to schedule retry, requeueing", zap.NamedError("publishError", err))
		if nackErr := d.Nack(false, true); nackErr != nil {
			return fmt.Errorf("retry publish failed and nack failed: %w", nackErr)
		}
		return nil
	}

	c.recorder.IncRetryScheduled()
	logger.Info("retry scheduled", zap.Duration("delay", delay))

	if err := d.Ack(false); err != nil {
		return fmt.Errorf("failed to ack delivery: %w", err)
	}
	return nil
}

func (c *RabbitMQConsumer) deadLetter(d amqp.Delivery) error {
	if err := d.Reject(false); err != nil {
		return fmt.Errorf("failed to reject delivery: %w", err)
	}
	c.recorder.IncDeadLettered()
	return nil
}

func (c *RabbitMQConsumer) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}
