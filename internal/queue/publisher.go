package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

type RabbitMQPublisher struct {
	client *RabbitMQ
}

func NewRabbitMQPublisher(client *RabbitMQ) *RabbitMQPublisher {
	return &RabbitMQPublisher{client: client}
}

// Enqueue publishes msg to the work queue, or to the delay queue with a
// per-message expiration when delay is positive.
func (p *RabbitMQPublisher) Enqueue(ctx context.Context, msg DeliveryMessage, delay time.Duration) error {
	if p == nil || p.client == nil {
		return fmt.Errorf("publisher is not initialized")
	}

	queue, publishing, err := buildPublishing(msg, delay, time.Now())
	if err != nil {
		return err
	}

	ch, err := p.client.channel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := ch.PublishWithContext(ctx, "", queue, false, false, publishing); err != nil {
		return fmt.Errorf("failed to publish message to queue %q: %w", queue, err)
	}

	return nil
}

func (p *RabbitMQPublisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}

func buildPublishing(msg DeliveryMessage, delay time.Duration, now time.Time) (string, amqp.Publishing, error) {
	if msg.Attempt == 0 {
		msg.Attempt = 1
	}
	if err := msg.Validate(); err != nil {
		return "", amqp.Publishing{}, fmt.Errorf("invalid delivery message: %w", err)
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return "", amqp.Publishing{}, fmt.Errorf("failed to marshal delivery message: %w", err)
	}

	publishing := amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		Timestamp:     now.UTC(),
		MessageId:     msg.MessageID,
		CorrelationId: msg.CorrelationID,
		Body:          payload,
	}

	if delay <= 0 {
		return EmailQueue, publishing, nil
	}

	ms := delay.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	publishing.Expiration = strconv.FormatInt(ms, 10)
	return EmailDelayQueue, publishing, nil
}
