package queue

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Publisher enqueues delivery messages, optionally after a delay.
type Publisher interface {
	Enqueue(ctx context.Context, msg DeliveryMessage, delay time.Duration) error
	Close() error
}

// MessageHandler handles a consumed queue message. A nil return acknowledges it.
type MessageHandler func(ctx context.Context, msg DeliveryMessage) error

// Consumer consumes delivery messages from the work queue.
type Consumer interface {
	Consume(ctx context.Context, handler MessageHandler) error
	Close() error
}

const (
	// EmailQueue is the work queue consumed by workers.
	EmailQueue = "email"
	// EmailDelayQueue holds messages until their per-message expiration, then
	// dead-letters them back to EmailQueue.
	EmailDelayQueue = "email.delay"
)

// DLQName returns the dead-letter queue name for a queue, e.g. dlq.email.
func DLQName(queue string) string {
	return fmt.Sprintf("dlq.%s", queue)
}

// RetryPolicy bounds redelivery of failed messages.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func DefaultRetryPolicy(maxAttempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: maxAttempts,
		BaseDelay:   5 * time.Second,
		MaxDelay:    15 * time.Minute,
	}
}

// Backoff returns the delay before the given retry, doubling per attempt.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// Exhausted reports whether a message on its attempt-th try may not be retried.
func (p RetryPolicy) Exhausted(attempt int) bool {
	return p.MaxAttempts > 0 && attempt >= p.MaxAttempts
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks a handler error as not worth retrying; the message is
// dead-lettered immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
