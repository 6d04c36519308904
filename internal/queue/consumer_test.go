package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

type fakeAcknowledger struct {
	acks    int
	nacks   int
	rejects int
	requeue bool
}

func (f *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	f.acks++
	return nil
}

func (f *fakeAcknowledger) Nack(tag uint64, multiple bool, requeue bool) error {
	f.nacks++
	f.requeue = requeue
	return nil
}

func (f *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	f.rejects++
	f.requeue = requeue
	return nil
}

type countingRecorder struct {
	retries     int
	deadLetters int
}

func (r *countingRecorder) IncRetryScheduled() { r.retries++ }
func (r *countingRecorder) IncDeadLettered()   { r.deadLetters++ }

type retryCall struct {
	msg   DeliveryMessage
	delay time.Duration
}

func newTestConsumer(retryErr error) (*RabbitMQConsumer, *countingRecorder, *[]retryCall) {
	recorder := &countingRecorder{}
	calls := &[]retryCall{}
	c := NewRabbitMQConsumer(nil, 4, RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: time.Minute}, recorder, nil)
	c.retry = func(ctx context.Context, msg DeliveryMessage, delay time.Duration) error {
		*calls = append(*calls, retryCall{msg: msg, delay: delay})
		return retryErr
	}
	return c, recorder, calls
}

func TestHandleDelivery(t *testing.T) {
	t.Parallel()

	transient := errors.New("provider unavailable")

	tests := []struct {
		name        string
		body        string
		handlerErr  error
		retryErr    error
		wantAcks    int
		wantNacks   int
		wantRejects int
		wantRetries int
		wantDelay   time.Duration
		wantAttempt int
	}{
		{name: "success acks", body: `{"messageId":"m1","attempt":1}`, wantAcks: 1},
		{name: "invalid json dead-letters", body: `{`, wantRejects: 1},
		{name: "missing id dead-letters", body: `{"attempt":1}`, wantRejects: 1},
		{name: "transient failure retries", body: `{"messageId":"m1","attempt":1}`, handlerErr: transient, wantAcks: 1, wantRetries: 1, wantDelay: time.Second, wantAttempt: 2},
		{name: "second failure doubles delay", body: `{"messageId":"m1","attempt":2}`, handlerErr: transient, wantAcks: 1, wantRetries: 1, wantDelay: 2 * time.Second, wantAttempt: 3},
		{name: "legacy zero attempt counts as first", body: `{"messageId":"m1"}`, handlerErr: transient, wantAcks: 1, wantRetries: 1, wantDelay: time.Second, wantAttempt: 2},
		{name: "exhausted dead-letters", body: `{"messageId":"m1","attempt":3}`, handlerErr: transient, wantRejects: 1},
		{name: "permanent dead-letters", body: `{"messageId":"m1","attempt":1}`, handlerErr: Permanent(transient), wantRejects: 1},
		{name: "retry publish failure requeues", body: `{"messageId":"m1","attempt":1}`, handlerErr: transient, retryErr: errors.New("broker down"), wantNacks: 1, wantRetries: 1, wantDelay: time.Second, wantAttempt: 2},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			consumer, recorder, calls := newTestConsumer(tt.retryErr)
			ack := &fakeAcknowledger{}
			d := amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: []byte(tt.body)}

			err := consumer.handleDelivery(context.Background(), d, func(ctx context.Context, msg DeliveryMessage) error {
				return tt.handlerErr
			})
			if err != nil {
				t.Fatalf("handleDelivery() error = %v", err)
			}

			if ack.acks != tt.wantAcks || ack.nacks != tt.wantNacks || ack.rejects != tt.wantRejects {
				t.Fatalf("ack/nack/reject = %d/%d/%d, want %d/%d/%d",
					ack.acks, ack.nacks, ack.rejects, tt.wantAcks, tt.wantNacks, tt.wantRejects)
			}
			if tt.wantRejects > 0 && ack.requeue {
				t.Fatal("reject should not requeue")
			}
			if tt.wantNacks > 0 && !ack.requeue {
				t.Fatal("nack should requeue")
			}
			if len(*calls) != tt.wantRetries {
				t.Fatalf("retry calls = %d, want %d", len(*calls), tt.wantRetries)
			}
			if tt.wantRetries > 0 {
				call := (*calls)[0]
				if call.delay != tt.wantDelay || call.msg.Attempt != tt.wantAttempt {
					t.Fatalf("retry = attempt %d after %s, want attempt %d after %s",
						call.msg.Attempt, call.delay, tt.wantAttempt, tt.wantDelay)
				}
			}

			wantScheduled := 0
			if tt.wantRetries > 0 && tt.retryErr == nil {
				wantScheduled = 1
			}
			if recorder.retries != wantScheduled || recorder.deadLetters != tt.wantRejects {
				t.Fatalf("recorder retries/deadLetters = %d/%d, want %d/%d",
					recorder.retries, recorder.deadLetters, wantScheduled, tt.wantRejects)
			}
		})
	}
}

func TestHandleDeliveryPassesAttemptToHandler(t *testing.T) {
	t.Parallel()

	consumer, _, _ := newTestConsumer(nil)
	d := amqp.Delivery{Acknowledger: &fakeAcknowledger{}, Body: []byte(`{"messageId":"m9","correlationId":"cid"}`)}

	var got DeliveryMessage
	if err := consumer.handleDelivery(context.Background(), d, func(ctx context.Context, msg DeliveryMessage) error {
		got = msg
		return nil
	}); err != nil {
		t.Fatalf("handleDelivery() error = %v", err)
	}
	if got.MessageID != "m9" || got.CorrelationID != "cid" || got.Attempt != 1 {
		t.Fatalf("handler got %+v, want m9/cid attempt 1", got)
	}
}

func TestConsumeRequiresHandler(t *testing.T) {
	t.Parallel()

	var nilConsumer *RabbitMQConsumer
	if err := nilConsumer.Consume(context.Background(), func(context.Context, DeliveryMessage) error { return nil }); err == nil {
		t.Fatal("expected error for nil consumer")
	}
}
