package domain

import (
	"errors"
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		authority Authority
		from      Status
		to        Status
		want      bool
	}{
		{AuthoritySync, StatusPending, StatusSent, true},
		{AuthoritySync, StatusPending, StatusFailed, true},
		{AuthoritySync, StatusPending, StatusScheduled, true},
		{AuthoritySync, StatusScheduled, StatusSent, false},
		{AuthoritySync, StatusScheduled, StatusFailed, true},
		{AuthoritySync, StatusBounced, StatusSent, false},
		{AuthoritySync, StatusFailed, StatusSent, false},
		{AuthorityQueue, StatusScheduled, StatusSent, true},
		{AuthorityQueue, StatusScheduled, StatusFailed, true},
		{AuthorityQueue, StatusFailed, StatusFailed, true},
		{AuthorityQueue, StatusFailed, StatusSent, true},
		{AuthorityQueue, StatusSent, StatusFailed, false},
		{AuthorityQueue, StatusBounced, StatusSent, false},
		{AuthorityWebhook, StatusSent, StatusBounced, true},
		{AuthorityWebhook, StatusPending, StatusBounced, true},
		{AuthorityWebhook, StatusFailed, StatusBounced, true},
		{AuthorityWebhook, StatusSent, StatusFailed, false},
	}

	for _, tt := range tests {
		if got := CanTransition(tt.authority, tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s, %s) = %v, want %v", tt.authority, tt.from, tt.to, got, tt.want)
		}
	}
}

func TestMessageTransitionSetsSideFields(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	m := Message{ID: "m1", Status: StatusPending, Error: "old"}

	result, err := m.MarkSent(AuthoritySync, "resend", "re_1", now)
	if err != nil {
		t.Fatalf("MarkSent() error = %v", err)
	}
	if !result.Changed || result.From != StatusPending || result.To != StatusSent {
		t.Fatalf("result = %+v, want pending -> sent changed", result)
	}
	if m.Provider != "resend" || m.ProviderMessageID != "re_1" {
		t.Fatalf("provider = %q/%q, want resend/re_1", m.Provider, m.ProviderMessageID)
	}
	if m.SentAt == nil || !m.SentAt.Equal(now) {
		t.Fatalf("SentAt = %v, want %v", m.SentAt, now)
	}
	if m.Error != "" {
		t.Fatalf("Error = %q, want cleared", m.Error)
	}
}

func TestMessageTransitionRejectsIllegalMove(t *testing.T) {
	t.Parallel()

	m := Message{ID: "m2", Status: StatusBounced}
	_, err := m.MarkSent(AuthoritySync, "resend", "", time.Now())
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("MarkSent() error = %v, want ErrInvalidTransition", err)
	}
	if m.Status != StatusBounced {
		t.Fatalf("status = %s, want bounced", m.Status)
	}
	if m.Provider != "" {
		t.Fatalf("provider = %q, want empty", m.Provider)
	}
}

func TestMessageTransitionBounceIsIdempotent(t *testing.T) {
	t.Parallel()

	first := time.Unix(1_700_000_000, 0)
	m := Message{ID: "m3", Status: StatusSent}

	result, err := m.Transition(AuthorityWebhook, StatusBounced, first)
	if err != nil || !result.Changed {
		t.Fatalf("first bounce = %+v, %v; want changed", result, err)
	}

	result, err = m.Transition(AuthorityWebhook, StatusBounced, first.Add(time.Hour))
	if err != nil {
		t.Fatalf("second bounce error = %v", err)
	}
	if result.Changed {
		t.Fatal("second bounce should not change the record")
	}
	if !m.BouncedAt.Equal(first) {
		t.Fatalf("BouncedAt = %v, want %v", m.BouncedAt, first)
	}
}

func TestMessageMarkFailedRecordsError(t *testing.T) {
	t.Parallel()

	m := Message{ID: "m4", Status: StatusScheduled}
	if _, err := m.MarkFailed(AuthorityQueue, errors.New("boom"), time.Now()); err != nil {
		t.Fatalf("MarkFailed() error = %v", err)
	}
	if m.Status != StatusFailed || m.Error != "boom" {
		t.Fatalf("status/error = %s/%q, want failed/boom", m.Status, m.Error)
	}
}
