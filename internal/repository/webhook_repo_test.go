package repository

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/kursadbilgin/mail-engine/internal/domain"
)

func TestKVWebhookRepoAppend(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	repo := NewKVWebhookRepo(store, 168*time.Hour)
	ctx := context.Background()

	received := time.Date(2026, 3, 14, 9, 0, 0, 42, time.UTC)
	record := &domain.WebhookRecord{Provider: "resend", ReceivedAt: received, Payload: []byte(`{"type":"email.bounced"}`)}
	if err := repo.Append(ctx, record); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	resend, _ := store.List(ctx, "webhook:resend:1773478800000000042:")
	if len(resend) != 1 {
		t.Fatalf("resend entries = %v, want 1", resend)
	}
	key, raw := resend[0].Key, resend[0].Value
	if ttl := store.ttl(key); ttl != 168*time.Hour {
		t.Fatalf("ttl = %s, want retention", ttl)
	}

	var decoded domain.WebhookRecord
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("stored record is not JSON: %v", err)
	}
	if decoded.Provider != "resend" || string(decoded.Payload) != `{"type":"email.bounced"}` {
		t.Fatalf("decoded = %+v, want original payload", decoded)
	}

	undated := &domain.WebhookRecord{Provider: "sendgrid", Payload: []byte(`[]`)}
	if err := repo.Append(ctx, undated); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if undated.ReceivedAt.IsZero() {
		t.Fatal("expected ReceivedAt to be stamped")
	}
	entries, _ := store.List(ctx, "webhook:sendgrid:")
	if len(entries) != 1 || !strings.HasPrefix(entries[0].Key, "webhook:sendgrid:") {
		t.Fatalf("sendgrid entries = %v", entries)
	}
}

func TestKVWebhookRepoAppendSameTimestamp(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	repo := NewKVWebhookRepo(store, time.Hour)
	ctx := context.Background()

	received := time.Date(2026, 3, 14, 9, 0, 0, 7, time.UTC)
	for _, payload := range []string{`{"n":1}`, `{"n":2}`} {
		record := &domain.WebhookRecord{Provider: "mailgun", ReceivedAt: received, Payload: []byte(payload)}
		if err := repo.Append(ctx, record); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	entries, err := store.List(ctx, "webhook:mailgun:")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2 distinct records", len(entries))
	}
}
