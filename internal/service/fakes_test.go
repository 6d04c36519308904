package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kursadbilgin/mail-engine/internal/domain"
	"github.com/kursadbilgin/mail-engine/internal/provider"
	"github.com/kursadbilgin/mail-engine/internal/queue"
	"github.com/kursadbilgin/mail-engine/internal/repository"
)

var testNow = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

type memoryStore struct {
	mu     sync.Mutex
	data   map[string][]byte
	ttls   map[string]time.Duration
	putErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (s *memoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (s *memoryStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return s.putErr
	}
	s.data[key] = append([]byte(nil), value...)
	s.ttls[key] = ttl
	return nil
}

func (s *memoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	delete(s.ttls, key)
	return nil
}

func (s *memoryStore) List(ctx context.Context, prefix string) ([]repository.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := make([]repository.Entry, 0)
	for k, v := range s.data {
		if strings.HasPrefix(k, prefix) {
			entries = append(entries, repository.Entry{Key: k, Value: append([]byte(nil), v...)})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries, nil
}

func (s *memoryStore) Ping(ctx context.Context) error { return nil }

func (s *memoryStore) keys(prefix string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0)
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

type fakeDispatcher struct {
	name   string
	mu     sync.Mutex
	calls  []domain.Message
	sendFn func(ctx context.Context, message domain.Message) (*provider.Response, error)
}

func (f *fakeDispatcher) Name() string { return f.name }

func (f *fakeDispatcher) Send(ctx context.Context, message domain.Message) (*provider.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, message)
	f.mu.Unlock()
	if f.sendFn != nil {
		return f.sendFn(ctx, message)
	}
	return &provider.Response{Provider: f.name, MessageID: "pm-" + message.ID}, nil
}

func (f *fakeDispatcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type enqueueCall struct {
	msg   queue.DeliveryMessage
	delay time.Duration
}

type fakePublisher struct {
	mu        sync.Mutex
	calls     []enqueueCall
	enqueueFn func(ctx context.Context, msg queue.DeliveryMessage, delay time.Duration) error
}

func (f *fakePublisher) Enqueue(ctx context.Context, msg queue.DeliveryMessage, delay time.Duration) error {
	f.mu.Lock()
	f.calls = append(f.calls, enqueueCall{msg: msg, delay: delay})
	f.mu.Unlock()
	if f.enqueueFn != nil {
		return f.enqueueFn(ctx, msg, delay)
	}
	return nil
}

func (f *fakePublisher) Close() error { return nil }

type fakeConsumer struct {
	mu        sync.Mutex
	calls     int
	consumeFn func(ctx context.Context, handler queue.MessageHandler) error
}

func (f *fakeConsumer) Consume(ctx context.Context, handler queue.MessageHandler) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.consumeFn != nil {
		return f.consumeFn(ctx, handler)
	}
	return nil
}

func (f *fakeConsumer) Close() error { return nil }

type fakeWebhookRepo struct {
	appendFn func(ctx context.Context, record *domain.WebhookRecord) error
}

func (f *fakeWebhookRepo) Append(ctx context.Context, record *domain.WebhookRecord) error {
	if f.appendFn != nil {
		return f.appendFn(ctx, record)
	}
	return nil
}

type mailFixture struct {
	store      *memoryStore
	messages   *repository.KVMessageRepo
	templates  *repository.KVTemplateRepo
	dispatcher *fakeDispatcher
	publisher  *fakePublisher
	svc        *MailService
}

func newMailFixture(t *testing.T) *mailFixture {
	t.Helper()

	f := &mailFixture{
		store:      newMemoryStore(),
		dispatcher: &fakeDispatcher{name: provider.NameResend},
		publisher:  &fakePublisher{},
	}
	f.messages = repository.NewKVMessageRepo(f.store, 720*time.Hour)
	f.templates = repository.NewKVTemplateRepo(f.store)

	svc, err := NewMailService(f.messages, f.templates, f.dispatcher, f.publisher, "noreply@acme.test", nil)
	if err != nil {
		t.Fatalf("NewMailService() error = %v", err)
	}
	svc.now = func() time.Time { return testNow }
	seq := 0
	svc.newID = func() string {
		seq++
		return fmt.Sprintf("msg-%d", seq)
	}
	f.svc = svc
	return f
}

func (f *mailFixture) stored(t *testing.T, id string) *domain.Message {
	t.Helper()
	m, err := f.messages.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID(%s) error = %v", id, err)
	}
	return m
}
