package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/mail-engine/internal/domain"
)

const minRecordTTL = time.Minute

// MutateFunc edits a freshly read message. Returning false skips the write.
type MutateFunc func(m *domain.Message) (bool, error)

type MessageRepository interface {
	Create(ctx context.Context, m *domain.Message) error
	GetByID(ctx context.Context, id string) (*domain.Message, error)
	Update(ctx context.Context, id string, mutate MutateFunc) (*domain.Message, error)
	IndexProviderMessage(ctx context.Context, provider, providerMessageID, id string) error
	FindByProviderMessage(ctx context.Context, provider, providerMessageID string) (string, error)
	CountByStatus(ctx context.Context) (map[domain.Status]int, error)
}

// KVMessageRepo stores delivery records as JSON under message:<id>.
type KVMessageRepo struct {
	store     Store
	retention time.Duration
	now       func() time.Time
}

func NewKVMessageRepo(store Store, retention time.Duration) *KVMessageRepo {
	return &KVMessageRepo{store: store, retention: retention, now: time.Now}
}

func (r *KVMessageRepo) Create(ctx context.Context, m *domain.Message) error {
	if m == nil || strings.TrimSpace(m.ID) == "" {
		return fmt.Errorf("%w: message id is required", domain.ErrValidation)
	}
	return r.put(ctx, m)
}

func (r *KVMessageRepo) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	raw, err := r.store.Get(ctx, messageKey(id))
	if err != nil {
		return nil, err
	}

	var m domain.Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("failed to decode message %s: %w", id, err)
	}
	return &m, nil
}

// Update reads the current record, applies mutate and writes the result back.
// Concurrent updates are last-writer-wins.
func (r *KVMessageRepo) Update(ctx context.Context, id string, mutate MutateFunc) (*domain.Message, error) {
	m, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	changed, err := mutate(m)
	if err != nil {
		return m, err
	}
	if !changed {
		return m, nil
	}

	if err := r.put(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (r *KVMessageRepo) IndexProviderMessage(ctx context.Context, provider, providerMessageID, id string) error {
	if provider == "" || providerMessageID == "" {
		return nil
	}
	return r.store.Put(ctx, providerMessageKey(provider, providerMessageID), []byte(id), r.retention)
}

func (r *KVMessageRepo) FindByProviderMessage(ctx context.Context, provider, providerMessageID string) (string, error) {
	if provider == "" || providerMessageID == "" {
		return "", domain.ErrNotFound
	}
	raw, err := r.store.Get(ctx, providerMessageKey(provider, providerMessageID))
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func (r *KVMessageRepo) CountByStatus(ctx context.Context) (map[domain.Status]int, error) {
	entries, err := r.store.List(ctx, messagePrefix)
	if err != nil {
		return nil, err
	}

	counts := make(map[domain.Status]int, len(domain.Statuses))
	for _, status := range domain.Statuses {
		counts[status] = 0
	}
	for _, entry := range entries {
		var m struct {
			Status domain.Status `json:"status"`
		}
		if err := json.Unmarshal(entry.Value, &m); err != nil {
			continue
		}
		counts[m.Status]++
	}
	return counts, nil
}

func (r *KVMessageRepo) put(ctx context.Context, m *domain.Message) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode message %s: %w", m.ID, err)
	}
	return r.store.Put(ctx, messageKey(m.ID), raw, r.ttlFor(m))
}

// ttlFor keeps expiry anchored to creation so updates do not extend retention.
func (r *KVMessageRepo) ttlFor(m *domain.Message) time.Duration {
	if r.retention <= 0 {
		return 0
	}
	if m.CreatedAt.IsZero() {
		return r.retention
	}
	ttl := r.retention - r.now().Sub(m.CreatedAt)
	if ttl < minRecordTTL {
		return minRecordTTL
	}
	return ttl
}

// IsNotFound reports whether err means the record does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}
