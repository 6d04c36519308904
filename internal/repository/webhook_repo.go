package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/mail-engine/internal/domain"
)

type WebhookRepository interface {
	Append(ctx context.Context, record *domain.WebhookRecord) error
}

// KVWebhookRepo appends raw webhook payloads under webhook:<provider>:<unixnano>:<id>.
// The id suffix keeps records received in the same nanosecond apart.
type KVWebhookRepo struct {
	store     Store
	retention time.Duration
}

func NewKVWebhookRepo(store Store, retention time.Duration) *KVWebhookRepo {
	return &KVWebhookRepo{store: store, retention: retention}
}

func (r *KVWebhookRepo) Append(ctx context.Context, record *domain.WebhookRecord) error {
	if record == nil {
		return fmt.Errorf("%w: webhook record is required", domain.ErrValidation)
	}
	if record.ReceivedAt.IsZero() {
		record.ReceivedAt = time.Now().UTC()
	}

	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode webhook record: %w", err)
	}

	key := webhookPrefix + record.Provider + ":" + strconv.FormatInt(record.ReceivedAt.UnixNano(), 10) + ":" + uuid.NewString()
	return r.store.Put(ctx, key, raw, r.retention)
}
