package repository

import (
	"context"
	"time"
)

// Entry is one stored key and its value.
type Entry struct {
	Key   string
	Value []byte
}

// Store is a key-value store with per-key expiry. A zero ttl never expires.
// Get returns domain.ErrNotFound for absent or expired keys.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]Entry, error)
	Ping(ctx context.Context) error
}

// Key prefixes of the persisted layout.
const (
	messagePrefix         = "message:"
	templatePrefix        = "template:"
	webhookPrefix         = "webhook:"
	providerMessagePrefix = "provider-message:"
)

func messageKey(id string) string {
	return messagePrefix + id
}

func templateKey(id string) string {
	return templatePrefix + id
}

func providerMessageKey(provider, providerMessageID string) string {
	return providerMessagePrefix + provider + ":" + providerMessageID
}
