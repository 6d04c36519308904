package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kursadbilgin/mail-engine/internal/domain"
	"github.com/kursadbilgin/mail-engine/internal/repository"
	goredis "github.com/redis/go-redis/v9"
)

const (
	scanCount = 500
	mgetBatch = 200
)

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

var _ repository.Store = (*Store)(nil)

// Store implements repository.Store on Redis strings with native key expiry.
type Store struct {
	client goredis.Cmdable
}

func NewStore(client goredis.Cmdable) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	return &Store{client: client}, nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return value, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

func (s *Store) List(ctx context.Context, prefix string) ([]repository.Entry, error) {
	keys, err := s.scanKeys(ctx, globEscaper.Replace(prefix)+"*")
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)

	entries := make([]repository.Entry, 0, len(keys))
	for start := 0; start < len(keys); start += mgetBatch {
		end := min(start+mgetBatch, len(keys))
		batch := keys[start:end]

		values, err := s.client.MGet(ctx, batch...).Result()
		if err != nil {
			return nil, fmt.Errorf("redis mget: %w", err)
		}
		for i, v := range values {
			// Keys may expire between SCAN and MGET.
			str, ok := v.(string)
			if !ok {
				continue
			}
			entries = append(entries, repository.Entry{Key: batch[i], Value: []byte(str)})
		}
	}
	return entries, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) scanKeys(ctx context.Context, pattern string) ([]string, error) {
	seen := make(map[string]struct{})
	keys := make([]string, 0)

	var cursor uint64
	for {
		batch, next, err := s.client.Scan(ctx, cursor, pattern, scanCount).Result()
		if err != nil {
			return nil, fmt.Errorf("redis scan %s: %w", pattern, err)
		}
		// SCAN may return a key more than once.
		for _, key := range batch {
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			keys = append(keys, key)
		}
		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}
