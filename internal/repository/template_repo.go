package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/kursadbilgin/mail-engine/internal/domain"
)

type TemplateRepository interface {
	Save(ctx context.Context, t *domain.Template) error
	GetByID(ctx context.Context, id string) (*domain.Template, error)
	List(ctx context.Context) ([]domain.Template, error)
	Delete(ctx context.Context, id string) error
}

// KVTemplateRepo stores templates under template:<id> without expiry.
type KVTemplateRepo struct {
	store Store
}

func NewKVTemplateRepo(store Store) *KVTemplateRepo {
	return &KVTemplateRepo{store: store}
}

func (r *KVTemplateRepo) Save(ctx context.Context, t *domain.Template) error {
	if t == nil {
		return fmt.Errorf("%w: template is required", domain.ErrValidation)
	}
	raw, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to encode template %s: %w", t.ID, err)
	}
	return r.store.Put(ctx, templateKey(t.ID), raw, 0)
}

func (r *KVTemplateRepo) GetByID(ctx context.Context, id string) (*domain.Template, error) {
	raw, err := r.store.Get(ctx, templateKey(id))
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", domain.ErrTemplateNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	var t domain.Template
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("failed to decode template %s: %w", id, err)
	}
	return &t, nil
}

func (r *KVTemplateRepo) List(ctx context.Context) ([]domain.Template, error) {
	entries, err := r.store.List(ctx, templatePrefix)
	if err != nil {
		return nil, err
	}

	templates := make([]domain.Template, 0, len(entries))
	for _, entry := range entries {
		var t domain.Template
		if err := json.Unmarshal(entry.Value, &t); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", entry.Key, err)
		}
		templates = append(templates, t)
	}

	sort.Slice(templates, func(i, j int) bool {
		return templates[i].ID < templates[j].ID
	})
	return templates, nil
}

func (r *KVTemplateRepo) Delete(ctx context.Context, id string) error {
	if _, err := r.store.Get(ctx, templateKey(id)); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("%w: %s", domain.ErrTemplateNotFound, id)
		}
		return err
	}
	return r.store.Delete(ctx, templateKey(id))
}
