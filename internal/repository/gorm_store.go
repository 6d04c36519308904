package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/mail-engine/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const notExpired = "(expires_at IS NULL OR expires_at > ?)"

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// GormStore keeps entries in the kv_records table. Expired rows are hidden from
// reads and removed by SweepExpired.
type GormStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db, now: time.Now}
}

func (s *GormStore) Get(ctx context.Context, key string) ([]byte, error) {
	var model KVRecordModel
	err := s.db.WithContext(ctx).
		Where("key = ? AND "+notExpired, key, s.now()).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return model.Value, nil
}

func (s *GormStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	model := kvModelFromEntry(key, value, ttl, s.now())
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at", "updated_at"}),
		}).
		Create(model).Error
}

func (s *GormStore) Delete(ctx context.Context, key string) error {
	return s.db.WithContext(ctx).
		Where("key = ?", key).
		Delete(&KVRecordModel{}).Error
}

func (s *GormStore) List(ctx context.Context, prefix string) ([]Entry, error) {
	var models []KVRecordModel
	err := s.db.WithContext(ctx).
		Where("key LIKE ? AND "+notExpired, likeEscaper.Replace(prefix)+"%", s.now()).
		Order("key ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(models))
	for i := range models {
		entries = append(entries, Entry{Key: models[i].Key, Value: models[i].Value})
	}
	return entries, nil
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// SweepExpired deletes rows whose expiry has passed and reports how many were removed.
func (s *GormStore) SweepExpired(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at <= ?", s.now()).
		Delete(&KVRecordModel{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
