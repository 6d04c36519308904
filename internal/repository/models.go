package repository

import (
	"time"
)

// KVRecordModel is the persistence model for the kv_records table.
type KVRecordModel struct {
	Key       string     `gorm:"type:varchar(512);primaryKey"`
	Value     []byte     `gorm:"type:bytea;not null"`
	ExpiresAt *time.Time `gorm:"type:timestamptz"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (KVRecordModel) TableName() string {
	return "kv_records"
}

func kvModelFromEntry(key string, value []byte, ttl time.Duration, now time.Time) *KVRecordModel {
	model := &KVRecordModel{
		Key:       key,
		Value:     value,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if ttl > 0 {
		expiresAt := now.Add(ttl)
		model.ExpiresAt = &expiresAt
	}
	return model
}
