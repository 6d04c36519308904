package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// Prefix listing uses LIKE 'prefix%', which needs pattern ops under non-C collations.
func addKVRecordsPrefixIndex() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_add_kv_records_prefix_index",
		Migrate: func(tx *gorm.DB) error {
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_kv_records_key_pattern ON kv_records (key varchar_pattern_ops)`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Exec(`DROP INDEX IF EXISTS idx_kv_records_key_pattern`).Error
		},
	}
}
