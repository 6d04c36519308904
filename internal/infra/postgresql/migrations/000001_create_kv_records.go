package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/mail-engine/internal/repository"
	"gorm.io/gorm"
)

func createKVRecords() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_kv_records",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.KVRecordModel{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_kv_records_expires_at ON kv_records (expires_at) WHERE expires_at IS NOT NULL`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.KVRecordModel{})
		},
	}
}
