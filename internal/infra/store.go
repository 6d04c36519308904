package infra

import (
	"fmt"

	"github.com/kursadbilgin/mail-engine/internal/config"
	"github.com/kursadbilgin/mail-engine/internal/infra/postgresql"
	"github.com/kursadbilgin/mail-engine/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/mail-engine/internal/infra/redis"
	"github.com/kursadbilgin/mail-engine/internal/repository"
)

// Store is the configured key-value backend. Gorm is set only for the postgres
// driver, whose expired rows need sweeping.
type Store struct {
	repository.Store
	Gorm  *repository.GormStore
	close func() error
}

func (s *Store) Close() error {
	if s == nil || s.close == nil {
		return nil
	}
	return s.close()
}

// OpenStore connects the backend named by cfg.StoreDriver, running migrations for
// postgres.
func OpenStore(cfg *config.Config) (*Store, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverRedis:
		rdb, err := infraredis.NewRedis(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		store, err := infraredis.NewStore(rdb)
		if err != nil {
			_ = rdb.Close()
			return nil, err
		}
		return &Store{Store: store, close: rdb.Close}, nil

	case config.StoreDriverPostgres:
		db, err := postgresql.NewPostgres(cfg.DatabaseDSN, postgresql.PoolOptions{
			MaxOpenConns: cfg.DBMaxOpenConns,
			MaxIdleConns: cfg.DBMaxIdleConns,
		})
		if err != nil {
			return nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
		}
		if err := migrations.Migrate(db); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("database migrations failed: %w", err)
		}
		store := repository.NewGormStore(db)
		return &Store{Store: store, Gorm: store, close: sqlDB.Close}, nil

	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}
}
