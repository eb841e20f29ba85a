package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/reloadsync/reloadsync/internal/logger"
)

// GORMStore implements Store using gorm, over either SQLite or
// PostgreSQL depending on Config.Type.
type GORMStore struct {
	db     *gorm.DB
	config *Config
}

// New opens a session store per config. SQLite schemas are brought up
// with gorm's AutoMigrate; PostgreSQL schemas are brought up first via
// golang-migrate's embedded SQL migrations, matching the split the
// rest of this codebase's storage layers use between a single-node
// embedded engine and an HA network-backed one.
func New(config *Config, log *logger.Logger) (*GORMStore, error) {
	if config == nil {
		config = &Config{}
	}
	if log == nil {
		log = logger.Default()
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("store: invalid configuration: %w", err)
	}

	var dialector gorm.Dialector
	switch config.Type {
	case DatabaseTypeSQLite:
		if err := os.MkdirAll(filepath.Dir(config.SQLite.Path), 0755); err != nil {
			return nil, fmt.Errorf("store: create database directory: %w", err)
		}
		dsn := config.SQLite.Path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
		dialector = sqlite.Open(dsn)

	case DatabaseTypePostgres:
		if err := runPostgresMigrations(config.Postgres.DSN(), log); err != nil {
			return nil, err
		}
		dialector = postgres.Open(config.Postgres.DSN())

	default:
		return nil, fmt.Errorf("store: unsupported store type: %s", config.Type)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}

	if config.Type == DatabaseTypePostgres {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("store: underlying database handle: %w", err)
		}
		sqlDB.SetMaxOpenConns(config.Postgres.MaxOpenConns)
		sqlDB.SetMaxIdleConns(config.Postgres.MaxIdleConns)
	}

	// SQLite has no golang-migrate migrations to run; AutoMigrate covers
	// the single small table this store owns.
	if config.Type == DatabaseTypeSQLite {
		if err := db.AutoMigrate(AllModels()...); err != nil {
			return nil, fmt.Errorf("store: auto-migrate: %w", err)
		}
	}

	return &GORMStore{db: db, config: config}, nil
}

func (s *GORMStore) SaveSession(ctx context.Context, rec SessionRecord) error {
	return s.db.WithContext(ctx).Save(&rec).Error
}

func (s *GORMStore) LoadSession(ctx context.Context, id string) (SessionRecord, bool, error) {
	var rec SessionRecord
	err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return SessionRecord{}, false, nil
	}
	if err != nil {
		return SessionRecord{}, false, err
	}
	return rec, true, nil
}

func (s *GORMStore) DeleteSession(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Delete(&SessionRecord{}, "id = ?", id).Error
}

func (s *GORMStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
