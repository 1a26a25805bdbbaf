package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/example/coursecheckout/pkg/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type localEntry struct {
	Key       string    `gorm:"column:entry_key;primaryKey;type:varchar(255)"`
	Value     string    `gorm:"column:value;type:longtext"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (localEntry) TableName() string {
	return "local_entries"
}

// SQLRepository keeps key-value entries in a single gorm-managed table.
type SQLRepository struct {
	db *gorm.DB
}

// NewSQLiteRepository opens (and creates) the on-disk database at path.
func NewSQLiteRepository(path string) (*SQLRepository, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data dir: %w", err)
		}
	}
	return openSQL(sqlite.Open(path), 1, 1)
}

func NewMySQLRepository(cfg *config.MySQLConfig) (*SQLRepository, error) {
	return openSQL(mysql.Open(cfg.DSN()), cfg.MaxIdleConns, cfg.MaxOpenConns)
}

func openSQL(dialector gorm.Dialector, maxIdle, maxOpen int) (*SQLRepository, error) {
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("failed to open local database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if maxIdle > 0 {
		sqlDB.SetMaxIdleConns(maxIdle)
	}
	if maxOpen > 0 {
		sqlDB.SetMaxOpenConns(maxOpen)
	}

	// Auto migrate
	if err := db.AutoMigrate(&localEntry{}); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return &SQLRepository{db: db}, nil
}

func (r *SQLRepository) Set(ctx context.Context, key string, value []byte) error {
	entry := &localEntry{Key: key, Value: string(value), UpdatedAt: time.Now()}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "entry_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(entry).Error
}

func (r *SQLRepository) Get(ctx context.Context, key string) ([]byte, error) {
	var entry localEntry
	err := r.db.WithContext(ctx).Where("entry_key = ?", key).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	return []byte(entry.Value), nil
}

func (r *SQLRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
