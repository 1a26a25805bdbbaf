package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/coursecheckout/pkg/config"
)

// ErrKeyNotFound is returned by KeyValue.Get for a missing key.
var ErrKeyNotFound = errors.New("key not found")

// KeyValue is the local persistent store used when no remote backend is
// configured. Writes are last-writer-wins.
type KeyValue interface {
	Set(ctx context.Context, key string, value []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Close() error
}

// OpenKeyValue opens the driver named by cfg.Local.Driver.
func OpenKeyValue(ctx context.Context, cfg *config.Config) (KeyValue, error) {
	switch cfg.Local.Driver {
	case "", "sqlite":
		return NewSQLiteRepository(cfg.Local.Path)
	case "mysql":
		return NewMySQLRepository(&cfg.MySQL)
	case "redis":
		r := NewRedisRepository(&cfg.Redis)
		if err := r.Ping(ctx); err != nil {
			_ = r.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return r, nil
	case "memory":
		return NewMemoryRepository(), nil
	default:
		return nil, fmt.Errorf("unknown local driver %q", cfg.Local.Driver)
	}
}
