package repository

import (
	"context"
	"sync"
)

type MemoryRepository struct {
	mu sync.RWMutex
	m  map[string][]byte
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{m: make(map[string][]byte)}
}

func (r *MemoryRepository) Set(_ context.Context, key string, value []byte) error {
	cp := make([]byte, len(value))
	copy(cp, value)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[key] = cp
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, key string) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.m[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return v, nil
}

func (r *MemoryRepository) Close() error {
	return nil
}
