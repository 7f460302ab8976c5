package repository

import (
	"context"
	"sync"
)

// MemoryStorage keeps values in process memory. It loses everything on restart
// and is meant for tests and as the failover target of last resort.
type MemoryStorage struct {
	values sync.Map
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (r *MemoryStorage) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, ok := r.values.Load(key)
	if !ok {
		return nil, false, nil
	}
	stored := val.([]byte)
	out := make([]byte, len(stored))
	copy(out, stored)
	return out, true, nil
}

func (r *MemoryStorage) Set(ctx context.Context, key string, value []byte) error {
	stored := make([]byte, len(value))
	copy(stored, value)
	r.values.Store(key, stored)
	return nil
}

func (r *MemoryStorage) Remove(ctx context.Context, key string) error {
	r.values.Delete(key)
	return nil
}
