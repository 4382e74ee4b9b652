package kv

import (
	"context"
	"sync"
)

// MemoryStore is a map-backed Store for tests and ephemeral deployments.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]map[string][]byte)}
}

func (m *MemoryStore) Get(ctx context.Context, ns Namespace, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	bucket, ok := m.data[ns.String()]
	if !ok {
		return nil, false, nil
	}
	value, ok := bucket[key]
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	return cp, true, nil
}

func (m *MemoryStore) Put(ctx context.Context, ns Namespace, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	bucket, ok := m.data[ns.String()]
	if !ok {
		bucket = make(map[string][]byte)
		m.data[ns.String()] = bucket
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	bucket[key] = cp
	return nil
}

func (m *MemoryStore) Search(ctx context.Context, ns Namespace) ([]Pair, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	bucket, ok := m.data[ns.String()]
	if !ok {
		return nil, nil
	}
	pairs := make([]Pair, 0, len(bucket))
	for k, v := range bucket {
		cp := make([]byte, len(v))
		copy(cp, v)
		pairs = append(pairs, Pair{Key: k, Value: cp})
	}
	return pairs, nil
}

func (m *MemoryStore) Delete(ctx context.Context, ns Namespace, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if bucket, ok := m.data[ns.String()]; ok {
		delete(bucket, key)
	}
	return nil
}

func (m *MemoryStore) Close() error { return nil }
