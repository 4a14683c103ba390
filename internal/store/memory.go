package store

import (
	"context"
	"sync"
)

// MemoryStore is an in-process CheckpointStore used when persistence is
// disabled and as the test substitute for the redis implementation.
type MemoryStore struct {
	mu          sync.RWMutex
	checkpoints map[string]Checkpoint
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{checkpoints: make(map[string]Checkpoint)}
}

func (m *MemoryStore) Save(_ context.Context, cp Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkpoints[cp.Stream] = cp
	return nil
}

func (m *MemoryStore) Load(_ context.Context, stream string) (Checkpoint, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cp, ok := m.checkpoints[stream]
	return cp, ok, nil
}

func (m *MemoryStore) Close() error { return nil }
