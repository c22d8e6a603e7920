package store

import (
	"errors"
	"sync"
)

var _ KVStoreI = &MemoryKV{}

// MemoryKV is a map backed database for tests, the demo and ephemeral trees
type MemoryKV struct {
	m      map[string][]byte
	mu     sync.RWMutex
	closed bool
}

// NewMemoryKV() creates an empty in-memory backend
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{m: make(map[string][]byte)}
}

func (m *MemoryKV) Get(key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, errMemoryClosed
	}
	v, ok := m.m[string(key)]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

// Write() applies the pairs under a single lock
func (m *MemoryKV) Write(batch []KV) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errMemoryClosed
	}
	for _, kv := range batch {
		m.m[string(kv.Key)] = append([]byte(nil), kv.Value...)
	}
	return nil
}

func (m *MemoryKV) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *MemoryKV) Name() string { return "memory" }

// Len() returns the number of stored keys
func (m *MemoryKV) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.m)
}

var errMemoryClosed = errors.New("memory store is closed")
