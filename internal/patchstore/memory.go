// Package patchstore supplies concrete implementations of patch.Store: an
// in-memory backend for tests, a local-filesystem backend, a
// sandbox-enforcing wrapper, and an S3-backed adapter.
package patchstore

import (
	"context"
	"sync"

	"applypatch/internal/objectstore"
	"applypatch/internal/patch"
)

type memEntry struct {
	data []byte
	mode uint32
}

// Memory is an in-memory patch.Store for unit tests, grounded in
// objectstore.MemoryStore's map-backed design but extended with a
// permissions map so mode-preserving Rename/Copy tests don't need a real
// filesystem.
type Memory struct {
	mu      sync.RWMutex
	objects map[string]*memEntry
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{objects: make(map[string]*memEntry)}
}

// Seed pre-populates path with data and mode, bypassing the Store
// interface. Intended for test setup.
func (m *Memory) Seed(path string, data []byte, mode uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[path] = &memEntry{data: append([]byte(nil), data...), mode: mode}
}

func (m *Memory) Exists(_ context.Context, path string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[path]
	return ok, nil
}

func (m *Memory) Read(_ context.Context, path string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.objects[path]
	if !ok {
		return nil, objectstore.ErrNotFound
	}
	return append([]byte(nil), e.data...), nil
}

func (m *Memory) Write(_ context.Context, path string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, had := m.objects[path]
	mode := uint32(0o644)
	if had {
		mode = existing.mode
	}
	m.objects[path] = &memEntry{data: append([]byte(nil), data...), mode: mode}
	return nil
}

func (m *Memory) Remove(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, path)
	return nil
}

func (m *Memory) Move(_ context.Context, source, dest string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.objects[source]
	if !ok {
		return objectstore.ErrNotFound
	}
	m.objects[dest] = e
	delete(m.objects, source)
	return nil
}

func (m *Memory) GetPermissions(_ context.Context, path string) (uint32, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.objects[path]
	if !ok {
		return 0, false, objectstore.ErrNotFound
	}
	return e.mode, true, nil
}

func (m *Memory) SetPermissions(_ context.Context, path string, mode uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.objects[path]
	if !ok {
		return objectstore.ErrNotFound
	}
	e.mode = mode
	return nil
}

var _ patch.Store = (*Memory)(nil)
