package store

import (
	"context"
	"sync"

	"vton/internal/apperrors"
)

// Memory is a map-backed store used by tests and local development.
type Memory struct {
	mu      sync.RWMutex
	objects map[string][]byte

	// PutErr/GetErr, when set, force the next matching call to fail.
	// Test hook only.
	PutErr error
	GetErr error
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte)}
}

// Put stores a copy of data under the key.
func (m *Memory) Put(ctx context.Context, ref ObjectRef, data []byte) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Storage("store.put", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PutErr != nil {
		return m.PutErr
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	m.objects[ref.Key] = cp
	return nil
}

// Get returns a copy of the stored bytes, or apperrors.ErrNotFound.
func (m *Memory) Get(ctx context.Context, ref ObjectRef) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Storage("store.get", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	data, ok := m.objects[ref.Key]
	if !ok {
		return nil, apperrors.NotFound(ref.Key)
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

// Exists reports whether the key is present.
func (m *Memory) Exists(ctx context.Context, ref ObjectRef) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[ref.Key]
	return ok, nil
}

// Remove deletes the key. Absent keys are not an error.
func (m *Memory) Remove(ctx context.Context, ref ObjectRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, ref.Key)
	return nil
}

// Ready always succeeds.
func (m *Memory) Ready(ctx context.Context) error {
	return nil
}

// Len returns the number of stored objects.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

// Keys returns all stored keys.
func (m *Memory) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	return keys
}

// Verify Memory implements Client
var _ Client = (*Memory)(nil)
