package store

import (
	"context"
	"sync"

	"github.com/dvloznov/finance-ingest/internal/domain"
)

// MemoryBackend is an in-process Backend. It is used for STORE_BACKEND=memory
// and in tests. Data is lost on restart.
type MemoryBackend struct {
	mu      sync.RWMutex
	records map[string]*domain.Transaction
	cursors map[string]string
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		records: make(map[string]*domain.Transaction),
		cursors: make(map[string]string),
	}
}

// PutIfAbsent implements the Backend interface.
func (m *MemoryBackend) PutIfAbsent(ctx context.Context, tx *domain.Transaction) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.records[tx.ID]; exists {
		return false, nil
	}
	m.records[tx.ID] = tx.Clone()
	return true, nil
}

// Update implements the Backend interface.
func (m *MemoryBackend) Update(ctx context.Context, tx *domain.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records[tx.ID] = tx.Clone()
	return nil
}

// Scan implements the Backend interface.
func (m *MemoryBackend) Scan(ctx context.Context) ([]*domain.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*domain.Transaction, 0, len(m.records))
	for _, tx := range m.records {
		out = append(out, tx.Clone())
	}
	return out, nil
}

// HasDuplicateKey implements the Backend interface.
func (m *MemoryBackend) HasDuplicateKey(ctx context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, tx := range m.records {
		if tx.DuplicateKey == key {
			return true, nil
		}
	}
	return false, nil
}

// DeleteByUploadID implements the Backend interface.
func (m *MemoryBackend) DeleteByUploadID(ctx context.Context, uploadID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for id, tx := range m.records {
		if tx.UploadID == uploadID {
			delete(m.records, id)
			n++
		}
	}
	return n, nil
}

// Delete implements the Backend interface.
func (m *MemoryBackend) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.records, id)
	return nil
}

// GetCursor implements the Backend interface.
func (m *MemoryBackend) GetCursor(ctx context.Context, name string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cursors[name], nil
}

// PutCursor implements the Backend interface.
func (m *MemoryBackend) PutCursor(ctx context.Context, name, cursor string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursors[name] = cursor
	return nil
}

// Close implements the Backend interface.
func (m *MemoryBackend) Close() error { return nil }

var _ Backend = (*MemoryBackend)(nil)
