package gcsuploader

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/dvloznov/finance-ingest/internal/domain"
)

// BlobStore stores receipt images and archived CSV uploads.
type BlobStore interface {
	// Put writes data under objectName and returns its URI.
	Put(ctx context.Context, objectName string, data []byte, contentType string) (string, error)
	// Fetch reads the object behind a URI returned by Put.
	Fetch(ctx context.Context, uri string) ([]byte, error)
}

// ReceiptObjectName builds receipts/<unix millis>_<random>_<file name>.
func ReceiptObjectName(fileName string, now time.Time) string {
	if fileName = path.Base(strings.TrimSpace(fileName)); fileName == "" || fileName == "." || fileName == "/" {
		fileName = "receipt.jpg"
	}
	return fmt.Sprintf("receipts/%d_%s_%s", now.UnixMilli(), domain.ShortRandom(), fileName)
}

// UploadObjectName builds uploads/<upload id>/<file name> for archived CSVs.
func UploadObjectName(uploadID, fileName string) string {
	if fileName = path.Base(strings.TrimSpace(fileName)); fileName == "" || fileName == "." || fileName == "/" {
		fileName = "upload.csv"
	}
	return fmt.Sprintf("uploads/%s/%s", uploadID, fileName)
}

// MemoryStore is a BlobStore kept in process memory, used when no bucket is
// configured and in tests.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

// Put implements the BlobStore interface.
func (m *MemoryStore) Put(ctx context.Context, objectName string, data []byte, contentType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[objectName] = append([]byte(nil), data...)
	return "mem://" + objectName, nil
}

// Fetch implements the BlobStore interface.
func (m *MemoryStore) Fetch(ctx context.Context, uri string) ([]byte, error) {
	name := strings.TrimPrefix(uri, "mem://")
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[name]
	if !ok {
		return nil, fmt.Errorf("object not found: %s", uri)
	}
	return append([]byte(nil), data...), nil
}

// Len returns the number of stored objects.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

var (
	_ BlobStore = (*MemoryStore)(nil)
	_ BlobStore = (*GCSStore)(nil)
)
