package store

import (
	"context"

	"github.com/dvloznov/finance-ingest/internal/domain"
)

// Backend is the persistence layer behind Store. Implementations must make
// PutIfAbsent atomic per id; everything else is plain key-value access.
type Backend interface {
	// PutIfAbsent inserts tx unless a record with the same id exists.
	// It reports whether the insert happened.
	PutIfAbsent(ctx context.Context, tx *domain.Transaction) (bool, error)
	// Update overwrites the mutable fields of an existing record.
	Update(ctx context.Context, tx *domain.Transaction) error
	// Scan returns every stored transaction.
	Scan(ctx context.Context) ([]*domain.Transaction, error)
	// HasDuplicateKey reports whether any record carries the fingerprint.
	HasDuplicateKey(ctx context.Context, key string) (bool, error)
	// DeleteByUploadID removes all records of one upload and returns how many.
	DeleteByUploadID(ctx context.Context, uploadID string) (int, error)
	// Delete removes one record. Deleting a missing id is not an error.
	Delete(ctx context.Context, id string) error
	// GetCursor returns a named sync cursor, or "" when none was stored.
	GetCursor(ctx context.Context, name string) (string, error)
	// PutCursor stores a named sync cursor.
	PutCursor(ctx context.Context, name, cursor string) error
	Close() error
}
