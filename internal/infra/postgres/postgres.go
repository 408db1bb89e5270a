// Package postgres is the gorm-backed Postgres persistence backend for the
// transaction store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/dvloznov/finance-ingest/internal/domain"
	"github.com/dvloznov/finance-ingest/internal/store"
)

// Backend implements store.Backend with gorm.
type Backend struct {
	db *gorm.DB
}

// Open connects to Postgres and migrates the tables.
func Open(ctx context.Context, dsn string) (*Backend, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("Open: connecting: %w", err)
	}
	b := NewWithDB(db)
	if err := b.Migrate(ctx); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

// NewWithDB wraps an existing gorm handle.
func NewWithDB(db *gorm.DB) *Backend {
	return &Backend{db: db}
}

// Migrate creates or updates the tables.
func (b *Backend) Migrate(ctx context.Context) error {
	if err := b.db.WithContext(ctx).AutoMigrate(&transactionModel{}, &cursorModel{}); err != nil {
		return fmt.Errorf("Migrate: %w", err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (b *Backend) Close() error {
	sqlDB, err := b.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// PutIfAbsent inserts tx unless its id exists.
func (b *Backend) PutIfAbsent(ctx context.Context, tx *domain.Transaction) (bool, error) {
	res := b.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(toModel(tx))
	if res.Error != nil {
		return false, fmt.Errorf("PutIfAbsent: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// Update overwrites the mutable columns of an existing row.
func (b *Backend) Update(ctx context.Context, tx *domain.Transaction) error {
	m := toModel(tx)
	err := b.db.WithContext(ctx).Model(m).
		Select("name", "merchant_name", "amount", "category", "subcategory", "confidence",
			"duplicate_key", "location", "raw_data", "flags", "updated_at").
		Updates(m).Error
	if err != nil {
		return fmt.Errorf("Update: %w", err)
	}
	return nil
}

// Scan reads every stored transaction.
func (b *Backend) Scan(ctx context.Context) ([]*domain.Transaction, error) {
	var rows []transactionModel
	if err := b.db.WithContext(ctx).Order("transaction_date DESC, created_at DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("Scan: %w", err)
	}
	out := make([]*domain.Transaction, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out, nil
}

// HasDuplicateKey reports whether any row carries the fingerprint.
func (b *Backend) HasDuplicateKey(ctx context.Context, key string) (bool, error) {
	var n int64
	err := b.db.WithContext(ctx).Model(&transactionModel{}).Where("duplicate_key = ?", key).Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("HasDuplicateKey: %w", err)
	}
	return n > 0, nil
}

// DeleteByUploadID deletes every row of an upload.
func (b *Backend) DeleteByUploadID(ctx context.Context, uploadID string) (int, error) {
	res := b.db.WithContext(ctx).Where("upload_id = ?", uploadID).Delete(&transactionModel{})
	if res.Error != nil {
		return 0, fmt.Errorf("DeleteByUploadID: %w", res.Error)
	}
	return int(res.RowsAffected), nil
}

// Delete deletes one row by id.
func (b *Backend) Delete(ctx context.Context, id string) error {
	if err := b.db.WithContext(ctx).Delete(&transactionModel{}, "transaction_id = ?", id).Error; err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	return nil
}

// GetCursor returns the stored cursor, or "" when none exists.
func (b *Backend) GetCursor(ctx context.Context, name string) (string, error) {
	var c cursorModel
	err := b.db.WithContext(ctx).First(&c, "name = ?", name).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("GetCursor: %w", err)
	}
	return c.CursorValue, nil
}

// PutCursor upserts a cursor.
func (b *Backend) PutCursor(ctx context.Context, name, cursor string) error {
	err := b.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"cursor_value", "updated_at"}),
	}).Create(&cursorModel{Name: name, CursorValue: cursor, UpdatedAt: time.Now().UTC()}).Error
	if err != nil {
		return fmt.Errorf("PutCursor: %w", err)
	}
	return nil
}

var _ store.Backend = (*Backend)(nil)
