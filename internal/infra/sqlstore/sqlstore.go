// Package sqlstore is the database/sql persistence backend for the
// transaction store, for SQLite files and MySQL servers.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/finance-ingest/internal/domain"
	"github.com/dvloznov/finance-ingest/internal/infra"
	"github.com/dvloznov/finance-ingest/internal/store"
)

const timeLayout = time.RFC3339Nano

// Backend implements store.Backend over database/sql.
type Backend struct {
	db      *sql.DB
	dialect Dialect
}

// Open connects to the database and creates the tables if needed. For SQLite
// dsn is a file path; its directory is created.
func Open(ctx context.Context, d Dialect, dsn string) (*Backend, error) {
	if d.Name == SQLite.Name {
		if dir := filepath.Dir(dsn); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("Open: create db directory: %w", err)
			}
		}
		if !strings.Contains(dsn, "?") {
			dsn += "?_foreign_keys=on&_busy_timeout=5000"
		}
	}

	db, err := sql.Open(d.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("Open: open database: %w", err)
	}
	if d.Name == SQLite.Name {
		// One writer at a time avoids "database is locked" under concurrent saves.
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("Open: ping database: %w", err)
	}

	b := &Backend{db: db, dialect: d}
	if err := b.Init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

// Init creates tables if they don't exist.
func (b *Backend) Init(ctx context.Context) error {
	for _, stmt := range statements(b.dialect.Schema) {
		if _, err := b.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("Init: execute schema: %w", err)
		}
	}
	return nil
}

// Close closes the database.
func (b *Backend) Close() error {
	return b.db.Close()
}

// DB exposes the underlying handle.
func (b *Backend) DB() *sql.DB {
	return b.db
}

const insertColumns = `transaction_id, transaction_date, name, merchant_name, amount, currency,
	account_id, category, subcategory, confidence, source, upload_id, upload_filename,
	duplicate_key, parent_transaction_id, location, raw_data, flags, created_at, updated_at`

// PutIfAbsent inserts tx unless its id exists.
func (b *Backend) PutIfAbsent(ctx context.Context, tx *domain.Transaction) (bool, error) {
	cols, err := infra.EncodeJSONColumns(tx)
	if err != nil {
		return false, fmt.Errorf("PutIfAbsent: %w", err)
	}

	query := fmt.Sprintf(`%s transactions (%s)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) %s`,
		b.dialect.InsertIgnore, insertColumns, b.dialect.OnConflictIgnore)

	res, err := b.db.ExecContext(ctx, query,
		tx.ID, tx.Date.String(), tx.Name, tx.MerchantName, tx.Amount.String(), tx.ISOCurrencyCode,
		tx.AccountID, cols.Category, cols.Subcategory, tx.Confidence, tx.Source, tx.UploadID, tx.UploadFilename,
		tx.DuplicateKey, tx.ParentID, cols.Location, cols.RawData, cols.Flags,
		tx.CreatedAt.UTC().Format(timeLayout), formatOptionalTime(tx.UpdatedAt))
	if err != nil {
		return false, fmt.Errorf("PutIfAbsent: insert transaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("PutIfAbsent: rows affected: %w", err)
	}
	return n > 0, nil
}

// Update overwrites the mutable columns of an existing row.
func (b *Backend) Update(ctx context.Context, tx *domain.Transaction) error {
	cols, err := infra.EncodeJSONColumns(tx)
	if err != nil {
		return fmt.Errorf("Update: %w", err)
	}
	_, err = b.db.ExecContext(ctx, `
		UPDATE transactions
		SET name = ?, merchant_name = ?, amount = ?, category = ?, subcategory = ?, confidence = ?,
			duplicate_key = ?, location = ?, raw_data = ?, flags = ?, updated_at = ?
		WHERE transaction_id = ?
	`, tx.Name, tx.MerchantName, tx.Amount.String(), cols.Category, cols.Subcategory, tx.Confidence,
		tx.DuplicateKey, cols.Location, cols.RawData, cols.Flags, formatOptionalTime(tx.UpdatedAt),
		tx.ID)
	if err != nil {
		return fmt.Errorf("Update: update transaction: %w", err)
	}
	return nil
}

// Scan reads every stored transaction.
func (b *Backend) Scan(ctx context.Context) ([]*domain.Transaction, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT transaction_id, transaction_date, name, merchant_name, amount, currency,
			account_id, category, subcategory, confidence, source, upload_id, upload_filename,
			duplicate_key, parent_transaction_id, location, raw_data, flags, created_at, updated_at
		FROM transactions
		ORDER BY transaction_date DESC, created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("Scan: query transactions: %w", err)
	}
	defer rows.Close()

	var out []*domain.Transaction
	for rows.Next() {
		var (
			tx                   domain.Transaction
			date, amount         string
			createdAt, updatedAt string
			cols                 infra.JSONColumns
		)
		if err := rows.Scan(&tx.ID, &date, &tx.Name, &tx.MerchantName, &amount, &tx.ISOCurrencyCode,
			&tx.AccountID, &cols.Category, &cols.Subcategory, &tx.Confidence, &tx.Source, &tx.UploadID, &tx.UploadFilename,
			&tx.DuplicateKey, &tx.ParentID, &cols.Location, &cols.RawData, &cols.Flags, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("Scan: scan transaction: %w", err)
		}
		if err := decodeRow(&tx, date, amount, createdAt, updatedAt, cols); err != nil {
			return nil, fmt.Errorf("Scan: %s: %w", tx.ID, err)
		}
		out = append(out, &tx)
	}
	return out, rows.Err()
}

func decodeRow(tx *domain.Transaction, date, amount, createdAt, updatedAt string, cols infra.JSONColumns) error {
	var err error
	if tx.Date, err = civil.ParseDate(date); err != nil {
		return fmt.Errorf("date: %w", err)
	}
	if tx.Amount, err = decimal.NewFromString(amount); err != nil {
		return fmt.Errorf("amount: %w", err)
	}
	if tx.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return fmt.Errorf("created_at: %w", err)
	}
	if updatedAt != "" {
		u, err := time.Parse(timeLayout, updatedAt)
		if err != nil {
			return fmt.Errorf("updated_at: %w", err)
		}
		tx.UpdatedAt = &u
	}
	return infra.DecodeJSONColumns(cols, tx)
}

// HasDuplicateKey reports whether any row carries the fingerprint.
func (b *Backend) HasDuplicateKey(ctx context.Context, key string) (bool, error) {
	var one int
	err := b.db.QueryRowContext(ctx, `SELECT 1 FROM transactions WHERE duplicate_key = ? LIMIT 1`, key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("HasDuplicateKey: %w", err)
	}
	return true, nil
}

// DeleteByUploadID deletes every row of an upload.
func (b *Backend) DeleteByUploadID(ctx context.Context, uploadID string) (int, error) {
	res, err := b.db.ExecContext(ctx, `DELETE FROM transactions WHERE upload_id = ?`, uploadID)
	if err != nil {
		return 0, fmt.Errorf("DeleteByUploadID: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("DeleteByUploadID: rows affected: %w", err)
	}
	return int(n), nil
}

// Delete deletes one row by id.
func (b *Backend) Delete(ctx context.Context, id string) error {
	if _, err := b.db.ExecContext(ctx, `DELETE FROM transactions WHERE transaction_id = ?`, id); err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	return nil
}

// GetCursor returns the stored cursor, or "" when none exists.
func (b *Backend) GetCursor(ctx context.Context, name string) (string, error) {
	var cursor string
	err := b.db.QueryRowContext(ctx, `SELECT cursor_value FROM sync_cursors WHERE name = ?`, name).Scan(&cursor)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("GetCursor: %w", err)
	}
	return cursor, nil
}

// PutCursor upserts a cursor.
func (b *Backend) PutCursor(ctx context.Context, name, cursor string) error {
	if _, err := b.db.ExecContext(ctx, b.dialect.UpsertCursor, name, cursor, time.Now().UTC().Format(timeLayout)); err != nil {
		return fmt.Errorf("PutCursor: %w", err)
	}
	return nil
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

var _ store.Backend = (*Backend)(nil)
