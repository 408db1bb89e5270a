package bigquery

import (
	"fmt"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/finance-ingest/internal/domain"
	"github.com/dvloznov/finance-ingest/internal/infra"
)

// TransactionRow mirrors the transactions table.
type TransactionRow struct {
	TransactionID   string     `bigquery:"transaction_id"`   // REQUIRED
	TransactionDate civil.Date `bigquery:"transaction_date"` // REQUIRED

	Name         string `bigquery:"name"`
	MerchantName string `bigquery:"merchant_name"`

	Amount   *big.Rat `bigquery:"amount"` // REQUIRED NUMERIC
	Currency string   `bigquery:"currency"`

	AccountID   string   `bigquery:"account_id"`
	Category    []string `bigquery:"category"`    // REPEATED
	Subcategory []string `bigquery:"subcategory"` // REPEATED
	Confidence  float64  `bigquery:"confidence"`
	Source      string   `bigquery:"source"`

	UploadID       string `bigquery:"upload_id"`
	UploadFilename string `bigquery:"upload_filename"`
	DuplicateKey   string `bigquery:"duplicate_key"`
	ParentID       string `bigquery:"parent_transaction_id"`

	// JSON text columns.
	Location string `bigquery:"location"`
	RawData  string `bigquery:"raw_data"`
	Flags    string `bigquery:"flags"`

	CreatedTS time.Time              `bigquery:"created_ts"`
	UpdatedTS bigquery.NullTimestamp `bigquery:"updated_ts"`
}

// toRow converts a domain transaction into a table row.
func toRow(tx *domain.Transaction) (*TransactionRow, error) {
	cols, err := infra.EncodeJSONColumns(tx)
	if err != nil {
		return nil, fmt.Errorf("toRow: %w", err)
	}
	row := &TransactionRow{
		TransactionID:   tx.ID,
		TransactionDate: tx.Date,
		Name:            tx.Name,
		MerchantName:    tx.MerchantName,
		Amount:          tx.Amount.Rat(),
		Currency:        tx.ISOCurrencyCode,
		AccountID:       tx.AccountID,
		Category:        nonNil(tx.Category),
		Subcategory:     nonNil(tx.Subcategory),
		Confidence:      tx.Confidence,
		Source:          tx.Source,
		UploadID:        tx.UploadID,
		UploadFilename:  tx.UploadFilename,
		DuplicateKey:    tx.DuplicateKey,
		ParentID:        tx.ParentID,
		Location:        cols.Location,
		RawData:         cols.RawData,
		Flags:           cols.Flags,
		CreatedTS:       tx.CreatedAt,
	}
	if tx.UpdatedAt != nil {
		row.UpdatedTS = bigquery.NullTimestamp{Timestamp: *tx.UpdatedAt, Valid: true}
	}
	return row, nil
}

// toDomain converts a table row back into a domain transaction.
func (r *TransactionRow) toDomain() (*domain.Transaction, error) {
	tx := &domain.Transaction{
		ID:              r.TransactionID,
		Date:            r.TransactionDate,
		Name:            r.Name,
		MerchantName:    r.MerchantName,
		ISOCurrencyCode: r.Currency,
		AccountID:       r.AccountID,
		Category:        r.Category,
		Subcategory:     r.Subcategory,
		Confidence:      r.Confidence,
		Source:          r.Source,
		UploadID:        r.UploadID,
		UploadFilename:  r.UploadFilename,
		DuplicateKey:    r.DuplicateKey,
		ParentID:        r.ParentID,
		CreatedAt:       r.CreatedTS,
	}
	if r.Amount != nil {
		// NUMERIC has a scale of 9.
		amount, err := decimal.NewFromString(r.Amount.FloatString(9))
		if err != nil {
			return nil, fmt.Errorf("toDomain %s: amount: %w", r.TransactionID, err)
		}
		tx.Amount = amount
	}
	if r.UpdatedTS.Valid {
		u := r.UpdatedTS.Timestamp
		tx.UpdatedAt = &u
	}
	err := infra.DecodeJSONColumns(infra.JSONColumns{
		Location: r.Location,
		RawData:  r.RawData,
		Flags:    r.Flags,
	}, tx)
	if err != nil {
		return nil, fmt.Errorf("toDomain %s: %w", r.TransactionID, err)
	}
	return tx, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
