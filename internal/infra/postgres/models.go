package postgres

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/finance-ingest/internal/domain"
	"github.com/dvloznov/finance-ingest/internal/infra"
)

// transactionModel is the gorm model of the transactions table. Nested
// fields use gorm's JSON serializer.
type transactionModel struct {
	TransactionID   string           `gorm:"column:transaction_id;primaryKey"`
	TransactionDate time.Time        `gorm:"column:transaction_date;type:date;not null;index"`
	Name            string           `gorm:"column:name"`
	MerchantName    string           `gorm:"column:merchant_name"`
	Amount          decimal.Decimal  `gorm:"column:amount;type:numeric(18,4);not null"`
	Currency        string           `gorm:"column:currency;size:3"`
	AccountID       string           `gorm:"column:account_id"`
	Category        []string         `gorm:"column:category;serializer:json"`
	Subcategory     []string         `gorm:"column:subcategory;serializer:json"`
	Confidence      float64          `gorm:"column:confidence"`
	Source          string           `gorm:"column:source"`
	UploadID        string           `gorm:"column:upload_id;index"`
	UploadFilename  string           `gorm:"column:upload_filename"`
	DuplicateKey    string           `gorm:"column:duplicate_key;index"`
	ParentID        string           `gorm:"column:parent_transaction_id"`
	Location        *domain.Location `gorm:"column:location;serializer:json"`
	RawData         map[string]any   `gorm:"column:raw_data;serializer:json"`
	Flags           []domain.Flag    `gorm:"column:flags;serializer:json"`
	CreatedTS       time.Time        `gorm:"column:created_at;autoCreateTime:false"`
	UpdatedTS       *time.Time       `gorm:"column:updated_at;autoUpdateTime:false"`
}

func (transactionModel) TableName() string { return "transactions" }

// cursorModel stores one named sync cursor.
type cursorModel struct {
	Name        string    `gorm:"column:name;primaryKey"`
	CursorValue string    `gorm:"column:cursor_value"`
	UpdatedAt   time.Time `gorm:"column:updated_at"`
}

func (cursorModel) TableName() string { return infra.CursorsTable }

func toModel(tx *domain.Transaction) *transactionModel {
	return &transactionModel{
		TransactionID:   tx.ID,
		TransactionDate: tx.Date.In(time.UTC),
		Name:            tx.Name,
		MerchantName:    tx.MerchantName,
		Amount:          tx.Amount,
		Currency:        tx.ISOCurrencyCode,
		AccountID:       tx.AccountID,
		Category:        tx.Category,
		Subcategory:     tx.Subcategory,
		Confidence:      tx.Confidence,
		Source:          tx.Source,
		UploadID:        tx.UploadID,
		UploadFilename:  tx.UploadFilename,
		DuplicateKey:    tx.DuplicateKey,
		ParentID:        tx.ParentID,
		Location:        tx.Location,
		RawData:         tx.RawData,
		Flags:           tx.Flags,
		CreatedTS:       tx.CreatedAt,
		UpdatedTS:       tx.UpdatedAt,
	}
}

func (m *transactionModel) toDomain() *domain.Transaction {
	return &domain.Transaction{
		ID:              m.TransactionID,
		Date:            civil.DateOf(m.TransactionDate),
		Name:            m.Name,
		MerchantName:    m.MerchantName,
		Amount:          m.Amount,
		ISOCurrencyCode: m.Currency,
		AccountID:       m.AccountID,
		Category:        m.Category,
		Subcategory:     m.Subcategory,
		Confidence:      m.Confidence,
		Source:          m.Source,
		UploadID:        m.UploadID,
		UploadFilename:  m.UploadFilename,
		DuplicateKey:    m.DuplicateKey,
		ParentID:        m.ParentID,
		Location:        m.Location,
		RawData:         m.RawData,
		Flags:           m.Flags,
		CreatedAt:       m.CreatedTS,
		UpdatedAt:       m.UpdatedTS,
	}
}
