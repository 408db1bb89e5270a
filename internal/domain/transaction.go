package domain

import (
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Source tags identifying the ingestion pathway of a transaction.
const (
	SourceCSVPrefix       = "csv_"
	SourceReceiptOCR      = "receipt_ocr"
	SourceReceiptLineItem = "receipt_line_item"
	SourceBankLink        = "plaid"
	SourceEmailAmazon     = "email_amazon"
	SourceEmailReceipt    = "email_receipt"
)

// DefaultCurrency is used when a source does not report one.
const DefaultCurrency = "USD"

// Transaction is the normalized record every ingestion pathway produces.
// Amount follows the negative = money out convention regardless of source.
type Transaction struct {
	ID              string          `json:"id"`
	Date            civil.Date      `json:"date"`
	Name            string          `json:"name"`
	MerchantName    string          `json:"merchant_name"`
	Amount          decimal.Decimal `json:"amount"`
	AccountID       string          `json:"account_id,omitempty"`
	Category        []string        `json:"category"`
	Subcategory     []string        `json:"subcategory"`
	Confidence      float64         `json:"confidence,omitempty"`
	ISOCurrencyCode string          `json:"iso_currency_code"`
	Source          string          `json:"source"`

	UploadID       string `json:"upload_id,omitempty"`
	UploadFilename string `json:"upload_filename,omitempty"`

	// DuplicateKey is the cross-source fingerprint. Backends persist it but it
	// is never exposed over the API.
	DuplicateKey string `json:"-"`

	ParentID string         `json:"parent_transaction_id,omitempty"`
	Location *Location      `json:"location,omitempty"`
	RawData  map[string]any `json:"raw_data,omitempty"`
	Flags    []Flag         `json:"flags,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// Location is the best-effort place a transaction happened.
type Location struct {
	Address    string `json:"address,omitempty"`
	City       string `json:"city,omitempty"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty"`
}

// IsZero reports whether no location field is set.
func (l *Location) IsZero() bool {
	return l == nil || (l.Address == "" && l.City == "" && l.Region == "" && l.PostalCode == "" && l.Country == "")
}

// Flag is a business-rule annotation attached during enrichment.
type Flag struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// PrimaryCategory returns the first category label or "".
func (t *Transaction) PrimaryCategory() string {
	if len(t.Category) == 0 {
		return ""
	}
	return t.Category[0]
}

// PrimarySubcategory returns the first subcategory label or "".
func (t *Transaction) PrimarySubcategory() string {
	if len(t.Subcategory) == 0 {
		return ""
	}
	return t.Subcategory[0]
}

// HasFlag reports whether a flag of the given type is present.
func (t *Transaction) HasFlag(flagType string) bool {
	for _, f := range t.Flags {
		if f.Type == flagType {
			return true
		}
	}
	return false
}

// Validate checks the invariants every persisted transaction must satisfy.
func (t *Transaction) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("transaction id is required")
	}
	if !t.Date.IsValid() {
		return fmt.Errorf("transaction %s: invalid date", t.ID)
	}
	if t.Amount.IsZero() {
		return fmt.Errorf("transaction %s: zero amount", t.ID)
	}
	return nil
}

// Clone returns a deep copy so callers can't mutate stored state.
func (t *Transaction) Clone() *Transaction {
	c := *t
	c.Category = append([]string(nil), t.Category...)
	c.Subcategory = append([]string(nil), t.Subcategory...)
	c.Flags = append([]Flag(nil), t.Flags...)
	if t.Location != nil {
		loc := *t.Location
		c.Location = &loc
	}
	if t.RawData != nil {
		c.RawData = make(map[string]any, len(t.RawData))
		for k, v := range t.RawData {
			c.RawData[k] = v
		}
	}
	if t.UpdatedAt != nil {
		u := *t.UpdatedAt
		c.UpdatedAt = &u
	}
	return &c
}

// NewID builds a source-prefixed id of the form <prefix>_<unix millis>_<random>.
func NewID(prefix string, now time.Time) string {
	return fmt.Sprintf("%s_%d_%s", prefix, now.UnixMilli(), ShortRandom())
}

// ShortRandom returns nine random lowercase hex characters.
func ShortRandom() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
}
