package receipt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dvloznov/finance-ingest/internal/csvimport"
	"github.com/shopspring/decimal"
)

// Analysis is what the OCR collaborator extracts from one receipt image.
type Analysis struct {
	Summary    Summary    `json:"summary"`
	VendorInfo VendorInfo `json:"vendorInfo"`
	LineItems  []LineItem `json:"lineItems"`
}

// Summary holds the receipt totals.
type Summary struct {
	Total     Money  `json:"total"`
	Subtotal  Money  `json:"subtotal"`
	Tax       Money  `json:"tax"`
	Date      string `json:"date"`
	ReceiptID string `json:"receiptId"`
}

// VendorInfo identifies the merchant printed on the receipt.
type VendorInfo struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
}

// LineItem is one printed line of the receipt.
type LineItem struct {
	Description string `json:"description"`
	Quantity    Money  `json:"quantity"`
	UnitPrice   Money  `json:"unitPrice"`
	TotalPrice  Money  `json:"totalPrice"`
}

// Money is a decimal that unmarshals from a JSON number, a currency string
// such as "$12.99", or null.
type Money struct {
	decimal.Decimal
}

// NewMoney wraps d.
func NewMoney(d decimal.Decimal) Money { return Money{Decimal: d} }

func (m *Money) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		m.Decimal = decimal.Zero
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("Money: %w", err)
		}
		if strings.TrimSpace(s) == "" {
			m.Decimal = decimal.Zero
			return nil
		}
		d, ok := csvimport.ParseAmount(s)
		if !ok {
			return fmt.Errorf("Money: cannot parse %q", s)
		}
		m.Decimal = d
		return nil
	}

	d, err := decimal.NewFromString(string(data))
	if err != nil {
		return fmt.Errorf("Money: %w", err)
	}
	m.Decimal = d
	return nil
}

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.Decimal.String()), nil
}
