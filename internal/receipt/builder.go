// Package receipt turns OCR output for a photographed receipt into a
// transaction and, optionally, one child transaction per line item.
package receipt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-ingest/internal/categorize"
	"github.com/dvloznov/finance-ingest/internal/csvimport"
	"github.com/dvloznov/finance-ingest/internal/domain"
	"github.com/google/uuid"
)

// ErrZeroTotal is returned when the OCR result has no usable total.
var ErrZeroTotal = errors.New("receipt total is zero")

// UnknownVendor names receipts whose vendor could not be read.
const UnknownVendor = "Unknown Vendor"

// BuildOptions carries the context of one receipt upload.
type BuildOptions struct {
	// ImageURI is where the original image was stored.
	ImageURI string
	FileName string
	// CapturedAt dates the receipt when no date could be read from it.
	CapturedAt time.Time
	// ID overrides the generated receipt id.
	ID string
}

// Build creates the receipt transaction and its line-item children. The
// receipt amount is always money out.
func Build(a *Analysis, opts BuildOptions, engine *categorize.Engine) (*domain.Transaction, []domain.Transaction, error) {
	if a == nil {
		return nil, nil, fmt.Errorf("Build: nil analysis")
	}
	total := a.Summary.Total.Decimal
	if total.IsZero() {
		return nil, nil, ErrZeroTotal
	}
	if opts.CapturedAt.IsZero() {
		opts.CapturedAt = time.Now()
	}

	id := opts.ID
	if id == "" {
		id = "receipt_" + uuid.NewString()
	}

	vendor := strings.TrimSpace(a.VendorInfo.Name)
	if vendor == "" {
		vendor = UnknownVendor
	}
	label := engine.CategorizeReceipt(a.VendorInfo.Name)

	date, ok := csvimport.ParseDate(a.Summary.Date)
	if !ok {
		date = civil.DateOf(opts.CapturedAt)
	}

	tx := &domain.Transaction{
		ID:              id,
		Date:            date,
		Name:            vendor + " - Receipt",
		MerchantName:    vendor,
		Amount:          total.Abs().Neg(),
		AccountID:       "physical_receipts",
		Category:        []string{label.Category},
		Subcategory:     []string{label.Subcategory},
		ISOCurrencyCode: domain.DefaultCurrency,
		Source:          domain.SourceReceiptOCR,
		Location: &domain.Location{
			Address: strings.TrimSpace(a.VendorInfo.Address),
			Country: "US",
		},
		RawData: map[string]any{
			"image_uri":  opts.ImageURI,
			"file_name":  opts.FileName,
			"receipt_id": a.Summary.ReceiptID,
			"summary":    a.Summary,
			"vendor":     a.VendorInfo,
			"line_items": a.LineItems,
		},
		CreatedAt: opts.CapturedAt.UTC(),
	}
	tx.Flags = engine.Flags(tx, len(a.LineItems))

	return tx, LineItems(tx, a.LineItems, engine), nil
}

// LineItems materializes every priced line of a receipt as a child
// transaction of parent.
func LineItems(parent *domain.Transaction, items []LineItem, engine *categorize.Engine) []domain.Transaction {
	var out []domain.Transaction
	for i, item := range items {
		if !item.TotalPrice.IsPositive() {
			continue
		}
		name := strings.TrimSpace(item.Description)
		if name == "" {
			name = fmt.Sprintf("Line Item %d", i+1)
		}
		out = append(out, domain.Transaction{
			ID:              fmt.Sprintf("%s_line_%d", parent.ID, i),
			ParentID:        parent.ID,
			Date:            parent.Date,
			Name:            name,
			MerchantName:    parent.MerchantName,
			Amount:          item.TotalPrice.Abs().Neg(),
			AccountID:       parent.AccountID,
			Category:        []string{engine.CategorizeLineItem(item.Description, parent.PrimaryCategory())},
			ISOCurrencyCode: parent.ISOCurrencyCode,
			Source:          domain.SourceReceiptLineItem,
			RawData: map[string]any{
				"line_item_index": i,
				"quantity":        item.Quantity,
				"unit_price":      item.UnitPrice,
				"description":     item.Description,
				"parent_receipt":  parent.RawData["image_uri"],
			},
			CreatedAt: parent.CreatedAt,
		})
	}
	return out
}
