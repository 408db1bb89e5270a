package notionsync

import (
	"time"

	"github.com/jomei/notionapi"

	"github.com/dvloznov/finance-ingest/internal/domain"
)

// Property names of the transactions database.
const (
	PropName          = "Name"
	PropTransactionID = "Transaction ID"
	PropDate          = "Date"
	PropAmount        = "Amount"
	PropCurrency      = "Currency"
	PropCategory      = "Category"
	PropSubcategory   = "Subcategory"
	PropMerchant      = "Merchant"
	PropSource        = "Source"
	PropUploadID      = "Upload ID"
)

// TransactionToNotionProperties maps a transaction onto the database
// columns. Empty optional values are left out.
func TransactionToNotionProperties(tx *domain.Transaction) notionapi.Properties {
	date := notionapi.Date(tx.Date.In(time.UTC))
	currency := tx.ISOCurrencyCode
	if currency == "" {
		currency = domain.DefaultCurrency
	}

	props := notionapi.Properties{
		PropName: notionapi.TitleProperty{
			Title: richText(tx.Name),
		},
		PropTransactionID: notionapi.RichTextProperty{
			RichText: richText(tx.ID),
		},
		PropDate: notionapi.DateProperty{
			Date: &notionapi.DateObject{Start: &date},
		},
		PropAmount: notionapi.NumberProperty{
			Number: tx.Amount.InexactFloat64(),
		},
		PropCurrency: notionapi.SelectProperty{
			Select: notionapi.Option{Name: currency},
		},
	}

	if c := tx.PrimaryCategory(); c != "" {
		props[PropCategory] = notionapi.SelectProperty{Select: notionapi.Option{Name: c}}
	}
	if s := tx.PrimarySubcategory(); s != "" {
		props[PropSubcategory] = notionapi.SelectProperty{Select: notionapi.Option{Name: s}}
	}
	if tx.MerchantName != "" {
		props[PropMerchant] = notionapi.RichTextProperty{RichText: richText(tx.MerchantName)}
	}
	if tx.Source != "" {
		props[PropSource] = notionapi.SelectProperty{Select: notionapi.Option{Name: tx.Source}}
	}
	if tx.UploadID != "" {
		props[PropUploadID] = notionapi.RichTextProperty{RichText: richText(tx.UploadID)}
	}
	return props
}

func richText(s string) []notionapi.RichText {
	return []notionapi.RichText{
		{
			Type: notionapi.ObjectTypeText,
			Text: &notionapi.Text{Content: s},
		},
	}
}

// extractTransactionID reads the Transaction ID of a queried page, or "".
func extractTransactionID(page notionapi.Page) string {
	prop, ok := page.Properties[PropTransactionID]
	if !ok {
		return ""
	}
	var parts []notionapi.RichText
	switch p := prop.(type) {
	case *notionapi.RichTextProperty:
		parts = p.RichText
	case notionapi.RichTextProperty:
		parts = p.RichText
	}
	if len(parts) == 0 {
		return ""
	}
	if parts[0].PlainText != "" {
		return parts[0].PlainText
	}
	if parts[0].Text != nil {
		return parts[0].Text.Content
	}
	return ""
}

// pageIsCurrent reports whether page already shows the amount and category
// of tx.
func pageIsCurrent(page notionapi.Page, tx *domain.Transaction) bool {
	amount, ok := numberValue(page.Properties[PropAmount])
	if !ok || amount != tx.Amount.InexactFloat64() {
		return false
	}
	return selectValue(page.Properties[PropCategory]) == tx.PrimaryCategory()
}

func numberValue(p notionapi.Property) (float64, bool) {
	switch v := p.(type) {
	case *notionapi.NumberProperty:
		return v.Number, true
	case notionapi.NumberProperty:
		return v.Number, true
	}
	return 0, false
}

func selectValue(p notionapi.Property) string {
	switch v := p.(type) {
	case *notionapi.SelectProperty:
		return v.Select.Name
	case notionapi.SelectProperty:
		return v.Select.Name
	}
	return ""
}
