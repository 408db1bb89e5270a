// Package emailreceipt turns forwarded order and receipt emails into
// transactions.
package emailreceipt

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-ingest/internal/csvimport"
	"github.com/dvloznov/finance-ingest/internal/domain"
	"github.com/shopspring/decimal"
)

// ErrNotReceipt is returned for emails that carry no purchase.
var ErrNotReceipt = errors.New("email is not a receipt")

// Message is one inbound email.
type Message struct {
	MessageID string    `json:"messageId"`
	From      string    `json:"from"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	Date      time.Time `json:"date"`
}

var receiptKeywords = []string{"receipt", "order", "purchase", "transaction", "invoice", "confirmation", "payment", "billing"}

var (
	amazonOrderNumber = regexp.MustCompile(`(?i)Order #(\d+-\d+-\d+)`)
	amazonOrderTotal  = regexp.MustCompile(`(?i)Order Total:?\s*\$?([\d,]+\.?\d*)`)
	amazonOrderDate   = regexp.MustCompile(`(?i)Order Date:?\s*([A-Za-z]+ \d{1,2}, \d{4})`)

	amountPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)Total:?\s*\$?([\d,]+\.?\d*)`),
		regexp.MustCompile(`(?i)Amount:?\s*\$?([\d,]+\.?\d*)`),
		regexp.MustCompile(`(?i)Charged:?\s*\$?([\d,]+\.?\d*)`),
		regexp.MustCompile(`\$(\d+\.\d{2})`),
	}
	bodyDate     = regexp.MustCompile(`(\d{1,2}/\d{1,2}/\d{4})|(\d{4}-\d{2}-\d{2})|([A-Za-z]+ \d{1,2}, \d{4})`)
	merchantFrom = regexp.MustCompile(`(?i)\bfrom\s+([A-Za-z][A-Za-z ]*)`)
	merchantAt   = regexp.MustCompile(`(?i)\bat\s+([A-Za-z][A-Za-z ]*)`)
)

// IsAmazonOrder reports whether the message is an Amazon order email.
func IsAmazonOrder(m Message) bool {
	subject := strings.ToLower(m.Subject)
	return strings.Contains(strings.ToLower(m.From), "amazon.com") ||
		strings.Contains(subject, "your order") ||
		strings.Contains(subject, "order confirmation")
}

// IsReceipt reports whether the subject looks like any purchase email.
func IsReceipt(m Message) bool {
	subject := strings.ToLower(m.Subject)
	for _, kw := range receiptKeywords {
		if strings.Contains(subject, kw) {
			return true
		}
	}
	return false
}

// Parse builds a transaction from an Amazon order or a generic receipt
// email. The amount is always money out. Emails without a date in the body
// are dated by the message itself.
func Parse(m Message) (*domain.Transaction, error) {
	if strings.TrimSpace(m.MessageID) == "" {
		return nil, fmt.Errorf("Parse: message id is required")
	}
	if m.Date.IsZero() {
		m.Date = time.Now()
	}

	switch {
	case IsAmazonOrder(m):
		return parseAmazon(m)
	case IsReceipt(m):
		return parseGeneric(m)
	}
	return nil, ErrNotReceipt
}

func parseAmazon(m Message) (*domain.Transaction, error) {
	total, ok := firstAmount(m.Body, amazonOrderTotal, amountPatterns[0])
	if !ok {
		return nil, fmt.Errorf("%w: no order total", ErrNotReceipt)
	}

	orderNumber := "Unknown"
	if match := amazonOrderNumber.FindStringSubmatch(m.Body); match != nil {
		orderNumber = match[1]
	} else if match := amazonOrderNumber.FindStringSubmatch(m.Subject); match != nil {
		orderNumber = match[1]
	}

	date := civil.DateOf(m.Date)
	if match := amazonOrderDate.FindStringSubmatch(m.Body); match != nil {
		if d, ok := csvimport.ParseDate(match[1]); ok {
			date = d
		}
	}

	return &domain.Transaction{
		ID:              "amazon_" + m.MessageID,
		Date:            date,
		Name:            "Amazon Order - " + orderNumber,
		MerchantName:    "Amazon",
		Amount:          total.Abs().Neg(),
		AccountID:       "amazon_orders",
		Category:        []string{"Shopping"},
		Subcategory:     []string{"Online", "Amazon"},
		ISOCurrencyCode: domain.DefaultCurrency,
		Source:          domain.SourceEmailAmazon,
		Location:        &domain.Location{Country: "US"},
		RawData: map[string]any{
			"message_id":   m.MessageID,
			"subject":      m.Subject,
			"order_number": orderNumber,
		},
		CreatedAt: time.Now().UTC(),
	}, nil
}

func parseGeneric(m Message) (*domain.Transaction, error) {
	amount, ok := firstAmount(m.Body, amountPatterns...)
	if !ok || amount.IsZero() {
		return nil, fmt.Errorf("%w: no amount", ErrNotReceipt)
	}

	date := civil.DateOf(m.Date)
	if match := bodyDate.FindString(m.Body); match != "" {
		if d, ok := csvimport.ParseDate(match); ok {
			date = d
		}
	}

	merchant := MerchantFromSender(m.From)
	if match := merchantFrom.FindStringSubmatch(m.Body); match != nil {
		merchant = strings.TrimSpace(match[1])
	} else if match := merchantAt.FindStringSubmatch(m.Body); match != nil {
		merchant = strings.TrimSpace(match[1])
	}

	name := strings.TrimSpace(m.Subject)
	if name == "" {
		name = merchant
	}

	return &domain.Transaction{
		ID:              "email_" + m.MessageID,
		Date:            date,
		Name:            name,
		MerchantName:    merchant,
		Amount:          amount.Abs().Neg(),
		AccountID:       "email_receipts",
		Category:        []string{"Shopping"},
		Subcategory:     []string{"Email Receipt"},
		ISOCurrencyCode: domain.DefaultCurrency,
		Source:          domain.SourceEmailReceipt,
		Location:        &domain.Location{Country: "US"},
		RawData: map[string]any{
			"message_id": m.MessageID,
			"from":       m.From,
			"subject":    m.Subject,
		},
		CreatedAt: time.Now().UTC(),
	}, nil
}

func firstAmount(body string, patterns ...*regexp.Regexp) (decimal.Decimal, bool) {
	for _, re := range patterns {
		match := re.FindStringSubmatch(body)
		if match == nil {
			continue
		}
		if d, ok := csvimport.ParseAmount(match[1]); ok {
			return d, true
		}
	}
	return decimal.Zero, false
}

// MerchantFromSender derives a merchant name from the sender's domain:
// orders@bluebottle.com becomes "Bluebottle".
func MerchantFromSender(from string) string {
	addr := from
	if i := strings.LastIndex(addr, "<"); i >= 0 {
		addr = strings.TrimSuffix(addr[i+1:], ">")
	}
	at := strings.LastIndex(addr, "@")
	if at < 0 || at == len(addr)-1 {
		return "Unknown"
	}
	label := strings.SplitN(addr[at+1:], ".", 2)[0]
	if label == "" {
		return "Unknown"
	}
	return strings.ToUpper(label[:1]) + label[1:]
}
