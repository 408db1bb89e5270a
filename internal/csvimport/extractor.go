package csvimport

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dvloznov/finance-ingest/internal/domain"
	"github.com/shopspring/decimal"
)

// ErrTooFewLines is returned for a CSV without a header and at least one data row.
var ErrTooFewLines = errors.New("CSV must have at least a header and one data row")

// Bank type tags.
const (
	BankAmex    = "amex"
	BankTruist  = "truist"
	BankGeneric = "generic"
)

// Row skip reasons.
const (
	ReasonTooFewFields = "too few fields"
	ReasonInvalidDate  = "invalid date"
	ReasonNoDesc       = "empty description"
	ReasonZeroAmount   = "zero amount"
)

// Document is a tokenized CSV upload ready for extraction.
type Document struct {
	Headers  []string
	Lines    []string
	UploadID string
	FileName string
	// Now stamps ids and created_at; time.Now when nil.
	Now func() time.Time
}

// NewDocument splits content into a header row and data lines.
func NewDocument(content, uploadID, fileName string) (*Document, error) {
	lines := SplitLines(content)
	if len(lines) < 2 {
		return nil, ErrTooFewLines
	}
	return &Document{
		Headers:  ParseLine(lines[0]),
		Lines:    lines[1:],
		UploadID: uploadID,
		FileName: fileName,
	}, nil
}

func (d *Document) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// RowError records a data line that was skipped. Line is 1-based and counts
// the header.
type RowError struct {
	Line   int
	Reason string
}

func (e RowError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
}

// Result is the output of one extraction.
type Result struct {
	Candidates []domain.Transaction
	Skipped    []RowError
}

// Extractor turns a tokenized bank export into transaction candidates.
type Extractor interface {
	Bank() string
	Extract(doc *Document) (*Result, error)
}

// Registry selects an extractor by bank tag.
type Registry struct {
	mu         sync.RWMutex
	extractors map[string]Extractor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{extractors: make(map[string]Extractor)}
}

// DefaultRegistry returns a registry with the amex, truist and generic extractors.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(AmexExtractor{})
	r.Register(TruistExtractor{})
	r.Register(GenericExtractor{})
	return r
}

// Register adds or replaces the extractor for e.Bank().
func (r *Registry) Register(e Extractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.extractors[strings.ToLower(e.Bank())] = e
}

// Lookup returns the extractor for bank, falling back to generic for unknown tags.
func (r *Registry) Lookup(bank string) Extractor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.extractors[strings.ToLower(strings.TrimSpace(bank))]; ok {
		return e
	}
	if e, ok := r.extractors[BankGeneric]; ok {
		return e
	}
	return GenericExtractor{}
}

// Banks lists the registered tags.
func (r *Registry) Banks() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	banks := make([]string, 0, len(r.extractors))
	for b := range r.extractors {
		banks = append(banks, b)
	}
	return banks
}

// rowFunc extracts one candidate from a tokenized row. A non-empty reason
// skips the row.
type rowFunc func(values []string) (*domain.Transaction, string)

// extractRows drives the per-row loop shared by every extractor: tokenize,
// check field count, extract, then validate.
func extractRows(doc *Document, minFields int, fn rowFunc) *Result {
	res := &Result{}
	for i, line := range doc.Lines {
		lineNo := i + 2
		values := ParseLine(line)
		if len(values) < minFields {
			res.Skipped = append(res.Skipped, RowError{Line: lineNo, Reason: ReasonTooFewFields})
			continue
		}
		tx, reason := fn(values)
		if reason == "" {
			reason = validateCandidate(tx)
		}
		if reason != "" {
			res.Skipped = append(res.Skipped, RowError{Line: lineNo, Reason: reason})
			continue
		}
		res.Candidates = append(res.Candidates, *tx)
	}
	return res
}

func validateCandidate(tx *domain.Transaction) string {
	switch {
	case !tx.Date.IsValid():
		return ReasonInvalidDate
	case strings.TrimSpace(tx.Name) == "":
		return ReasonNoDesc
	case tx.Amount.IsZero():
		return ReasonZeroAmount
	}
	return ""
}

// newCandidate fills the fields common to every CSV-sourced transaction.
// It returns a skip reason when the date does not parse.
func newCandidate(bank string, doc *Document, rawDate, name string, amount decimal.Decimal) (*domain.Transaction, string) {
	date, ok := ParseDate(rawDate)
	if !ok {
		return nil, ReasonInvalidDate
	}
	now := doc.now()
	return &domain.Transaction{
		ID:              domain.NewID(bank, now),
		Date:            date,
		Name:            strings.TrimSpace(name),
		MerchantName:    strings.TrimSpace(name),
		Amount:          amount,
		Category:        []string{"General"},
		Subcategory:     []string{"Manual Upload"},
		ISOCurrencyCode: domain.DefaultCurrency,
		Source:          domain.SourceCSVPrefix + bank,
		UploadID:        doc.UploadID,
		UploadFilename:  doc.FileName,
		CreatedAt:       now.UTC(),
	}, ""
}
