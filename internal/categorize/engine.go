// Package categorize assigns categories to transactions from a keyword and
// merchant rule table.
package categorize

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dvloznov/finance-ingest/internal/domain"
	"github.com/shopspring/decimal"
)

// Flag types raised by Flags.
const (
	FlagLargeAmount        = "large_amount"
	FlagLargeTransaction   = "large_transaction"
	FlagDetailedReceipt    = "detailed_receipt"
	FlagPotentialDuplicate = "potential_duplicate"
)

// Suggestion types returned by Suggest.
const (
	SuggestNew    = "new_categorization"
	SuggestChange = "category_change"
)

// Result is the outcome of categorizing one transaction.
type Result struct {
	Category    string
	Subcategory string
	Confidence  float64
}

// Suggestion proposes a category for a human to confirm.
type Suggestion struct {
	Type       string  `json:"type"`
	Message    string  `json:"message"`
	Confidence float64 `json:"confidence"`
}

// Engine categorizes transactions. It is safe for concurrent use; the table
// is never modified after construction.
type Engine struct {
	table *Table
}

// NewEngine creates an engine over t.
func NewEngine(t *Table) *Engine {
	return &Engine{table: t}
}

// Default returns an engine over the embedded rule table.
func Default() *Engine {
	return NewEngine(DefaultTable())
}

// Table returns the rule table in use.
func (e *Engine) Table() *Table {
	return e.table
}

// Categorize classifies a transaction by merchant, name and amount. Positive
// amounts are always Income. Otherwise the best keyword match wins, then the
// amount fallbacks, then the default label.
func (e *Engine) Categorize(merchant, name string, amount decimal.Decimal) Result {
	if amount.IsPositive() {
		return e.income(amount)
	}

	source := merchant
	if source == "" {
		source = name
	}
	text := strings.ToLower(e.NormalizeMerchant(source) + " " + name)

	best := Result{Category: e.table.Default.Category, Subcategory: e.table.Default.Subcategory}
	for _, rule := range e.table.Rules {
		for _, kw := range rule.Keywords {
			if kw == "" || !strings.Contains(text, kw) {
				continue
			}
			conf := Confidence(kw, text)
			if conf > best.Confidence {
				best = Result{
					Category:    rule.Category,
					Subcategory: subcategoryFor(kw, rule.Subcategories),
					Confidence:  conf,
				}
			}
		}
	}

	if best.Confidence == 0 {
		if r, ok := matchAmount(e.table.AmountFallbacks, amount); ok {
			return Result{Category: r.Category, Subcategory: r.Subcategory, Confidence: r.Confidence}
		}
	}
	return best
}

func (e *Engine) income(amount decimal.Decimal) Result {
	inc := e.table.Income
	res := Result{Category: inc.Category, Subcategory: inc.Subcategory, Confidence: inc.Confidence}
	if tier, ok := matchAmount(inc.Tiers, amount); ok {
		res.Subcategory = tier.Subcategory
	}
	return res
}

// Confidence scores keyword against text: the keyword's share of the text
// times ten, plus 0.3 when text starts with it and 0.2 when it ends at a word
// boundary, capped at 1.
func Confidence(keyword, text string) float64 {
	textLen := utf8.RuneCountInString(text)
	if textLen == 0 || keyword == "" {
		return 0
	}
	conf := min(float64(utf8.RuneCountInString(keyword))/float64(textLen)*10, 1)
	if strings.HasPrefix(text, keyword) {
		conf += 0.3
	}
	if endsAtBoundary(keyword, text) {
		conf += 0.2
	}
	return min(conf, 1)
}

// endsAtBoundary reports whether some occurrence of keyword in text is
// followed by a non-alphanumeric rune or the end of text.
func endsAtBoundary(keyword, text string) bool {
	for offset := 0; offset <= len(text); {
		i := strings.Index(text[offset:], keyword)
		if i < 0 {
			return false
		}
		end := offset + i + len(keyword)
		if end == len(text) {
			return true
		}
		r, _ := utf8.DecodeRuneInString(text[end:])
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return true
		}
		offset += i + 1
	}
	return false
}

func subcategoryFor(keyword string, subs []SubcategoryRule) string {
	for _, s := range subs {
		for _, kw := range s.Keywords {
			if kw == keyword {
				return s.Name
			}
		}
	}
	return "General"
}

func matchAmount(rules []AmountRule, amount decimal.Decimal) (AmountRule, bool) {
	abs := amount.Abs()
	for _, r := range rules {
		if r.Above != nil && abs.GreaterThan(decimal.NewFromFloat(*r.Above)) {
			return r, true
		}
		if r.Below != nil && abs.LessThan(decimal.NewFromFloat(*r.Below)) {
			return r, true
		}
	}
	return AmountRule{}, false
}

// NormalizeMerchant maps a raw descriptor to a known merchant name, or title
// cases it when no mapping matches.
func (e *Engine) NormalizeMerchant(name string) string {
	upper := strings.ToUpper(strings.TrimSpace(name))
	for _, m := range e.table.Merchants {
		if m.Pattern != "" && strings.Contains(upper, m.Pattern) {
			return m.Name
		}
	}
	return titleCase(name)
}

func titleCase(s string) string {
	words := strings.Split(s, " ")
	for i, w := range words {
		if w == "" {
			continue
		}
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + strings.ToLower(w[size:])
	}
	return strings.Join(words, " ")
}

// Apply categorizes tx in place and returns the result along with any
// suggestions relative to the category tx carried before.
func (e *Engine) Apply(tx *domain.Transaction) (Result, []Suggestion) {
	res := e.Categorize(tx.MerchantName, tx.Name, tx.Amount)
	suggestions := e.Suggest(tx.PrimaryCategory(), res)

	tx.Category = []string{res.Category}
	tx.Subcategory = []string{res.Subcategory}
	tx.Confidence = res.Confidence
	return res, suggestions
}

// Suggest compares a transaction's current primary category with res.
func (e *Engine) Suggest(current string, res Result) []Suggestion {
	switch {
	case current == "" || current == e.table.Default.Category:
		return []Suggestion{{
			Type:       SuggestNew,
			Message:    fmt.Sprintf("Suggested category: %s > %s", res.Category, res.Subcategory),
			Confidence: res.Confidence,
		}}
	case current != res.Category:
		return []Suggestion{{
			Type:       SuggestChange,
			Message:    fmt.Sprintf("Consider changing from \"%s\" to \"%s\"", current, res.Category),
			Confidence: res.Confidence,
		}}
	}
	return nil
}

// CategorizeReceipt classifies an OCR receipt by vendor name, first match wins.
func (e *Engine) CategorizeReceipt(vendor string) Label {
	v := strings.ToLower(vendor)
	if strings.TrimSpace(v) != "" {
		for _, r := range e.table.ReceiptVendors {
			for _, kw := range r.Keywords {
				if kw != "" && strings.Contains(v, kw) {
					return Label{Category: r.Category, Subcategory: r.Subcategory}
				}
			}
		}
	}
	return e.table.Default
}

// CategorizeLineItem picks the category for one receipt line. Taxes and
// discounts get their own categories; everything else inherits the parent.
func (e *Engine) CategorizeLineItem(description, parentCategory string) string {
	d := strings.ToLower(description)
	for _, r := range e.table.LineItems.Rules {
		for _, kw := range r.Keywords {
			if kw != "" && strings.Contains(d, kw) {
				return r.Category
			}
		}
	}
	if parentCategory != "" {
		return parentCategory
	}
	return e.table.LineItems.DefaultCategory
}

// Flags returns the business-rule flags for tx. lineItems is the number of
// OCR line items when tx is a receipt.
func (e *Engine) Flags(tx *domain.Transaction, lineItems int) []domain.Flag {
	rules := e.table.Flags
	abs := tx.Amount.Abs()

	var flags []domain.Flag
	if rules.LargeAmount.Above > 0 && abs.GreaterThan(decimal.NewFromFloat(rules.LargeAmount.Above)) {
		flags = append(flags, domain.Flag{Type: FlagLargeAmount, Message: rules.LargeAmount.Message})
	}
	if rules.LargeTransaction.Above > 0 && abs.GreaterThan(decimal.NewFromFloat(rules.LargeTransaction.Above)) {
		flags = append(flags, domain.Flag{Type: FlagLargeTransaction, Message: rules.LargeTransaction.Message})
	}
	if tx.Source == domain.SourceReceiptOCR && rules.DetailedReceipt.LineItems > 0 && lineItems > rules.DetailedReceipt.LineItems {
		flags = append(flags, domain.Flag{Type: FlagDetailedReceipt, Message: rules.DetailedReceipt.Message})
	}
	return flags
}
