// Package dedup builds the cross-source fingerprint used to suppress
// duplicate transactions, plus a looser similarity check for flagging.
package dedup

import (
	"regexp"
	"strings"

	"github.com/dvloznov/finance-ingest/internal/csvimport"
	"github.com/dvloznov/finance-ingest/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	whitespace   = regexp.MustCompile(`\s+`)
	leadingNoise = regexp.MustCompile(`^(pos|purchase|payment|transfer|deposit|withdrawal)\s+`)
	trailingRef  = regexp.MustCompile(`\s+(pos|#\d+|\*\d+)$`)
	maskedCard   = regexp.MustCompile(`\s+xx\d+$`)
)

// Key returns date_description_amount where the date is YYYY-MM-DD, the
// description is cleaned and the amount is its absolute value with two
// decimals. The sign is ignored so a charge and its aggregator copy match.
func Key(date, description string, amount decimal.Decimal) string {
	d, ok := csvimport.NormalizeDate(date)
	if !ok {
		d = strings.TrimSpace(date)
	}
	return d + "_" + CleanDescription(description) + "_" + amount.Abs().StringFixed(2)
}

// KeyFor fingerprints a transaction by its date, name and amount.
func KeyFor(tx *domain.Transaction) string {
	return Key(tx.Date.String(), tx.Name, tx.Amount)
}

// CleanDescription lowercases, collapses whitespace and strips banking
// boilerplate such as "POS " prefixes, "#123" references and "xx1234" card
// suffixes.
func CleanDescription(s string) string {
	s = whitespace.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), " ")
	s = leadingNoise.ReplaceAllString(s, "")
	s = trailingRef.ReplaceAllString(s, "")
	s = maskedCard.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}
