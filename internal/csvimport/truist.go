package csvimport

import (
	"strings"

	"github.com/dvloznov/finance-ingest/internal/domain"
)

// truistLayout is the header of Truist's standard checking export.
var truistLayout = []string{"account type", "account number", "date", "description", "debit", "credit", "running balance"}

var truistFixed = Columns{Date: 2, Description: 3, Amount: -1, Debit: 4, Credit: 5}

// TruistExtractor reads Truist exports. The standard layout is read by
// position; anything else is resolved from the header names.
type TruistExtractor struct{}

func (TruistExtractor) Bank() string { return BankTruist }

func (TruistExtractor) Extract(doc *Document) (*Result, error) {
	if isTruistLayout(doc.Headers) {
		return extractRows(doc, 4, func(values []string) (*domain.Transaction, string) {
			tx, reason := newCandidate(BankTruist, doc, values[truistFixed.Date], values[truistFixed.Description], amountFromColumns(values, truistFixed))
			if reason != "" {
				return nil, reason
			}
			tx.AccountID = "truist_manual"
			tx.RawData = map[string]any{
				"csv_line":        values,
				"account_type":    field(values, 0),
				"account_number":  field(values, 1),
				"running_balance": field(values, 6),
			}
			return tx, ""
		}), nil
	}

	cols, err := Resolve(doc.Headers, TruistTerms)
	if err != nil {
		return nil, err
	}
	return extractRows(doc, max(cols.Date, cols.Description)+1, func(values []string) (*domain.Transaction, string) {
		tx, reason := newCandidate(BankTruist, doc, values[cols.Date], values[cols.Description], amountFromColumns(values, cols))
		if reason != "" {
			return nil, reason
		}
		tx.AccountID = "truist_manual"
		tx.RawData = map[string]any{
			"csv_line": values,
			"headers":  doc.Headers,
		}
		return tx, ""
	}), nil
}

func isTruistLayout(headers []string) bool {
	if len(headers) < len(truistLayout) {
		return false
	}
	for i, want := range truistLayout {
		if strings.ToLower(strings.TrimSpace(headers[i])) != want {
			return false
		}
	}
	return true
}
