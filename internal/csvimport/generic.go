package csvimport

import (
	"github.com/dvloznov/finance-ingest/internal/domain"
)

// GenericExtractor resolves columns from the header names of any bank export.
type GenericExtractor struct{}

func (GenericExtractor) Bank() string { return BankGeneric }

func (GenericExtractor) Extract(doc *Document) (*Result, error) {
	cols, err := Resolve(doc.Headers, GenericTerms)
	if err != nil {
		return nil, err
	}
	return extractRows(doc, max(cols.Date, cols.Description)+1, func(values []string) (*domain.Transaction, string) {
		tx, reason := newCandidate(BankGeneric, doc, values[cols.Date], values[cols.Description], amountFromColumns(values, cols))
		if reason != "" {
			return nil, reason
		}
		tx.AccountID = "manual_upload"
		tx.RawData = map[string]any{
			"csv_line": values,
			"headers":  doc.Headers,
		}
		return tx, ""
	}), nil
}
