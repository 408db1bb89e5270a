package csvimport

import (
	"github.com/dvloznov/finance-ingest/internal/domain"
)

// Amex export columns: Date, Description, Card Member, Account #, Amount,
// Extended Details, Appears On Your Statement As, Address, City/State,
// Zip Code, Country, Reference, Category.
const (
	amexDate = iota
	amexDescription
	_
	_
	amexAmount
	amexExtended
	amexStatementAs
	amexAddress
	amexCity
	amexZip
	amexCountry
	amexReference
	amexCategory
)

// AmexExtractor reads American Express exports by position. Amex reports
// charges as positive numbers, so every amount is stored as money out.
type AmexExtractor struct{}

func (AmexExtractor) Bank() string { return BankAmex }

func (AmexExtractor) Extract(doc *Document) (*Result, error) {
	return extractRows(doc, 3, func(values []string) (*domain.Transaction, string) {
		amount, _ := ParseAmount(field(values, amexAmount))

		tx, reason := newCandidate(BankAmex, doc, values[amexDate], values[amexDescription], amount.Abs().Neg())
		if reason != "" {
			return nil, reason
		}
		if m := field(values, amexStatementAs); m != "" {
			tx.MerchantName = m
		}
		if c := field(values, amexCategory); c != "" {
			tx.Category = []string{c}
		}
		tx.AccountID = "amex_manual"

		loc := &domain.Location{
			Address:    field(values, amexAddress),
			City:       field(values, amexCity),
			PostalCode: field(values, amexZip),
			Country:    field(values, amexCountry),
		}
		if !loc.IsZero() {
			tx.Location = loc
		}
		tx.RawData = map[string]any{
			"csv_line":         values,
			"extended_details": field(values, amexExtended),
			"reference":        field(values, amexReference),
		}
		return tx, ""
	}), nil
}
