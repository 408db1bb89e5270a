package csvimport

import (
	"strings"

	"github.com/shopspring/decimal"
)

var amountStripper = strings.NewReplacer("$", "", ",", "", " ", "", "\t", "")

// ParseAmount parses a bank amount string such as "1,234.56", "$25.00",
// "-4.50" or "($133.08)". Parenthesized values are negative.
func ParseAmount(s string) (decimal.Decimal, bool) {
	s = amountStripper.Replace(strings.TrimSpace(s))
	if s == "" {
		return decimal.Zero, false
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSuffix(strings.TrimPrefix(s, "("), ")")
	}

	s = strings.TrimPrefix(s, "+")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	if negative {
		d = d.Abs().Neg()
	}
	return d, true
}

// amountFromColumns applies the dynamic-layout amount rules: a populated
// amount column wins, otherwise a nonzero credit is money in and a nonzero
// debit is money out. Credit wins when both are set.
func amountFromColumns(values []string, cols Columns) decimal.Decimal {
	if v := field(values, cols.Amount); v != "" {
		if d, ok := ParseAmount(v); ok {
			return d
		}
		return decimal.Zero
	}

	credit, _ := ParseAmount(field(values, cols.Credit))
	debit, _ := ParseAmount(field(values, cols.Debit))
	switch {
	case !credit.IsZero():
		return credit.Abs()
	case !debit.IsZero():
		return debit.Abs().Neg()
	default:
		return decimal.Zero
	}
}

// field returns values[i], or "" when i is unresolved or out of range.
func field(values []string, i int) string {
	if i < 0 || i >= len(values) {
		return ""
	}
	return values[i]
}
