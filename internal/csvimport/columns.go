package csvimport

import (
	"fmt"
	"strings"
)

// Semantic column roles.
const (
	RoleDate        = "date"
	RoleDescription = "description"
	RoleAmount      = "amount"
)

// Columns holds resolved header indexes. -1 means not present.
type Columns struct {
	Date        int
	Description int
	Amount      int
	Debit       int
	Credit      int
}

// ColumnTerms lists the header keywords per role, in priority order.
type ColumnTerms struct {
	Date        []string
	Description []string
	Amount      []string
	Debit       []string
	Credit      []string
}

// GenericTerms resolves headers of an unknown bank export.
var GenericTerms = ColumnTerms{
	Date:        []string{"date", "transaction date", "posted date"},
	Description: []string{"description", "merchant", "payee", "transaction"},
	Amount:      []string{"amount", "transaction amount"},
	Debit:       []string{"debit", "withdrawal", "charge"},
	Credit:      []string{"credit", "deposit", "payment"},
}

// TruistTerms resolves Truist exports that don't follow the fixed layout.
var TruistTerms = ColumnTerms{
	Date:        []string{"posted date", "date", "transaction date", "trans date"},
	Description: []string{"description", "memo", "details", "payee"},
	Amount:      []string{"amount", "transaction amount", "trans amount"},
	Debit:       []string{"debit", "withdrawal", "amount debit", "withdrawals"},
	Credit:      []string{"credit", "deposit", "amount credit", "deposits"},
}

// ColumnError is a fatal, file-level failure to find a required column.
type ColumnError struct {
	Role    string
	Headers []string
}

func (e *ColumnError) Error() string {
	available := strings.Join(e.Headers, ", ")
	if e.Role == RoleAmount {
		return "Could not find amount columns (debit/credit or amount). Available headers: " + available
	}
	return fmt.Sprintf("Could not find %s column. Available headers: %s", e.Role, available)
}

// ResolveColumn returns the first header index whose lowercased text
// contains any of terms, or -1.
func ResolveColumn(headers []string, terms []string) int {
	for i, h := range headers {
		h = strings.ToLower(strings.TrimSpace(h))
		for _, term := range terms {
			if strings.Contains(h, term) {
				return i
			}
		}
	}
	return -1
}

// Resolve maps headers to roles. Date and description are required, and at
// least one of amount, debit or credit must be found.
func Resolve(headers []string, terms ColumnTerms) (Columns, error) {
	cols := Columns{
		Date:        ResolveColumn(headers, terms.Date),
		Description: ResolveColumn(headers, terms.Description),
		Amount:      ResolveColumn(headers, terms.Amount),
		Debit:       ResolveColumn(headers, terms.Debit),
		Credit:      ResolveColumn(headers, terms.Credit),
	}

	switch {
	case cols.Date < 0:
		return cols, &ColumnError{Role: RoleDate, Headers: headers}
	case cols.Description < 0:
		return cols, &ColumnError{Role: RoleDescription, Headers: headers}
	case cols.Amount < 0 && cols.Debit < 0 && cols.Credit < 0:
		return cols, &ColumnError{Role: RoleAmount, Headers: headers}
	}
	return cols, nil
}
