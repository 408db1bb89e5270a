package csvimport

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveColumn(t *testing.T) {
	headers := []string{"Posted Date", " Payee ", "Amount"}

	assert.Equal(t, 0, ResolveColumn(headers, []string{"date"}))
	assert.Equal(t, 1, ResolveColumn(headers, []string{"description", "payee"}))
	assert.Equal(t, -1, ResolveColumn(headers, []string{"debit"}))
}

func TestResolve(t *testing.T) {
	cols, err := Resolve([]string{"Date", "Description", "Debit", "Credit"}, GenericTerms)
	require.NoError(t, err)
	assert.Equal(t, Columns{Date: 0, Description: 1, Amount: -1, Debit: 2, Credit: 3}, cols)
}

func TestResolve_Errors(t *testing.T) {
	tests := []struct {
		name     string
		headers  []string
		wantRole string
		wantMsg  string
	}{
		{
			name:     "missing date",
			headers:  []string{"Memo", "Amount"},
			wantRole: RoleDate,
			wantMsg:  "Could not find date column. Available headers: Memo, Amount",
		},
		{
			name:     "missing description",
			headers:  []string{"Date", "Amount"},
			wantRole: RoleDescription,
			wantMsg:  "Could not find description column. Available headers: Date, Amount",
		},
		{
			name:     "missing amount",
			headers:  []string{"Date", "Description", "Balance"},
			wantRole: RoleAmount,
			wantMsg:  "Could not find amount columns (debit/credit or amount). Available headers: Date, Description, Balance",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve(tt.headers, GenericTerms)
			var colErr *ColumnError
			require.True(t, errors.As(err, &colErr))
			assert.Equal(t, tt.wantRole, colErr.Role)
			assert.Equal(t, tt.wantMsg, err.Error())
		})
	}
}
