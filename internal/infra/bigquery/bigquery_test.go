package bigquery

import (
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/finance-ingest/internal/domain"
)

func TestMigrations(t *testing.T) {
	ms, err := Migrations("proj", "finance")
	require.NoError(t, err)
	require.Len(t, ms, 2)

	assert.Equal(t, 1, ms[0].Version)
	assert.Equal(t, "transactions", ms[0].Name)
	assert.Contains(t, ms[0].SQL, "`proj.finance.transactions`")
	assert.False(t, strings.Contains(ms[0].SQL, "{{"))
	assert.Equal(t, "sync_cursors", ms[1].Name)
	assert.Len(t, ms[0].Checksum, 64)

	again, err := Migrations("other", "dataset")
	require.NoError(t, err)
	assert.Equal(t, ms[0].Checksum, again[0].Checksum)
}

func TestMigrationPattern(t *testing.T) {
	tests := []struct {
		filename string
		valid    bool
	}{
		{"0001_init_schema_migrations.sql", true},
		{"001_invalid.sql", false},
		{"0001_test", false},
		{"0001.sql", false},
		{"invalid_0001_test.sql", false},
	}
	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			assert.Equal(t, tt.valid, migrationPattern.MatchString(tt.filename))
		})
	}
}

func TestRowRoundTrip(t *testing.T) {
	updated := time.Date(2025, time.June, 3, 8, 0, 0, 0, time.UTC)
	tx := &domain.Transaction{
		ID:              "plaid_1",
		Date:            civil.Date{Year: 2025, Month: time.June, Day: 1},
		Name:            "Uber 063015",
		MerchantName:    "Uber",
		Amount:          decimal.RequireFromString("-12.34"),
		Category:        []string{"Transportation"},
		ISOCurrencyCode: "USD",
		Source:          domain.SourceBankLink,
		DuplicateKey:    "2025-06-01_uber 063015_12.34",
		Location:        &domain.Location{City: "San Francisco"},
		CreatedAt:       time.Date(2025, time.June, 2, 8, 0, 0, 0, time.UTC),
		UpdatedAt:       &updated,
	}

	row, err := toRow(tx)
	require.NoError(t, err)
	assert.Equal(t, []string{}, row.Subcategory)
	assert.True(t, row.UpdatedTS.Valid)

	got, err := row.toDomain()
	require.NoError(t, err)
	assert.True(t, tx.Amount.Equal(got.Amount), "amount %s", got.Amount)
	assert.Equal(t, tx.Date, got.Date)
	assert.Equal(t, tx.DuplicateKey, got.DuplicateKey)
	assert.Equal(t, tx.Location, got.Location)
	require.NotNil(t, got.UpdatedAt)
	assert.Equal(t, updated, *got.UpdatedAt)
}

func TestTableName(t *testing.T) {
	b := NewBackendWithClient(nil, "proj", "finance")
	assert.Equal(t, "`proj.finance.transactions`", b.table(transactionsTable))
	assert.Equal(t, "`proj.finance.sync_cursors`", b.cursorsTable())
	assert.NoError(t, b.Close())
}
