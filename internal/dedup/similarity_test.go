package dedup

import (
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-ingest/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestLevenshtein(t *testing.T) {
	assert.Equal(t, 0, Levenshtein("", ""))
	assert.Equal(t, 3, Levenshtein("", "abc"))
	assert.Equal(t, 3, Levenshtein("kitten", "sitting"))
	assert.Equal(t, 1, Levenshtein("café", "cafe"))
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("", ""))
	assert.Equal(t, 1.0, Similarity("target", "target"))
	assert.InDelta(t, 0.8, Similarity("abcde", "abcdx"), 1e-9)
	assert.Equal(t, 0.0, Similarity("abc", ""))
}

func TestIsNearDuplicate(t *testing.T) {
	day := func(d int) civil.Date { return civil.Date{Year: 2025, Month: time.June, Day: d} }
	base := &domain.Transaction{
		ID:           "a",
		Date:         day(10),
		Name:         "STARBUCKS STORE 1234",
		MerchantName: "Starbucks",
		Amount:       decimal.RequireFromString("-4.50"),
	}

	tests := []struct {
		name  string
		other domain.Transaction
		want  bool
	}{
		{"same merchant two days later", domain.Transaction{ID: "b", Date: day(12), Name: "SBUX", MerchantName: "Starbucks", Amount: base.Amount}, true},
		{"similar name", domain.Transaction{ID: "b", Date: day(9), Name: "STARBUCKS STORE 1235", Amount: base.Amount}, true},
		{"too far apart", domain.Transaction{ID: "b", Date: day(14), MerchantName: "Starbucks", Amount: base.Amount}, false},
		{"different amount", domain.Transaction{ID: "b", Date: day(10), MerchantName: "Starbucks", Amount: decimal.RequireFromString("-4.51")}, false},
		{"different merchant and name", domain.Transaction{ID: "b", Date: day(10), Name: "SHELL", MerchantName: "Shell", Amount: base.Amount}, false},
		{"itself", domain.Transaction{ID: "a", Date: day(10), MerchantName: "Starbucks", Amount: base.Amount}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsNearDuplicate(base, &tt.other))
		})
	}

	others := []*domain.Transaction{
		{ID: "x", Date: day(11), MerchantName: "Starbucks", Amount: base.Amount},
		{ID: "y", Date: day(11), MerchantName: "Shell", Name: "SHELL", Amount: base.Amount},
	}
	found := FindNearDuplicates(base, others)
	assert.Len(t, found, 1)
	assert.Equal(t, "x", found[0].ID)
}
