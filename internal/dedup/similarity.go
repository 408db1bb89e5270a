package dedup

import (
	"github.com/dvloznov/finance-ingest/internal/domain"
	"github.com/shopspring/decimal"
)

// NearDuplicateDays is how far apart two dates may be for a near duplicate.
const NearDuplicateDays = 3

const nearDuplicateSimilarity = 0.8

var amountTolerance = decimal.New(1, -2)

// Levenshtein returns the edit distance between a and b, counted in runes.
func Levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			if ra[i-1] == rb[j-1] {
				curr[j] = prev[j-1]
				continue
			}
			curr[j] = 1 + min(prev[j-1], prev[j], curr[j-1])
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

// Similarity scores two strings from 0 to 1. Two empty strings are identical.
func Similarity(a, b string) float64 {
	longer := max(len([]rune(a)), len([]rune(b)))
	if longer == 0 {
		return 1.0
	}
	return float64(longer-Levenshtein(a, b)) / float64(longer)
}

// IsNearDuplicate reports whether b looks like the same purchase as a: within
// three days, the same amount to the cent, and the same merchant or a close
// name. It never matches a transaction against itself.
func IsNearDuplicate(a, b *domain.Transaction) bool {
	if a.ID != "" && a.ID == b.ID {
		return false
	}
	days := a.Date.DaysSince(b.Date)
	if days < -NearDuplicateDays || days > NearDuplicateDays {
		return false
	}
	if a.Amount.Sub(b.Amount).Abs().GreaterThanOrEqual(amountTolerance) {
		return false
	}
	return a.MerchantName == b.MerchantName || Similarity(a.Name, b.Name) > nearDuplicateSimilarity
}

// FindNearDuplicates returns the candidates that look like tx.
func FindNearDuplicates(tx *domain.Transaction, candidates []*domain.Transaction) []*domain.Transaction {
	var out []*domain.Transaction
	for _, c := range candidates {
		if IsNearDuplicate(tx, c) {
			out = append(out, c)
		}
	}
	return out
}
