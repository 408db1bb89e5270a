package dedup

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestKey_NormalizesAcrossSources(t *testing.T) {
	a := Key("6/1/2025", "POS STARBUCKS #123", decimal.RequireFromString("-4.50"))
	b := Key("2025-06-01", "Starbucks", decimal.RequireFromString("4.5"))

	assert.Equal(t, "2025-06-01_starbucks_4.50", a)
	assert.Equal(t, a, b)
}

func TestKey_InvalidDateKeepsRawText(t *testing.T) {
	assert.Equal(t, "someday_coffee_1.00", Key(" someday ", "Coffee", decimal.NewFromInt(1)))
}

func TestCleanDescription(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  Whole   Foods  ", "whole foods"},
		{"PURCHASE AMAZON MKTP", "amazon mktp"},
		{"payment   to visa", "to visa"},
		{"UBER TRIP *4821", "uber trip"},
		{"SHELL OIL POS", "shell oil"},
		{"TARGET #0042", "target"},
		{"NETFLIX.COM XX1234", "netflix.com"},
		{"POSTMATES", "postmates"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanDescription(tt.in))
		})
	}
}
