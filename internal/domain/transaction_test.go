package domain

import (
	"regexp"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

func TestTransaction_Validate(t *testing.T) {
	valid := Transaction{
		ID:     "csv_1",
		Date:   civil.Date{Year: 2025, Month: time.June, Day: 1},
		Amount: decimal.RequireFromString("-4.50"),
	}

	tests := []struct {
		name    string
		mutate  func(tx *Transaction)
		wantErr bool
	}{
		{name: "valid", mutate: func(tx *Transaction) {}, wantErr: false},
		{name: "missing id", mutate: func(tx *Transaction) { tx.ID = " " }, wantErr: true},
		{name: "zero date", mutate: func(tx *Transaction) { tx.Date = civil.Date{} }, wantErr: true},
		{name: "zero amount", mutate: func(tx *Transaction) { tx.Amount = decimal.Zero }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := valid
			tt.mutate(&tx)
			err := tx.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTransaction_CloneIsDeep(t *testing.T) {
	orig := &Transaction{
		ID:       "a",
		Category: []string{"Shopping"},
		Location: &Location{City: "Austin"},
		RawData:  map[string]any{"k": "v"},
	}

	c := orig.Clone()
	c.Category[0] = "Other"
	c.Location.City = "Dallas"
	c.RawData["k"] = "changed"

	if orig.Category[0] != "Shopping" {
		t.Errorf("category shared with clone")
	}
	if orig.Location.City != "Austin" {
		t.Errorf("location shared with clone")
	}
	if orig.RawData["k"] != "v" {
		t.Errorf("raw data shared with clone")
	}
}

func TestNewID(t *testing.T) {
	now := time.UnixMilli(1750000000000)
	id := NewID("amex", now)

	if !regexp.MustCompile(`^amex_1750000000000_[0-9a-f]{9}$`).MatchString(id) {
		t.Errorf("unexpected id format: %s", id)
	}
	if NewID("amex", now) == id {
		t.Errorf("expected distinct ids for the same timestamp")
	}
}
