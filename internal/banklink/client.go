// Package banklink syncs transactions from a bank-linking aggregator using
// its cursor-based transactions/sync protocol.
package banklink

import (
	"context"
)

// Client is the aggregator collaborator. Given the last cursor ("" for a
// first sync) it returns one page of changes.
type Client interface {
	Sync(ctx context.Context, cursor string) (*Page, error)
}

// ClientFunc adapts a function to the Client interface.
type ClientFunc func(ctx context.Context, cursor string) (*Page, error)

func (f ClientFunc) Sync(ctx context.Context, cursor string) (*Page, error) {
	return f(ctx, cursor)
}

// Page is one transactions/sync response.
type Page struct {
	Added      []Transaction `json:"added"`
	Modified   []Transaction `json:"modified"`
	Removed    []Removed     `json:"removed"`
	NextCursor string        `json:"next_cursor"`
	HasMore    bool          `json:"has_more"`
}

// Removed identifies a transaction the aggregator withdrew.
type Removed struct {
	TransactionID string `json:"transaction_id"`
}

// Transaction is the aggregator's wire record. Amount is positive for money
// leaving the account.
type Transaction struct {
	TransactionID   string    `json:"transaction_id"`
	AccountID       string    `json:"account_id"`
	Amount          float64   `json:"amount"`
	ISOCurrencyCode string    `json:"iso_currency_code"`
	Date            string    `json:"date"`
	AuthorizedDate  string    `json:"authorized_date"`
	Name            string    `json:"name"`
	MerchantName    string    `json:"merchant_name"`
	Category        []string  `json:"category"`
	Pending         bool      `json:"pending"`
	PaymentChannel  string    `json:"payment_channel"`
	Location        *Location `json:"location"`
}

// Location is the aggregator's location block.
type Location struct {
	Address    string `json:"address"`
	City       string `json:"city"`
	Region     string `json:"region"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}
