package banklink

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/finance-ingest/internal/domain"
	"github.com/dvloznov/finance-ingest/internal/logger"
	"github.com/dvloznov/finance-ingest/internal/store"
)

func TestHTTPClient_Sync(t *testing.T) {
	var got syncRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/transactions/sync", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"added": [{"transaction_id": "tx1", "account_id": "acc", "amount": 12.5, "date": "2025-06-01", "name": "Uber 063015"}],
			"modified": [],
			"removed": [{"transaction_id": "tx0"}],
			"next_cursor": "cursor-2",
			"has_more": true
		}`))
	}))
	defer srv.Close()

	c, err := NewHTTPClient(HTTPConfig{BaseURL: srv.URL + "/", ClientID: "cid", Secret: "sec", AccessToken: "access-1"})
	require.NoError(t, err)

	page, err := c.Sync(context.Background(), "cursor-1")
	require.NoError(t, err)

	assert.Equal(t, "cid", got.ClientID)
	assert.Equal(t, "sec", got.Secret)
	assert.Equal(t, "access-1", got.AccessToken)
	assert.Equal(t, "cursor-1", got.Cursor)
	assert.Equal(t, DefaultPageSize, got.Count)

	require.Len(t, page.Added, 1)
	assert.Equal(t, "tx1", page.Added[0].TransactionID)
	assert.Equal(t, 12.5, page.Added[0].Amount)
	assert.Equal(t, []Removed{{TransactionID: "tx0"}}, page.Removed)
	assert.Equal(t, "cursor-2", page.NextCursor)
	assert.True(t, page.HasMore)
}

func TestHTTPClient_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error_type":"INVALID_INPUT","error_code":"INVALID_ACCESS_TOKEN","error_message":"bad token"}`))
	}))
	defer srv.Close()

	c, err := NewHTTPClient(HTTPConfig{BaseURL: srv.URL, AccessToken: "nope"})
	require.NoError(t, err)

	_, err = c.Sync(context.Background(), "")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "INVALID_ACCESS_TOKEN", apiErr.ErrorCode)
}

func TestNewHTTPClient_RequiresToken(t *testing.T) {
	_, err := NewHTTPClient(HTTPConfig{BaseURL: "http://localhost"})
	assert.Error(t, err)
}

// pagedClient serves pages in order and records the cursors it was asked for.
type pagedClient struct {
	pages   []*Page
	cursors []string
	err     error
}

func (p *pagedClient) Sync(ctx context.Context, cursor string) (*Page, error) {
	p.cursors = append(p.cursors, cursor)
	if p.err != nil {
		return nil, p.err
	}
	page := p.pages[0]
	p.pages = p.pages[1:]
	return page, nil
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	return store.Open(context.Background(), nil, store.WithLogger(logger.Nop()))
}

func TestSyncer_Pages(t *testing.T) {
	client := &pagedClient{pages: []*Page{
		{
			Added: []Transaction{
				{TransactionID: "tx1", AccountID: "acc", Amount: 4.5, Date: "2025-06-01", Name: "Starbucks"},
				{TransactionID: "tx2", AccountID: "acc", Amount: 250, Date: "2025-06-02", Name: "United Airlines", Category: []string{"Travel", "Airlines and Aviation Services"}},
				{TransactionID: "bad", Amount: 3, Date: "06/03/2025", Name: "Broken"},
			},
			NextCursor: "c1",
			HasMore:    true,
		},
		{
			Modified:   []Transaction{{TransactionID: "tx1", AccountID: "acc", Amount: 5, Date: "2025-06-01", Name: "Starbucks"}},
			Removed:    []Removed{{TransactionID: "tx2"}, {TransactionID: "missing"}},
			NextCursor: "c2",
		},
	}}
	st := newTestStore(t)
	s := NewSyncer(client, st, nil, logger.Nop())

	res, err := s.Sync(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"", "c1"}, client.cursors)
	assert.Equal(t, 3, res.NewTransactions)
	assert.Equal(t, 1, res.ModifiedTransactions)
	assert.Equal(t, 1, res.RemovedTransactions)
	assert.Equal(t, 3, res.SavedTransactions)
	assert.Equal(t, 0, res.DuplicateCount)
	assert.Equal(t, 1, res.SkippedCount)
	assert.Equal(t, "c2", res.NextCursor)
	assert.Equal(t, 2, res.Pages)

	cursor, err := st.Cursor(context.Background(), CursorName)
	require.NoError(t, err)
	assert.Equal(t, "c2", cursor)

	tx1, ok := st.Get("tx1")
	require.True(t, ok)
	assert.True(t, decimal.RequireFromString("-5").Equal(tx1.Amount), "amount %s", tx1.Amount)
	assert.Equal(t, domain.SourceBankLink, tx1.Source)
	assert.Equal(t, "Food and Drink", tx1.PrimaryCategory())
	assert.Equal(t, civil.Date{Year: 2025, Month: time.June, Day: 1}, tx1.Date)
	assert.NotNil(t, tx1.UpdatedAt)

	_, ok = st.Get("tx2")
	assert.False(t, ok)
}

func TestSyncer_KeepsAggregatorCategory(t *testing.T) {
	s := NewSyncer(nil, nil, nil, logger.Nop())
	tx, err := s.toDomain(Transaction{
		TransactionID: "tx2",
		Amount:        -1200,
		Date:          "2025-06-02",
		Name:          "ACME PAYROLL",
		Category:      []string{"Transfer", "Payroll"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Transfer"}, tx.Category)
	assert.Equal(t, []string{"Payroll"}, tx.Subcategory)
	assert.True(t, decimal.NewFromInt(1200).Equal(tx.Amount))
	assert.Equal(t, "ACME PAYROLL", tx.MerchantName)
	assert.Equal(t, domain.DefaultCurrency, tx.ISOCurrencyCode)
}

func TestSyncer_DedupAgainstCSV(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	_, err := st.Save(ctx, &domain.Transaction{
		ID:     "csv_1",
		Date:   civil.Date{Year: 2025, Month: time.June, Day: 1},
		Name:   "POS STARBUCKS #123",
		Amount: decimal.RequireFromString("-4.50"),
		Source: "csv_amex",
	})
	require.NoError(t, err)

	client := &pagedClient{pages: []*Page{{
		Added:      []Transaction{{TransactionID: "tx1", Amount: 4.5, Date: "2025-06-01", Name: "Starbucks"}},
		NextCursor: "c1",
	}}}
	res, err := NewSyncer(client, st, nil, logger.Nop()).Sync(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, res.NewTransactions)
	assert.Equal(t, 0, res.SavedTransactions)
	assert.Equal(t, 1, res.DuplicateCount)
	assert.Equal(t, 1, st.Len())
}

func TestSyncer_ClientErrorKeepsCursor(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	st.SaveCursor(ctx, CursorName, "c0")

	client := &pagedClient{err: errors.New("connection reset")}
	_, err := NewSyncer(client, st, nil, logger.Nop()).Sync(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")

	cursor, err := st.Cursor(ctx, CursorName)
	require.NoError(t, err)
	assert.Equal(t, "c0", cursor)
	assert.Equal(t, []string{"c0"}, client.cursors)
}
