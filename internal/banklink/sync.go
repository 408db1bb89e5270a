package banklink

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/finance-ingest/internal/batch"
	"github.com/dvloznov/finance-ingest/internal/categorize"
	"github.com/dvloznov/finance-ingest/internal/domain"
	"github.com/dvloznov/finance-ingest/internal/store"
)

// CursorName is the store key holding the aggregator cursor.
const CursorName = "plaid_cursor"

// maxPages bounds one sync run in case the aggregator keeps reporting has_more.
const maxPages = 100

// Store is the subset of store.Store the syncer writes through.
type Store interface {
	Save(ctx context.Context, tx *domain.Transaction) (store.SaveOutcome, error)
	SaveIfNew(ctx context.Context, tx *domain.Transaction) (bool, error)
	Delete(ctx context.Context, id string) bool
	Cursor(ctx context.Context, name string) (string, error)
	SaveCursor(ctx context.Context, name, cursor string)
}

// Result summarizes one sync run.
type Result struct {
	Message              string `json:"message"`
	NewTransactions      int    `json:"newTransactions"`
	ModifiedTransactions int    `json:"modifiedTransactions"`
	RemovedTransactions  int    `json:"removedTransactions"`
	SavedTransactions    int    `json:"savedTransactions"`
	DuplicateCount       int    `json:"duplicateCount"`
	SkippedCount         int    `json:"skippedCount"`
	NextCursor           string `json:"nextCursor"`
	Pages                int    `json:"pages"`
}

// Syncer pulls pages from a Client and writes them through a Store.
type Syncer struct {
	client Client
	store  Store
	engine *categorize.Engine
	log    zerolog.Logger
	batch  batch.Options
	now    func() time.Time
}

// NewSyncer creates a Syncer. A nil engine uses the default rule table.
func NewSyncer(client Client, st Store, engine *categorize.Engine, log zerolog.Logger) *Syncer {
	if engine == nil {
		engine = categorize.Default()
	}
	return &Syncer{
		client: client,
		store:  st,
		engine: engine,
		log:    log,
		now:    time.Now,
	}
}

// Sync runs pages from the stored cursor until the aggregator reports no more.
// The cursor is persisted after every page so an interrupted run resumes.
func (s *Syncer) Sync(ctx context.Context) (*Result, error) {
	cursor, err := s.store.Cursor(ctx, CursorName)
	if err != nil {
		return nil, fmt.Errorf("Sync: reading cursor: %w", err)
	}

	res := &Result{Message: "Plaid sync completed successfully", NextCursor: cursor}
	s.log.Info().Bool("initial", cursor == "").Msg("Starting bank link sync")

	for res.Pages < maxPages {
		page, err := s.client.Sync(ctx, cursor)
		if err != nil {
			return res, fmt.Errorf("Sync: fetching page %d: %w", res.Pages+1, err)
		}
		res.Pages++

		if err := s.applyPage(ctx, page, res); err != nil {
			return res, fmt.Errorf("Sync: applying page %d: %w", res.Pages, err)
		}

		if page.NextCursor != "" {
			cursor = page.NextCursor
			s.store.SaveCursor(ctx, CursorName, cursor)
		}
		res.NextCursor = cursor

		if !page.HasMore {
			break
		}
	}
	if res.Pages == maxPages {
		s.log.Warn().Int("pages", res.Pages).Msg("Bank link sync stopped at page limit")
	}

	s.log.Info().
		Int("new", res.NewTransactions).
		Int("modified", res.ModifiedTransactions).
		Int("removed", res.RemovedTransactions).
		Int("saved", res.SavedTransactions).
		Int("duplicates", res.DuplicateCount).
		Msg("Bank link sync finished")
	return res, nil
}

func (s *Syncer) applyPage(ctx context.Context, page *Page, res *Result) error {
	res.NewTransactions += len(page.Added)
	res.ModifiedTransactions += len(page.Modified)

	var saved, dups, skipped atomic.Int64

	added := s.mapAll(page.Added, &skipped)
	if err := batch.Run(ctx, added, s.batch, func(ctx context.Context, tx *domain.Transaction) error {
		ok, err := s.store.SaveIfNew(ctx, tx)
		if err != nil {
			return fmt.Errorf("saving %s: %w", tx.ID, err)
		}
		if ok {
			saved.Add(1)
		} else {
			dups.Add(1)
		}
		return nil
	}); err != nil {
		s.log.Warn().Err(err).Msg("Some added transactions failed to save")
	}

	modified := s.mapAll(page.Modified, &skipped)
	if err := batch.Run(ctx, modified, s.batch, func(ctx context.Context, tx *domain.Transaction) error {
		if _, err := s.store.Save(ctx, tx); err != nil {
			return fmt.Errorf("saving %s: %w", tx.ID, err)
		}
		saved.Add(1)
		return nil
	}); err != nil {
		s.log.Warn().Err(err).Msg("Some modified transactions failed to save")
	}

	var removed atomic.Int64
	if err := batch.Run(ctx, page.Removed, s.batch, func(ctx context.Context, r Removed) error {
		if r.TransactionID != "" && s.store.Delete(ctx, r.TransactionID) {
			removed.Add(1)
		}
		return nil
	}); err != nil {
		return err
	}

	res.SavedTransactions += int(saved.Load())
	res.DuplicateCount += int(dups.Load())
	res.SkippedCount += int(skipped.Load())
	res.RemovedTransactions += int(removed.Load())
	return ctx.Err()
}

func (s *Syncer) mapAll(records []Transaction, skipped *atomic.Int64) []*domain.Transaction {
	out := make([]*domain.Transaction, 0, len(records))
	for _, r := range records {
		tx, err := s.toDomain(r)
		if err != nil {
			s.log.Debug().Err(err).Str("transaction_id", r.TransactionID).Msg("Skipping bank link record")
			skipped.Add(1)
			continue
		}
		out = append(out, tx)
	}
	return out
}

// toDomain maps an aggregator record. The aggregator reports outflows as
// positive amounts, so the sign is flipped.
func (s *Syncer) toDomain(r Transaction) (*domain.Transaction, error) {
	if r.TransactionID == "" {
		return nil, fmt.Errorf("missing transaction_id")
	}
	date, err := parseDate(r.Date, r.AuthorizedDate)
	if err != nil {
		return nil, err
	}
	amount := decimal.NewFromFloat(r.Amount).Neg()
	if amount.IsZero() {
		return nil, fmt.Errorf("zero amount")
	}

	currency := r.ISOCurrencyCode
	if currency == "" {
		currency = domain.DefaultCurrency
	}
	merchant := r.MerchantName
	if merchant == "" {
		merchant = r.Name
	}

	tx := &domain.Transaction{
		ID:              r.TransactionID,
		Date:            date,
		Name:            r.Name,
		MerchantName:    merchant,
		Amount:          amount,
		AccountID:       r.AccountID,
		Category:        append([]string(nil), r.Category...),
		ISOCurrencyCode: currency,
		Source:          domain.SourceBankLink,
		RawData: map[string]any{
			"pending":         r.Pending,
			"payment_channel": r.PaymentChannel,
		},
		CreatedAt: s.now().UTC(),
	}
	if r.Location != nil {
		loc := &domain.Location{
			Address:    r.Location.Address,
			City:       r.Location.City,
			Region:     r.Location.Region,
			PostalCode: r.Location.PostalCode,
			Country:    r.Location.Country,
		}
		if !loc.IsZero() {
			tx.Location = loc
		}
	}

	if len(tx.Category) == 0 {
		s.engine.Apply(tx)
	} else if len(tx.Category) > 1 {
		tx.Subcategory = tx.Category[1:2]
		tx.Category = tx.Category[:1]
	}
	return tx, nil
}

func parseDate(values ...string) (civil.Date, error) {
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		d, err := civil.ParseDate(v)
		if err != nil {
			return civil.Date{}, fmt.Errorf("invalid date %q: %w", v, err)
		}
		return d, nil
	}
	return civil.Date{}, fmt.Errorf("missing date")
}
