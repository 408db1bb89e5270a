// Package store is the transaction store: an in-memory view that serves every
// read, written through to a persistence Backend on a best-effort basis.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-ingest/internal/dedup"
	"github.com/dvloznov/finance-ingest/internal/domain"
	"github.com/rs/zerolog"
)

// DefaultTimeout bounds every backend call.
const DefaultTimeout = 5 * time.Second

// DefaultCooldown is how long backend calls are skipped once the backend
// has timed out or kept failing.
const DefaultCooldown = 30 * time.Second

// failureThreshold consecutive errors other than timeouts start a cooldown.
const failureThreshold = 3

var (
	// ErrInvalidTransaction is returned for records that must never be persisted.
	ErrInvalidTransaction = errors.New("invalid transaction")
	// ErrBackendUnavailable marks backend calls skipped during a cooldown.
	ErrBackendUnavailable = errors.New("backend unavailable")
)

// SaveOutcome tells whether Save inserted or merged.
type SaveOutcome int

const (
	Inserted SaveOutcome = iota
	Merged
)

func (o SaveOutcome) String() string {
	if o == Merged {
		return "merged"
	}
	return "inserted"
}

// QueryOptions filters Query. Nil bounds are open; Limit <= 0 means no limit.
type QueryOptions struct {
	Start    *civil.Date
	End      *civil.Date
	UploadID string
	Limit    int
}

// Store is a write-through transaction cache. The memory write always
// succeeds; backend failures are logged and never returned to the caller.
//
// A backend call that times out, or failureThreshold failing calls in a row,
// puts the store into memory-only mode for the cooldown period. Backends must
// honor ctx.
type Store struct {
	mu   sync.RWMutex
	byID map[string]*domain.Transaction
	// keys maps a fingerprint to every record id carrying it.
	keys    map[string]map[string]struct{}
	cursors map[string]string

	backend  Backend
	timeout  time.Duration
	cooldown time.Duration
	log      zerolog.Logger
	now      func() time.Time
	hydrated bool

	health        sync.Mutex
	failures      int
	degradedUntil time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithTimeout sets the per-call backend timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithCooldown sets how long backend calls are skipped after the backend
// times out or keeps failing.
func WithCooldown(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.cooldown = d
		}
	}
}

// WithLogger sets the logger used for persistence failures.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Store) { s.log = log }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open creates a store over backend and hydrates it once from backend.Scan.
// A failed hydration is logged and the store starts empty.
func Open(ctx context.Context, backend Backend, opts ...Option) *Store {
	if backend == nil {
		backend = NewMemoryBackend()
	}
	s := &Store{
		byID:     make(map[string]*domain.Transaction),
		keys:     make(map[string]map[string]struct{}),
		cursors:  make(map[string]string),
		backend:  backend,
		timeout:  DefaultTimeout,
		cooldown: DefaultCooldown,
		log:      zerolog.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	var records []*domain.Transaction
	err := s.call(ctx, "scan", func(ctx context.Context) error {
		var err error
		records, err = backend.Scan(ctx)
		return err
	})
	if err != nil {
		s.log.Warn().Err(err).Msg("Store hydration failed, starting with an empty view")
		return s
	}
	for _, tx := range records {
		if tx.DuplicateKey == "" {
			tx.DuplicateKey = dedup.KeyFor(tx)
		}
		s.index(tx)
	}
	s.hydrated = true
	s.log.Info().Int("count", len(records)).Msg("Store hydrated from backend")
	return s
}

// Hydrated reports whether the initial load from the backend succeeded.
func (s *Store) Hydrated() bool {
	return s.hydrated
}

// Save inserts tx, or merges it into the record with the same id.
func (s *Store) Save(ctx context.Context, tx *domain.Transaction) (SaveOutcome, error) {
	if err := tx.Validate(); err != nil {
		return Inserted, fmt.Errorf("%w: %v", ErrInvalidTransaction, err)
	}
	rec := s.prepare(tx)

	s.mu.Lock()
	outcome := Inserted
	if existing, ok := s.byID[rec.ID]; ok {
		outcome = Merged
		s.dropKey(existing.DuplicateKey, existing.ID)
		merge(existing, rec, s.now())
		existing.DuplicateKey = dedup.KeyFor(existing)
		s.addKey(existing.DuplicateKey, existing.ID)
		rec = existing.Clone()
	} else {
		s.index(rec.Clone())
	}
	s.mu.Unlock()

	s.persist(ctx, rec)
	return outcome, nil
}

// SaveIfNew inserts tx unless a record with the same fingerprint or id is
// already known. The memory check and insert are atomic; the backend
// fingerprint lookup beforehand is best-effort.
func (s *Store) SaveIfNew(ctx context.Context, tx *domain.Transaction) (bool, error) {
	if err := tx.Validate(); err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidTransaction, err)
	}
	rec := s.prepare(tx)

	if s.backendHasKey(ctx, rec.DuplicateKey) {
		return false, nil
	}

	s.mu.Lock()
	if len(s.keys[rec.DuplicateKey]) > 0 {
		s.mu.Unlock()
		return false, nil
	}
	if _, dup := s.byID[rec.ID]; dup {
		s.mu.Unlock()
		return false, nil
	}
	s.index(rec.Clone())
	s.mu.Unlock()

	s.persist(ctx, rec)
	return true, nil
}

// IsDuplicate reports whether the fingerprint is already in the memory view.
func (s *Store) IsDuplicate(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys[key]) > 0
}

// Query returns matching records sorted by date, newest first.
func (s *Store) Query(opts QueryOptions) []*domain.Transaction {
	s.mu.RLock()
	out := make([]*domain.Transaction, 0, len(s.byID))
	for _, tx := range s.byID {
		if opts.Start != nil && tx.Date.Before(*opts.Start) {
			continue
		}
		if opts.End != nil && tx.Date.After(*opts.End) {
			continue
		}
		if opts.UploadID != "" && tx.UploadID != opts.UploadID {
			continue
		}
		out = append(out, tx.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Date != b.Date {
			return a.Date.After(b.Date)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out
}

// Get returns a copy of one record.
func (s *Store) Get(id string) (*domain.Transaction, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	return tx.Clone(), true
}

// Len returns the number of records in the memory view.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// DeleteByUploadID removes every record of an upload and returns how many
// were removed from the memory view.
func (s *Store) DeleteByUploadID(ctx context.Context, uploadID string) (int, error) {
	if uploadID == "" {
		return 0, fmt.Errorf("DeleteByUploadID: upload id is required")
	}

	s.mu.Lock()
	n := 0
	for id, tx := range s.byID {
		if tx.UploadID == uploadID {
			s.unindex(id)
			n++
		}
	}
	s.mu.Unlock()

	var removed int
	err := s.call(ctx, "delete_upload", func(ctx context.Context) error {
		var err error
		removed, err = s.backend.DeleteByUploadID(ctx, uploadID)
		return err
	})
	if err != nil {
		s.logBackendError(s.log.With().Str("upload_id", uploadID).Logger(), err, "Backend delete failed")
	} else if removed != n {
		s.log.Debug().Str("upload_id", uploadID).Int("memory", n).Int("backend", removed).Msg("Upload delete counts differ")
	}
	return n, nil
}

// Delete removes one record and reports whether it was present.
func (s *Store) Delete(ctx context.Context, id string) bool {
	s.mu.Lock()
	_, ok := s.byID[id]
	if ok {
		s.unindex(id)
	}
	s.mu.Unlock()

	if err := s.call(ctx, "delete", func(ctx context.Context) error {
		return s.backend.Delete(ctx, id)
	}); err != nil {
		s.logBackendError(s.log.With().Str("transaction_id", id).Logger(), err, "Backend delete failed")
	}
	return ok
}

// Cursor returns a named sync cursor, or "" when none is stored.
func (s *Store) Cursor(ctx context.Context, name string) (string, error) {
	s.mu.RLock()
	c, ok := s.cursors[name]
	s.mu.RUnlock()
	if ok {
		return c, nil
	}

	err := s.call(ctx, "get_cursor", func(ctx context.Context) error {
		var err error
		c, err = s.backend.GetCursor(ctx, name)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("Cursor: reading %s: %w", name, err)
	}

	s.mu.Lock()
	s.cursors[name] = c
	s.mu.Unlock()
	return c, nil
}

// SaveCursor stores a named sync cursor. A backend failure is logged.
func (s *Store) SaveCursor(ctx context.Context, name, cursor string) {
	s.mu.Lock()
	s.cursors[name] = cursor
	s.mu.Unlock()

	if err := s.call(ctx, "put_cursor", func(ctx context.Context) error {
		return s.backend.PutCursor(ctx, name, cursor)
	}); err != nil {
		s.logBackendError(s.log.With().Str("cursor", name).Logger(), err, "Backend cursor write failed")
	}
}

// Close closes the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

func (s *Store) prepare(tx *domain.Transaction) *domain.Transaction {
	rec := tx.Clone()
	if rec.DuplicateKey == "" {
		rec.DuplicateKey = dedup.KeyFor(rec)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now().UTC()
	}
	if rec.ISOCurrencyCode == "" {
		rec.ISOCurrencyCode = domain.DefaultCurrency
	}
	if rec.MerchantName == "" {
		rec.MerchantName = rec.Name
	}
	return rec
}

func (s *Store) backendHasKey(ctx context.Context, key string) bool {
	var found bool
	err := s.call(ctx, "has_duplicate_key", func(ctx context.Context) error {
		var err error
		found, err = s.backend.HasDuplicateKey(ctx, key)
		return err
	})
	if err != nil {
		s.logBackendError(s.log, err, "Backend duplicate lookup failed, treating as new")
		return false
	}
	return found
}

// persist writes rec to the backend: insert if absent, otherwise update.
func (s *Store) persist(ctx context.Context, rec *domain.Transaction) {
	log := s.log.With().Str("transaction_id", rec.ID).Logger()

	var inserted bool
	err := s.call(ctx, "put_if_absent", func(ctx context.Context) error {
		var err error
		inserted, err = s.backend.PutIfAbsent(ctx, rec)
		return err
	})
	if err != nil {
		s.logBackendError(log, err, "Backend write failed, kept in memory only")
		return
	}
	if inserted {
		return
	}
	if err := s.call(ctx, "update", func(ctx context.Context) error {
		return s.backend.Update(ctx, rec)
	}); err != nil {
		s.logBackendError(log, err, "Backend update failed, kept in memory only")
	}
}

// call runs fn against the backend under the per-call timeout. During a
// cooldown fn is skipped and ErrBackendUnavailable returned.
func (s *Store) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if s.degraded() {
		return fmt.Errorf("%s: %w", op, ErrBackendUnavailable)
	}

	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	err := fn(cctx)
	s.record(ctx, op, err)
	return err
}

func (s *Store) degraded() bool {
	s.health.Lock()
	defer s.health.Unlock()
	return time.Now().Before(s.degradedUntil)
}

// record tracks backend health. A timeout starts a cooldown at once, other
// errors only after failureThreshold in a row. Errors caused by the caller
// canceling ctx are not the backend's fault and are ignored.
func (s *Store) record(ctx context.Context, op string, err error) {
	s.health.Lock()
	defer s.health.Unlock()

	if err == nil {
		s.failures = 0
		return
	}
	if ctx.Err() != nil {
		return
	}
	s.failures++
	if !errors.Is(err, context.DeadlineExceeded) && s.failures < failureThreshold {
		return
	}
	s.failures = 0
	s.degradedUntil = time.Now().Add(s.cooldown)
	s.log.Error().Err(err).Str("op", op).Dur("cooldown", s.cooldown).Msg("Backend unhealthy, serving from memory only")
}

// logBackendError logs a failed backend call. Calls skipped during a
// cooldown were already reported when it started.
func (s *Store) logBackendError(log zerolog.Logger, err error, msg string) {
	if errors.Is(err, ErrBackendUnavailable) {
		log.Debug().Err(err).Msg(msg)
		return
	}
	log.Warn().Err(err).Msg(msg)
}

// index must be called with mu held (or before the store is shared).
func (s *Store) index(tx *domain.Transaction) {
	s.byID[tx.ID] = tx
	s.addKey(tx.DuplicateKey, tx.ID)
}

func (s *Store) unindex(id string) {
	tx, ok := s.byID[id]
	if !ok {
		return
	}
	delete(s.byID, id)
	s.dropKey(tx.DuplicateKey, id)
}

func (s *Store) addKey(key, id string) {
	if key == "" {
		return
	}
	ids, ok := s.keys[key]
	if !ok {
		ids = make(map[string]struct{})
		s.keys[key] = ids
	}
	ids[id] = struct{}{}
}

// dropKey forgets id under key; the fingerprint stays known while any other
// record carries it.
func (s *Store) dropKey(key, id string) {
	ids, ok := s.keys[key]
	if !ok {
		return
	}
	delete(ids, id)
	if len(ids) == 0 {
		delete(s.keys, key)
	}
}

// merge copies the mutable fields of src into dst.
func merge(dst, src *domain.Transaction, now time.Time) {
	dst.Amount = src.Amount
	dst.Name = src.Name
	dst.MerchantName = src.MerchantName
	dst.Category = append([]string(nil), src.Category...)
	dst.Subcategory = append([]string(nil), src.Subcategory...)
	dst.Confidence = src.Confidence
	if src.Location != nil {
		loc := *src.Location
		dst.Location = &loc
	}
	if src.RawData != nil {
		dst.RawData = src.Clone().RawData
	}
	if len(src.Flags) > 0 {
		dst.Flags = append([]domain.Flag(nil), src.Flags...)
	}
	updated := now.UTC()
	dst.UpdatedAt = &updated
}
