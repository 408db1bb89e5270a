// Package ingest ties the extractors, the categorization engine and the
// transaction store together behind the operations the HTTP API and the CLI
// expose.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-ingest/internal/categorize"
	"github.com/dvloznov/finance-ingest/internal/csvimport"
	"github.com/dvloznov/finance-ingest/internal/dedup"
	"github.com/dvloznov/finance-ingest/internal/domain"
	"github.com/dvloznov/finance-ingest/internal/gcsuploader"
	"github.com/dvloznov/finance-ingest/internal/logger"
	"github.com/dvloznov/finance-ingest/internal/receipt"
	"github.com/dvloznov/finance-ingest/internal/store"
)

// ErrInvalidInput marks request problems the caller can fix.
var ErrInvalidInput = errors.New("invalid input")

// DefaultListLimit caps ListTransactions when no limit is given.
const DefaultListLimit = 100

// Store is the subset of store.Store the service needs.
type Store interface {
	Save(ctx context.Context, tx *domain.Transaction) (store.SaveOutcome, error)
	SaveIfNew(ctx context.Context, tx *domain.Transaction) (bool, error)
	Query(opts store.QueryOptions) []*domain.Transaction
	Len() int
	DeleteByUploadID(ctx context.Context, uploadID string) (int, error)
}

// Deps are the collaborators of a Service. Store is required; a nil Engine
// uses the default rule table and a nil Registry the default extractors.
type Deps struct {
	Store    Store
	Registry *csvimport.Registry
	Engine   *categorize.Engine
	Analyzer receipt.Analyzer
	Blobs    gcsuploader.BlobStore
	Logger   zerolog.Logger

	// CategorizeUploads runs the engine on CSV rows instead of keeping the
	// General / Manual Upload placeholder.
	CategorizeUploads bool
	Now               func() time.Time
}

// Service implements the ingestion operations.
type Service struct {
	store             Store
	registry          *csvimport.Registry
	engine            *categorize.Engine
	analyzer          receipt.Analyzer
	blobs             gcsuploader.BlobStore
	log               zerolog.Logger
	categorizeUploads bool
	now               func() time.Time
}

// NewService creates a Service from deps.
func NewService(deps Deps) *Service {
	s := &Service{
		store:             deps.Store,
		registry:          deps.Registry,
		engine:            deps.Engine,
		analyzer:          deps.Analyzer,
		blobs:             deps.Blobs,
		log:               deps.Logger,
		categorizeUploads: deps.CategorizeUploads,
		now:               deps.Now,
	}
	if s.registry == nil {
		s.registry = csvimport.DefaultRegistry()
	}
	if s.engine == nil {
		s.engine = categorize.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Engine returns the categorization engine in use.
func (s *Service) Engine() *categorize.Engine {
	return s.engine
}

// UploadRequest is one CSV upload.
type UploadRequest struct {
	Content  string
	FileName string
	BankType string
}

// UploadResult summarizes one CSV upload.
type UploadResult struct {
	Message           string `json:"message"`
	FileName          string `json:"fileName"`
	BankType          string `json:"bankType"`
	UploadID          string `json:"uploadId"`
	TotalTransactions int    `json:"totalTransactions"`
	SavedCount        int    `json:"savedCount"`
	DuplicateCount    int    `json:"duplicateCount"`
	SkippedRows       int    `json:"skippedRows"`
	Processing        string `json:"processing"`
	ArchiveURI        string `json:"archiveUri,omitempty"`
}

// UploadCSV parses, enriches and stores one bank export. Re-uploading the
// same file saves nothing new.
//
// Errors: ErrInvalidInput when the content is empty, csvimport.ErrTooFewLines
// and *csvimport.ColumnError for unusable files.
func (s *Service) UploadCSV(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	if strings.TrimSpace(req.Content) == "" {
		return nil, fmt.Errorf("%w: csvContent is required", ErrInvalidInput)
	}
	bank := strings.ToLower(strings.TrimSpace(req.BankType))
	if bank == "" {
		bank = csvimport.BankGeneric
	}

	state := &PipelineState{
		Content:  req.Content,
		FileName: req.FileName,
		BankType: bank,
		UploadID: domain.NewID("upload", s.now()),
	}
	log := logger.ForUpload(s.log, state.UploadID, bank, req.FileName)
	ctx = logger.WithContext(ctx, log)

	if err := s.newUploadPipeline().Execute(ctx, state); err != nil {
		log.Warn().Err(err).Msg("CSV upload failed")
		return nil, fmt.Errorf("UploadCSV: %w", err)
	}

	res := &UploadResult{
		Message:           "CSV processed successfully",
		FileName:          req.FileName,
		BankType:          bank,
		UploadID:          state.UploadID,
		TotalTransactions: len(state.Candidates),
		SavedCount:        state.SavedCount,
		DuplicateCount:    state.DuplicateCount,
		SkippedRows:       len(state.Extraction.Skipped),
		Processing:        "Complete",
		ArchiveURI:        state.ArchiveURI,
	}
	log.Info().
		Int("total", res.TotalTransactions).
		Int("saved", res.SavedCount).
		Int("duplicates", res.DuplicateCount).
		Int("skipped", res.SkippedRows).
		Msg("CSV upload processed")
	return res, nil
}

// ListRequest filters ListTransactions.
type ListRequest struct {
	Start    *civil.Date
	End      *civil.Date
	UploadID string
	Limit    int
}

// ListResult is a page of stored transactions.
type ListResult struct {
	Transactions []*domain.Transaction `json:"transactions"`
	Count        int                   `json:"count"`
	TotalInDB    int                   `json:"totalInDB"`
}

// ListTransactions returns stored transactions, newest first.
func (s *Service) ListTransactions(ctx context.Context, req ListRequest) (*ListResult, error) {
	if req.Limit < 0 {
		return nil, fmt.Errorf("%w: limit must not be negative", ErrInvalidInput)
	}
	if req.Start != nil && req.End != nil && req.End.Before(*req.Start) {
		return nil, fmt.Errorf("%w: endDate is before startDate", ErrInvalidInput)
	}
	if req.Limit == 0 {
		req.Limit = DefaultListLimit
	}
	txs := s.store.Query(store.QueryOptions{
		Start:    req.Start,
		End:      req.End,
		UploadID: req.UploadID,
		Limit:    req.Limit,
	})
	return &ListResult{Transactions: txs, Count: len(txs), TotalInDB: s.store.Len()}, nil
}

// DeleteUpload removes every transaction of one upload.
func (s *Service) DeleteUpload(ctx context.Context, uploadID string) (int, error) {
	uploadID = strings.TrimSpace(uploadID)
	if uploadID == "" {
		return 0, fmt.Errorf("%w: Upload ID is required", ErrInvalidInput)
	}
	n, err := s.store.DeleteByUploadID(ctx, uploadID)
	if err != nil {
		return 0, fmt.Errorf("DeleteUpload: %w", err)
	}
	s.log.Info().Str("upload_id", uploadID).Int("deleted", n).Msg("Upload deleted")
	return n, nil
}

// Enrich attaches business-rule flags to tx and marks it as a potential
// duplicate when a stored record is close in date, amount and description.
func (s *Service) Enrich(tx *domain.Transaction, lineItems int) {
	for _, f := range s.engine.Flags(tx, lineItems) {
		if !tx.HasFlag(f.Type) {
			tx.Flags = append(tx.Flags, f)
		}
	}
	if tx.HasFlag(categorize.FlagPotentialDuplicate) || !tx.Date.IsValid() {
		return
	}

	start, end := tx.Date.AddDays(-dedup.NearDuplicateDays), tx.Date.AddDays(dedup.NearDuplicateDays)
	nearby := s.store.Query(store.QueryOptions{Start: &start, End: &end})
	if matches := dedup.FindNearDuplicates(tx, nearby); len(matches) > 0 {
		tx.Flags = append(tx.Flags, domain.Flag{
			Type:    categorize.FlagPotentialDuplicate,
			Message: fmt.Sprintf("Possible duplicate of %s", matches[0].ID),
		})
	}
}
