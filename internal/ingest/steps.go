package ingest

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-ingest/internal/categorize"
	"github.com/dvloznov/finance-ingest/internal/csvimport"
	"github.com/dvloznov/finance-ingest/internal/domain"
	"github.com/dvloznov/finance-ingest/internal/gcsuploader"
	"github.com/dvloznov/finance-ingest/internal/logger"
)

// Step 1: TokenizeStep splits the upload into a header row and data lines.
type TokenizeStep struct {
	now func() time.Time
}

func (s *TokenizeStep) Execute(ctx context.Context, state *PipelineState) error {
	doc, err := csvimport.NewDocument(state.Content, state.UploadID, state.FileName)
	if err != nil {
		return err
	}
	doc.Now = s.now
	state.Document = doc
	return nil
}

// Step 2: ExtractStep runs the bank-specific extractor.
type ExtractStep struct {
	registry *csvimport.Registry
}

func (s *ExtractStep) Execute(ctx context.Context, state *PipelineState) error {
	res, err := s.registry.Lookup(state.BankType).Extract(state.Document)
	if err != nil {
		return err
	}

	log := logger.FromContext(ctx)
	for _, skipped := range res.Skipped {
		log.Debug().Int("line", skipped.Line).Str("reason", skipped.Reason).Msg("Skipping CSV row")
	}

	state.Extraction = res
	state.Candidates = make([]*domain.Transaction, 0, len(res.Candidates))
	for i := range res.Candidates {
		state.Candidates = append(state.Candidates, &res.Candidates[i])
	}
	return nil
}

// Step 3 (optional): CategorizeStep replaces the placeholder category of each
// row with the engine's result.
type CategorizeStep struct {
	engine *categorize.Engine
}

func (s *CategorizeStep) Execute(ctx context.Context, state *PipelineState) error {
	for _, tx := range state.Candidates {
		s.engine.Apply(tx)
	}
	return nil
}

// Step 4: EnrichStep attaches business-rule flags.
type EnrichStep struct {
	service *Service
}

func (s *EnrichStep) Execute(ctx context.Context, state *PipelineState) error {
	for _, tx := range state.Candidates {
		s.service.Enrich(tx, 0)
	}
	return nil
}

// Step 5: SaveStep writes candidates in file order, suppressing fingerprint
// duplicates.
type SaveStep struct {
	store Store
	log   zerolog.Logger
}

func (s *SaveStep) Execute(ctx context.Context, state *PipelineState) error {
	for _, tx := range state.Candidates {
		saved, err := s.store.SaveIfNew(ctx, tx)
		if err != nil {
			// Extractors only emit valid candidates, so this is unexpected.
			s.log.Warn().Err(err).Str("transaction_id", tx.ID).Msg("Rejected CSV candidate")
			continue
		}
		if saved {
			state.SavedCount++
		} else {
			state.DuplicateCount++
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return nil
}

// Step 6 (optional): ArchiveStep keeps a copy of the raw upload. A failure is
// logged and does not fail the upload.
type ArchiveStep struct {
	blobs gcsuploader.BlobStore
	log   zerolog.Logger
}

func (s *ArchiveStep) Execute(ctx context.Context, state *PipelineState) error {
	uri, err := s.blobs.Put(ctx, gcsuploader.UploadObjectName(state.UploadID, state.FileName), []byte(state.Content), "text/csv")
	if err != nil {
		s.log.Warn().Err(err).Str("upload_id", state.UploadID).Msg("Failed to archive CSV upload")
		return nil
	}
	state.ArchiveURI = uri
	return nil
}
