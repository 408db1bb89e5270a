package ingest

import (
	"context"
	"fmt"

	"github.com/dvloznov/finance-ingest/internal/csvimport"
	"github.com/dvloznov/finance-ingest/internal/domain"
)

// PipelineStep represents a single step in the CSV upload pipeline.
type PipelineStep interface {
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the shared state across all pipeline steps.
type PipelineState struct {
	Content  string
	FileName string
	BankType string
	UploadID string

	Document   *csvimport.Document
	Extraction *csvimport.Result
	Candidates []*domain.Transaction

	SavedCount     int
	DuplicateCount int
	ArchiveURI     string
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps in the pipeline sequentially.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	for i, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}
	}
	return nil
}

// newUploadPipeline builds the standard CSV upload pipeline for s.
func (s *Service) newUploadPipeline() *Pipeline {
	steps := []PipelineStep{
		&TokenizeStep{now: s.now},
		&ExtractStep{registry: s.registry},
	}
	if s.categorizeUploads {
		steps = append(steps, &CategorizeStep{engine: s.engine})
	}
	steps = append(steps,
		&EnrichStep{service: s},
		&SaveStep{store: s.store, log: s.log},
	)
	if s.blobs != nil {
		steps = append(steps, &ArchiveStep{blobs: s.blobs, log: s.log})
	}
	return NewPipeline(steps...)
}
