package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/dvloznov/finance-ingest/internal/domain"
	"github.com/dvloznov/finance-ingest/internal/emailreceipt"
)

// EmailResult is the outcome of one email ingestion.
type EmailResult struct {
	Message     string              `json:"message"`
	Saved       bool                `json:"saved"`
	Transaction *domain.Transaction `json:"transaction"`
}

// IngestEmail parses a receipt email and stores its transaction unless the
// same purchase is already known. Non-receipt emails return
// emailreceipt.ErrNotReceipt.
func (s *Service) IngestEmail(ctx context.Context, m emailreceipt.Message) (*EmailResult, error) {
	if strings.TrimSpace(m.MessageID) == "" {
		return nil, fmt.Errorf("%w: messageId is required", ErrInvalidInput)
	}
	tx, err := emailreceipt.Parse(m)
	if err != nil {
		return nil, fmt.Errorf("IngestEmail: %w", err)
	}
	s.Enrich(tx, 0)

	saved, err := s.store.SaveIfNew(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("IngestEmail: saving: %w", err)
	}

	res := &EmailResult{Message: "Email receipt processed successfully", Saved: saved, Transaction: tx}
	if !saved {
		res.Message = "Email receipt already recorded"
	}
	s.log.Info().
		Str("message_id", m.MessageID).
		Str("transaction_id", tx.ID).
		Bool("saved", saved).
		Msg("Email receipt ingested")
	return res, nil
}
