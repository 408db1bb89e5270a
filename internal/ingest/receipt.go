package ingest

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/dvloznov/finance-ingest/internal/batch"
	"github.com/dvloznov/finance-ingest/internal/domain"
	"github.com/dvloznov/finance-ingest/internal/gcsuploader"
	"github.com/dvloznov/finance-ingest/internal/logger"
	"github.com/dvloznov/finance-ingest/internal/receipt"
)

// ErrAnalysisFailed wraps failures of the OCR collaborator.
var ErrAnalysisFailed = errors.New("receipt processing failed")

// Receipt defaults.
const (
	DefaultReceiptFileName = "receipt.jpg"
	DefaultReceiptFileType = "image/jpeg"
)

// ReceiptRequest is one receipt image upload.
type ReceiptRequest struct {
	// ImageData is standard base64, optionally with a data URL prefix.
	ImageData string
	// ImageURI reprocesses an image already in the blob store. It is used
	// only when ImageData is empty.
	ImageURI string
	FileName string
	FileType string
}

// ReceiptResult is the stored receipt and its line items.
type ReceiptResult struct {
	Message     string               `json:"message"`
	FileName    string               `json:"fileName"`
	ImageURI    string               `json:"imageUri,omitempty"`
	Transaction *domain.Transaction  `json:"transaction"`
	LineItems   []domain.Transaction `json:"lineItems"`
}

// ProcessReceipt stores the image, runs OCR and saves the resulting
// transaction with its line items.
//
// Errors: ErrInvalidInput for missing or undecodable image data,
// receipt.ErrZeroTotal when no total was read, ErrAnalysisFailed when OCR fails.
func (s *Service) ProcessReceipt(ctx context.Context, req ReceiptRequest) (*ReceiptResult, error) {
	inline := strings.TrimSpace(req.ImageData) != ""
	imageURI := strings.TrimSpace(req.ImageURI)
	if !inline && imageURI == "" {
		return nil, fmt.Errorf("%w: imageData is required", ErrInvalidInput)
	}
	if inline {
		imageURI = ""
	}
	if req.FileName == "" {
		req.FileName = DefaultReceiptFileName
		if !inline {
			req.FileName = path.Base(imageURI)
		}
	}
	if req.FileType == "" {
		req.FileType = DefaultReceiptFileType
	}

	image, err := s.receiptImage(ctx, inline, req.ImageData, imageURI)
	if err != nil {
		return nil, err
	}
	if s.analyzer == nil {
		return nil, fmt.Errorf("%w: no receipt analyzer configured", ErrAnalysisFailed)
	}

	now := s.now()
	log := s.log.With().Str("file_name", req.FileName).Logger()

	if inline && s.blobs != nil {
		imageURI, err = s.blobs.Put(ctx, gcsuploader.ReceiptObjectName(req.FileName, now), image, req.FileType)
		if err != nil {
			return nil, fmt.Errorf("ProcessReceipt: storing image: %w", err)
		}
	}

	analysis, err := s.analyzer.Analyze(ctx, image, req.FileType)
	if err != nil {
		log.Warn().Err(err).Msg("Receipt analysis failed")
		return nil, fmt.Errorf("%w: %v", ErrAnalysisFailed, err)
	}

	tx, items, err := receipt.Build(analysis, receipt.BuildOptions{
		ImageURI:   imageURI,
		FileName:   req.FileName,
		CapturedAt: now,
	}, s.engine)
	if err != nil {
		return nil, fmt.Errorf("ProcessReceipt: %w", err)
	}
	s.Enrich(tx, len(analysis.LineItems))

	if _, err := s.store.Save(ctx, tx); err != nil {
		return nil, fmt.Errorf("ProcessReceipt: saving receipt: %w", err)
	}

	if err := batch.Run(ctx, items, batch.Options{}, func(ctx context.Context, item domain.Transaction) error {
		_, err := s.store.Save(ctx, &item)
		return err
	}); err != nil {
		log.Warn().Err(err).Str("transaction_id", tx.ID).Msg("Some receipt line items were not saved")
	}

	txLog := logger.ForTransaction(log, tx.ID, tx.Source)
	txLog.Info().
		Str("amount", tx.Amount.String()).
		Int("line_items", len(items)).
		Msg("Receipt processed")

	return &ReceiptResult{
		Message:     "Receipt processed successfully",
		FileName:    req.FileName,
		ImageURI:    imageURI,
		Transaction: tx,
		LineItems:   items,
	}, nil
}

// receiptImage decodes inline image data, or reads the stored image at uri.
func (s *Service) receiptImage(ctx context.Context, inline bool, data, uri string) ([]byte, error) {
	if inline {
		image, err := DecodeImageData(data)
		if err != nil {
			return nil, fmt.Errorf("%w: imageData is not valid base64", ErrInvalidInput)
		}
		return image, nil
	}
	if s.blobs == nil {
		return nil, fmt.Errorf("%w: imageUri needs a configured blob store", ErrInvalidInput)
	}
	image, err := s.blobs.Fetch(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("ProcessReceipt: fetching %s: %w", uri, err)
	}
	return image, nil
}

// DecodeImageData strips a data:<mime>;base64, prefix and decodes the rest.
func DecodeImageData(data string) ([]byte, error) {
	data = strings.TrimSpace(data)
	if strings.HasPrefix(data, "data:") {
		if i := strings.Index(data, ";base64,"); i >= 0 {
			data = data[i+len(";base64,"):]
		}
	}
	return base64.StdEncoding.DecodeString(data)
}
