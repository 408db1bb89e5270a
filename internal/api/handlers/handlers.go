// Package handlers implements the HTTP endpoints over the ingestion service.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-ingest/internal/api/middleware"
	"github.com/dvloznov/finance-ingest/internal/emailreceipt"
	"github.com/dvloznov/finance-ingest/internal/ingest"
	"github.com/dvloznov/finance-ingest/internal/logger"
)

// maxBodyBytes bounds request bodies; receipt images arrive inline as base64.
const maxBodyBytes = 20 << 20

// Ingester is the ingestion service as the HTTP layer uses it.
// *ingest.Service implements it.
type Ingester interface {
	UploadCSV(ctx context.Context, req ingest.UploadRequest) (*ingest.UploadResult, error)
	ListTransactions(ctx context.Context, req ingest.ListRequest) (*ingest.ListResult, error)
	DeleteUpload(ctx context.Context, uploadID string) (int, error)
	ProcessReceipt(ctx context.Context, req ingest.ReceiptRequest) (*ingest.ReceiptResult, error)
	IngestEmail(ctx context.Context, m emailreceipt.Message) (*ingest.EmailResult, error)
}

var _ Ingester = (*ingest.Service)(nil)

// Options are shared by all handlers.
type Options struct {
	// Production hides error details from 500 responses.
	Production bool
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// inputMessage returns the human part of an ErrInvalidInput error.
func inputMessage(err error) string {
	msg := err.Error()
	marker := ingest.ErrInvalidInput.Error() + ": "
	if i := strings.Index(msg, marker); i >= 0 {
		return msg[i+len(marker):]
	}
	return msg
}

// writeInputError answers 400 for invalid input and reports whether it did.
func writeInputError(w http.ResponseWriter, err error) bool {
	if !errors.Is(err, ingest.ErrInvalidInput) {
		return false
	}
	middleware.WriteError(w, http.StatusBadRequest, inputMessage(err))
	return true
}

func serverError(w http.ResponseWriter, log zerolog.Logger, opts Options, err error, msg string) {
	log.Error().Err(err).Msg(msg)
	middleware.WriteServerError(w, err, opts.Production)
}

// requestLog prefers the request-scoped logger set by the middleware chain.
// Without one, the fallback is still tagged with the request id if known.
func requestLog(r *http.Request, fallback zerolog.Logger) zerolog.Logger {
	if log, ok := r.Context().Value(logger.LoggerKey).(zerolog.Logger); ok {
		return log
	}
	if id := middleware.GetRequestID(r.Context()); id != "" {
		return fallback.With().Str("request_id", id).Logger()
	}
	return fallback
}
