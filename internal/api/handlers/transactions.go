package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-ingest/internal/api/middleware"
	"github.com/dvloznov/finance-ingest/internal/csvimport"
	"github.com/dvloznov/finance-ingest/internal/ingest"
)

// TransactionsHandler serves CSV uploads, transaction queries and upload deletion.
type TransactionsHandler struct {
	svc  Ingester
	opts Options
	log  zerolog.Logger
}

// NewTransactionsHandler creates a new transactions handler.
func NewTransactionsHandler(svc Ingester, opts Options, log zerolog.Logger) *TransactionsHandler {
	return &TransactionsHandler{svc: svc, opts: opts, log: log}
}

type uploadCSVRequest struct {
	CSVContent string `json:"csvContent"`
	FileName   string `json:"fileName"`
	BankType   string `json:"bankType"`
}

// UploadCSV handles POST /upload/csv
func (h *TransactionsHandler) UploadCSV(w http.ResponseWriter, r *http.Request) {
	var req uploadCSVRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := h.svc.UploadCSV(r.Context(), ingest.UploadRequest{
		Content:  req.CSVContent,
		FileName: req.FileName,
		BankType: req.BankType,
	})
	if err != nil {
		var colErr *csvimport.ColumnError
		switch {
		case writeInputError(w, err):
		case errors.Is(err, csvimport.ErrTooFewLines):
			middleware.WriteError(w, http.StatusBadRequest, csvimport.ErrTooFewLines.Error())
		case errors.As(err, &colErr):
			middleware.WriteJSON(w, http.StatusBadRequest, map[string]string{
				"error":   "CSV processing failed",
				"details": colErr.Error(),
			})
		default:
			serverError(w, requestLog(r, h.log), h.opts, err, "CSV upload failed")
		}
		return
	}

	middleware.WriteJSON(w, http.StatusOK, res)
}

// ListTransactions handles GET /transactions
func (h *TransactionsHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	req := ingest.ListRequest{UploadID: query.Get("uploadId")}

	if v := query.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		req.Limit = limit
	}

	var ok bool
	if req.Start, ok = parseDateParam(query.Get("startDate")); !ok {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid startDate format")
		return
	}
	if req.End, ok = parseDateParam(query.Get("endDate")); !ok {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid endDate format")
		return
	}

	res, err := h.svc.ListTransactions(r.Context(), req)
	if err != nil {
		if !writeInputError(w, err) {
			serverError(w, requestLog(r, h.log), h.opts, err, "Failed to query transactions")
		}
		return
	}
	middleware.WriteJSON(w, http.StatusOK, res)
}

// parseDateParam parses an optional YYYY-MM-DD query value.
func parseDateParam(v string) (*civil.Date, bool) {
	if v == "" {
		return nil, true
	}
	d, err := civil.ParseDate(v)
	if err != nil || !d.IsValid() {
		return nil, false
	}
	return &d, true
}

// DeleteUpload handles DELETE /uploads/{uploadId}
func (h *TransactionsHandler) DeleteUpload(w http.ResponseWriter, r *http.Request, uploadID string) {
	n, err := h.svc.DeleteUpload(r.Context(), uploadID)
	if err != nil {
		if errors.Is(err, ingest.ErrInvalidInput) {
			middleware.WriteError(w, http.StatusBadRequest, "Upload ID is required")
			return
		}
		log := requestLog(r, h.log)
		log.Error().Err(err).Str("upload_id", uploadID).Msg("Failed to delete upload")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to delete upload")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"message":      "Upload deleted successfully",
		"uploadId":     uploadID,
		"deletedCount": n,
	})
}
