package handlers

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-ingest/internal/api/middleware"
	"github.com/dvloznov/finance-ingest/internal/emailreceipt"
	"github.com/dvloznov/finance-ingest/internal/ingest"
	"github.com/dvloznov/finance-ingest/internal/receipt"
)

// ReceiptsHandler serves receipt images and receipt emails.
type ReceiptsHandler struct {
	svc  Ingester
	opts Options
	log  zerolog.Logger
}

// NewReceiptsHandler creates a new receipts handler.
func NewReceiptsHandler(svc Ingester, opts Options, log zerolog.Logger) *ReceiptsHandler {
	return &ReceiptsHandler{svc: svc, opts: opts, log: log}
}

type uploadReceiptRequest struct {
	ImageData string `json:"imageData"`
	ImageURI  string `json:"imageUri"`
	FileName  string `json:"fileName"`
	FileType  string `json:"fileType"`
}

// UploadReceipt handles POST /upload/receipt
func (h *ReceiptsHandler) UploadReceipt(w http.ResponseWriter, r *http.Request) {
	var req uploadReceiptRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := h.svc.ProcessReceipt(r.Context(), ingest.ReceiptRequest{
		ImageData: req.ImageData,
		ImageURI:  req.ImageURI,
		FileName:  req.FileName,
		FileType:  req.FileType,
	})
	if err != nil {
		log := requestLog(r, h.log)
		switch {
		case writeInputError(w, err):
		case errors.Is(err, receipt.ErrZeroTotal):
			middleware.WriteError(w, http.StatusUnprocessableEntity, "No total could be read from the receipt")
		case errors.Is(err, ingest.ErrAnalysisFailed):
			log.Warn().Err(err).Msg("Receipt analysis failed")
			middleware.WriteError(w, http.StatusBadGateway, "Receipt processing failed")
		default:
			serverError(w, log, h.opts, err, "Receipt upload failed")
		}
		return
	}

	middleware.WriteJSON(w, http.StatusOK, res)
}

// IngestEmail handles POST /ingest/email
func (h *ReceiptsHandler) IngestEmail(w http.ResponseWriter, r *http.Request) {
	var msg emailreceipt.Message
	if !decodeBody(w, r, &msg) {
		return
	}

	res, err := h.svc.IngestEmail(r.Context(), msg)
	if err != nil {
		switch {
		case writeInputError(w, err):
		case errors.Is(err, emailreceipt.ErrNotReceipt):
			middleware.WriteError(w, http.StatusUnprocessableEntity, "Email is not a receipt")
		default:
			serverError(w, requestLog(r, h.log), h.opts, err, "Email ingestion failed")
		}
		return
	}

	middleware.WriteJSON(w, http.StatusOK, res)
}
