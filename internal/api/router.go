// Package api assembles the HTTP surface: routes, handlers and the
// middleware chain.
package api

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-ingest/internal/api/handlers"
	"github.com/dvloznov/finance-ingest/internal/api/middleware"
	"github.com/dvloznov/finance-ingest/internal/jobs"
)

// Endpoints is listed in 404 responses.
var Endpoints = []string{
	"POST /upload/csv",
	"GET /transactions",
	"DELETE /uploads/{uploadId}",
	"POST /upload/receipt",
	"POST /ingest/email",
	"POST /sync/banklink",
	"GET /jobs",
	"GET /jobs/{id}",
	"GET /health",
	"GET /status",
}

// Deps are the collaborators behind the routes.
type Deps struct {
	Service handlers.Ingester
	// Publisher is nil when no bank link is configured.
	Publisher  jobs.Publisher
	Jobs       jobs.JobStore
	Status     handlers.StatusFunc
	Production bool
	Log        zerolog.Logger
}

// NewRouter returns the full handler, middleware included.
func NewRouter(d Deps) http.Handler {
	opts := handlers.Options{Production: d.Production}
	transactions := handlers.NewTransactionsHandler(d.Service, opts, d.Log)
	receipts := handlers.NewReceiptsHandler(d.Service, opts, d.Log)
	jobsHandler := handlers.NewJobsHandler(d.Publisher, d.Jobs, d.Log)

	mux := http.NewServeMux()

	mux.HandleFunc("/upload/csv", method(http.MethodPost, transactions.UploadCSV))
	mux.HandleFunc("/transactions", method(http.MethodGet, transactions.ListTransactions))
	mux.HandleFunc("/uploads/", method(http.MethodDelete, func(w http.ResponseWriter, r *http.Request) {
		transactions.DeleteUpload(w, r, strings.TrimPrefix(r.URL.Path, "/uploads/"))
	}))

	mux.HandleFunc("/upload/receipt", method(http.MethodPost, receipts.UploadReceipt))
	mux.HandleFunc("/ingest/email", method(http.MethodPost, receipts.IngestEmail))

	mux.HandleFunc("/sync/banklink", method(http.MethodPost, jobsHandler.EnqueueBankSync))
	mux.HandleFunc("/jobs", method(http.MethodGet, jobsHandler.ListJobs))
	mux.HandleFunc("/jobs/", method(http.MethodGet, func(w http.ResponseWriter, r *http.Request) {
		jobID := strings.TrimPrefix(r.URL.Path, "/jobs/")
		if jobID == "" {
			middleware.WriteError(w, http.StatusBadRequest, "Job ID is required")
			return
		}
		jobsHandler.GetJob(w, r, jobID)
	}))

	mux.HandleFunc("/health", handlers.Health)
	mux.HandleFunc("/status", handlers.Status(d.Status))
	mux.HandleFunc("/", notFound)

	return middleware.Chain(mux,
		middleware.Recovery(d.Log),
		middleware.Logger(d.Log),
		middleware.RequestID,
		middleware.CORS,
		middleware.Auth,
	)
}

func method(m string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != m {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		h(w, r)
	}
}

func notFound(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusNotFound, map[string]interface{}{
		"error":               "Not found",
		"path":                r.URL.Path,
		"method":              r.Method,
		"available_endpoints": Endpoints,
	})
}
