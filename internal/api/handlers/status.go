package handlers

import (
	"net/http"
	"time"

	"github.com/dvloznov/finance-ingest/internal/api/middleware"
)

// StatusFunc reports service state for GET /status.
type StatusFunc func() map[string]interface{}

// Health handles GET /health
func Health(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// Status handles GET /status
func Status(fn StatusFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := map[string]interface{}{
			"status": "running",
			"time":   time.Now().UTC().Format(time.RFC3339),
		}
		if fn != nil {
			for k, v := range fn() {
				body[k] = v
			}
		}
		middleware.WriteJSON(w, http.StatusOK, body)
	}
}
