package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/finance-ingest/internal/gcsuploader"
	"github.com/dvloznov/finance-ingest/internal/ingest"
	"github.com/dvloznov/finance-ingest/internal/jobs"
	"github.com/dvloznov/finance-ingest/internal/jobs/inmemory"
	"github.com/dvloznov/finance-ingest/internal/logger"
	"github.com/dvloznov/finance-ingest/internal/receipt"
	"github.com/dvloznov/finance-ingest/internal/store"
)

const amexCSV = "Date,Description,Card Member,Account #,Amount\n" +
	"06/01/2025,STARBUCKS STORE 123,JANE DOE,-1001,25.00\n" +
	"06/02/2025,SHELL OIL 5550,JANE DOE,-1001,40.10\n"

type testServer struct {
	handler http.Handler
	store   *store.Store
	jobs    *inmemory.Store
}

func newTestServer(t *testing.T, analyze receipt.AnalyzerFunc) *testServer {
	t.Helper()
	st := store.Open(context.Background(), nil, store.WithLogger(logger.Nop()))
	var analyzer receipt.Analyzer
	if analyze != nil {
		analyzer = analyze
	}
	svc := ingest.NewService(ingest.Deps{
		Store:    st,
		Analyzer: analyzer,
		Blobs:    gcsuploader.NewMemoryStore(),
		Logger:   logger.Nop(),
		Now:      func() time.Time { return time.Date(2025, time.June, 22, 10, 0, 0, 0, time.UTC) },
	})
	jobStore := inmemory.NewStore()
	queue := inmemory.NewQueue(10, jobStore)
	t.Cleanup(func() { queue.Close() })

	return &testServer{
		handler: NewRouter(Deps{
			Service:   svc,
			Publisher: queue,
			Jobs:      jobStore,
			Status: func() map[string]interface{} {
				return map[string]interface{}{"transactions": st.Len()}
			},
			Log: logger.Nop(),
		}),
		store: st,
		jobs:  jobStore,
	}
}

func (s *testServer) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var payload string
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		payload = string(b)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(payload)))

	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

func TestUploadListDelete(t *testing.T) {
	srv := newTestServer(t, nil)

	rec, body := srv.do(t, http.MethodPost, "/upload/csv", map[string]string{
		"csvContent": amexCSV, "fileName": "amex.csv", "bankType": "amex",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "CSV processed successfully", body["message"])
	assert.Equal(t, float64(2), body["savedCount"])
	assert.Equal(t, "Complete", body["processing"])
	uploadID := body["uploadId"].(string)

	rec, body = srv.do(t, http.MethodGet, "/transactions?limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["count"])
	assert.Equal(t, float64(2), body["totalInDB"])
	first := body["transactions"].([]any)[0].(map[string]any)
	assert.Equal(t, "2025-06-02", first["date"])
	assert.NotContains(t, first, "DuplicateKey")

	rec, body = srv.do(t, http.MethodGet, "/transactions?uploadId="+uploadID+"&startDate=2025-06-01&endDate=2025-06-01", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["count"])

	rec, body = srv.do(t, http.MethodDelete, "/uploads/"+uploadID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Upload deleted successfully", body["message"])
	assert.Equal(t, uploadID, body["uploadId"])
	assert.Equal(t, float64(2), body["deletedCount"])
	assert.Zero(t, srv.store.Len())
}

func TestUploadCSV_Errors(t *testing.T) {
	srv := newTestServer(t, nil)

	tests := []struct {
		name    string
		body    any
		wantErr string
		details bool
	}{
		{"missing content", map[string]string{"fileName": "x.csv"}, "csvContent is required", false},
		{"header only", map[string]string{"csvContent": "Date,Description,Amount\n"}, "CSV must have at least a header and one data row", false},
		{"unknown columns", map[string]string{"csvContent": "Foo,Bar\n1,2"}, "CSV processing failed", true},
		{"not json", "{", "Invalid request body", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rec *httptest.ResponseRecorder
			var body map[string]any
			if s, ok := tt.body.(string); ok {
				rec = httptest.NewRecorder()
				srv.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/upload/csv", strings.NewReader(s)))
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			} else {
				rec, body = srv.do(t, http.MethodPost, "/upload/csv", tt.body)
			}
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.wantErr, body["error"])
			if tt.details {
				assert.NotEmpty(t, body["details"])
			}
		})
	}
}

func TestListTransactions_BadParams(t *testing.T) {
	srv := newTestServer(t, nil)
	for _, q := range []string{"limit=abc", "limit=-1", "startDate=06/01/2025", "endDate=2025-13-01", "startDate=2025-06-02&endDate=2025-06-01"} {
		t.Run(q, func(t *testing.T) {
			rec, _ := srv.do(t, http.MethodGet, "/transactions?"+q, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestDeleteUpload_MissingID(t *testing.T) {
	srv := newTestServer(t, nil)
	rec, body := srv.do(t, http.MethodDelete, "/uploads/", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Upload ID is required", body["error"])

	rec, _ = srv.do(t, http.MethodGet, "/uploads/abc", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestUploadReceipt(t *testing.T) {
	image := base64.StdEncoding.EncodeToString([]byte{0xff, 0xd8, 0xff})

	t.Run("success", func(t *testing.T) {
		srv := newTestServer(t, func(ctx context.Context, img []byte, mime string) (*receipt.Analysis, error) {
			assert.Equal(t, []byte{0xff, 0xd8, 0xff}, img)
			assert.Equal(t, "image/png", mime)
			return &receipt.Analysis{
				Summary:    receipt.Summary{Total: receipt.NewMoney(decimal.RequireFromString("23.50")), Date: "06/20/2025"},
				VendorInfo: receipt.VendorInfo{Name: "Whole Foods Market"},
				LineItems: []receipt.LineItem{
					{Description: "Bananas", TotalPrice: receipt.NewMoney(decimal.RequireFromString("3.50"))},
				},
			}, nil
		})
		rec, body := srv.do(t, http.MethodPost, "/upload/receipt", map[string]string{
			"imageData": "data:image/png;base64," + image, "fileName": "r.png", "fileType": "image/png",
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "Receipt processed successfully", body["message"])
		tx := body["transaction"].(map[string]any)
		assert.Equal(t, "Whole Foods Market - Receipt", tx["name"])
		assert.Len(t, body["lineItems"], 1)
		assert.Equal(t, 2, srv.store.Len())
	})

	tests := []struct {
		name     string
		analyze  receipt.AnalyzerFunc
		body     map[string]string
		wantCode int
	}{
		{"missing image", nil, map[string]string{}, http.StatusBadRequest},
		{"bad base64", nil, map[string]string{"imageData": "%%%"}, http.StatusBadRequest},
		{"zero total", func(context.Context, []byte, string) (*receipt.Analysis, error) {
			return &receipt.Analysis{}, nil
		}, map[string]string{"imageData": image}, http.StatusUnprocessableEntity},
		{"ocr failure", func(context.Context, []byte, string) (*receipt.Analysis, error) {
			return nil, errors.New("model timeout")
		}, map[string]string{"imageData": image}, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, tt.analyze)
			rec, _ := srv.do(t, http.MethodPost, "/upload/receipt", tt.body)
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
		})
	}
}

func TestIngestEmail(t *testing.T) {
	srv := newTestServer(t, nil)

	rec, body := srv.do(t, http.MethodPost, "/ingest/email", map[string]any{
		"messageId": "m-1",
		"from":      "auto-confirm@amazon.com",
		"subject":   "Your Amazon.com order",
		"body":      "Order #112-3456789-0123456\nOrder Total: $24.99",
		"date":      "2025-06-18T09:30:00Z",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "amazon_m-1", body["transaction"].(map[string]any)["id"])

	rec, body = srv.do(t, http.MethodPost, "/ingest/email", map[string]any{
		"messageId": "m-2", "from": "news@blog.io", "subject": "Weekly digest",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "Email is not a receipt", body["error"])

	rec, _ = srv.do(t, http.MethodPost, "/ingest/email", map[string]any{"subject": "Your receipt"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBankSyncJobs(t *testing.T) {
	srv := newTestServer(t, nil)

	rec, body := srv.do(t, http.MethodPost, "/sync/banklink", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, string(jobs.JobStatusPending), body["status"])
	jobID := body["job_id"].(string)

	rec, body = srv.do(t, http.MethodGet, "/jobs/"+jobID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(jobs.JobTypeBankSync), body["type"])
	assert.Equal(t, jobs.TriggerAPI, body["trigger"])

	rec, body = srv.do(t, http.MethodGet, "/jobs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["count"])

	rec, _ = srv.do(t, http.MethodGet, "/jobs/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBankSync_NotConfigured(t *testing.T) {
	h := NewRouter(Deps{Jobs: inmemory.NewStore(), Log: logger.Nop()})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sync/banklink", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestOptionsPreflight(t *testing.T) {
	srv := newTestServer(t, nil)
	for _, path := range []string{"/upload/csv", "/uploads/abc", "/anything"} {
		rec := httptest.NewRecorder()
		srv.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Body.String())
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestHealthStatusNotFound(t *testing.T) {
	srv := newTestServer(t, nil)

	rec, body := srv.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])

	rec, body = srv.do(t, http.MethodGet, "/status", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "running", body["status"])
	assert.Equal(t, float64(0), body["transactions"])

	rec, body = srv.do(t, http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Not found", body["error"])
	assert.Equal(t, "/nope", body["path"])
	assert.Equal(t, http.MethodGet, body["method"])
	assert.Len(t, body["available_endpoints"], len(Endpoints))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}
