package banklink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultPageSize is the number of records requested per sync page.
const DefaultPageSize = 500

// HTTPClient calls the aggregator's REST API.
type HTTPClient struct {
	baseURL     string
	clientID    string
	secret      string
	accessToken string
	pageSize    int
	http        *http.Client
}

// HTTPConfig configures HTTPClient.
type HTTPConfig struct {
	BaseURL     string
	ClientID    string
	Secret      string
	AccessToken string
	PageSize    int
	Timeout     time.Duration
}

// NewHTTPClient creates an aggregator client.
func NewHTTPClient(cfg HTTPConfig) (*HTTPClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("NewHTTPClient: base URL is required")
	}
	if cfg.AccessToken == "" {
		return nil, fmt.Errorf("NewHTTPClient: access token is required")
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &HTTPClient{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		clientID:    cfg.ClientID,
		secret:      cfg.Secret,
		accessToken: cfg.AccessToken,
		pageSize:    cfg.PageSize,
		http:        &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type syncRequest struct {
	ClientID    string `json:"client_id,omitempty"`
	Secret      string `json:"secret,omitempty"`
	AccessToken string `json:"access_token"`
	Cursor      string `json:"cursor,omitempty"`
	Count       int    `json:"count"`
}

// APIError is a non-2xx response from the aggregator.
type APIError struct {
	StatusCode   int    `json:"-"`
	ErrorType    string `json:"error_type"`
	ErrorCode    string `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

func (e *APIError) Error() string {
	if e.ErrorCode == "" {
		return fmt.Sprintf("bank link API returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("bank link API returned status %d: %s: %s", e.StatusCode, e.ErrorCode, e.ErrorMessage)
}

// Sync implements the Client interface.
func (c *HTTPClient) Sync(ctx context.Context, cursor string) (*Page, error) {
	body, err := json.Marshal(syncRequest{
		ClientID:    c.clientID,
		Secret:      c.secret,
		AccessToken: c.accessToken,
		Cursor:      cursor,
		Count:       c.pageSize,
	})
	if err != nil {
		return nil, fmt.Errorf("Sync: encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transactions/sync", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("Sync: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("Sync: calling aggregator: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("Sync: reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(data, apiErr)
		return nil, apiErr
	}

	var page Page
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, fmt.Errorf("Sync: decoding response: %w", err)
	}
	return &page, nil
}

var _ Client = (*HTTPClient)(nil)
