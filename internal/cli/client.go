package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"load-triage/internal/database"
	"load-triage/internal/email"
	"load-triage/internal/handlers"
	"load-triage/internal/triage"
)

// Client talks to a running load-triage server
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new API client; apiKey may be empty when the server has no auth
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// APIError represents an error from the API
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Code, e.Message)
}

// doRequest performs an HTTP request and decodes a JSON response into out
func (c *Client) doRequest(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	// Health reports 503 with a body worth decoding
	if resp.StatusCode >= 400 && !(resp.StatusCode == http.StatusServiceUnavailable && path == "/api/health") {
		var errBody handlers.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&errBody); err != nil || errBody.Error == "" {
			errBody.Error = resp.Status
		}
		return &APIError{Code: resp.StatusCode, Message: errBody.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// HealthCheck returns the server health report
func (c *Client) HealthCheck(ctx context.Context) (*handlers.HealthResponse, error) {
	var health handlers.HealthResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/health", nil, &health); err != nil {
		return nil, err
	}
	return &health, nil
}

// Triage posts msg to the webhook and returns the server's reply
func (c *Client) Triage(ctx context.Context, msg email.RawEmail) (*triage.Result, error) {
	var result triage.Result
	if err := c.doRequest(ctx, http.MethodPost, "/api/webhook", msg, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Inquiries returns the most recent triage history entries
func (c *Client) Inquiries(ctx context.Context, limit int) ([]database.Inquiry, error) {
	path := "/api/inquiries"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}

	var inquiries []database.Inquiry
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &inquiries); err != nil {
		return nil, err
	}
	return inquiries, nil
}

// Inquiry returns the latest triage history entry for an email
func (c *Client) Inquiry(ctx context.Context, emailID string) (*database.Inquiry, error) {
	var inquiry database.Inquiry
	if err := c.doRequest(ctx, http.MethodGet, "/api/inquiries/"+url.PathEscape(emailID), nil, &inquiry); err != nil {
		return nil, err
	}
	return &inquiry, nil
}
