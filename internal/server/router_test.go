package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"load-triage/internal/database"
	"load-triage/internal/handlers"
	"load-triage/internal/triage"
)

// setupTestServer serves the full API over a temp-file database with no portal lookup
func setupTestServer(t *testing.T, apiKey string, withAdmin bool) *httptest.Server {
	t.Helper()

	db, err := database.Open(filepath.Join(t.TempDir(), "server.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	service, err := triage.NewService(&triage.Config{History: db.Inquiries})
	require.NoError(t, err)

	h := &Handlers{
		Triage:    handlers.NewTriageHandler(service, nil, nil, nil),
		Inquiries: handlers.NewInquiryHandler(db.Inquiries, nil),
		Health:    handlers.NewHealthHandler(db, nil, nil),
	}
	if withAdmin {
		h.Admin = handlers.NewAdminHandler(nil, nil)
	}

	srv := httptest.NewServer(NewRouter(h, &RouterConfig{APIKey: apiKey}))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, token string, body any) *http.Response {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestRouter_WebhookToHistory(t *testing.T) {
	srv := setupTestServer(t, "", false)

	resp := do(t, http.MethodPost, srv.URL+"/api/webhook", "", map[string]any{
		"id":          "AAMk-42",
		"subject":     "Reefer out of Dallas",
		"bodyPreview": "Can you cover order #1234567?",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.NotEmpty(t, resp.Header.Get("X-Content-Type-Options"))

	var result map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, true, result["success"])
	assert.Equal(t, "1234567", result["loadReference"])
	assert.Equal(t, "Re: Reefer out of Dallas", result["responseSubject"])
	assert.Equal(t, triage.ModeBasic, result["mode"])
	assert.Equal(t, false, result["quotefactoryAttempted"])

	resp = do(t, http.MethodGet, srv.URL+"/api/inquiries/AAMk-42", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var inquiry database.Inquiry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&inquiry))
	assert.Equal(t, "1234567", inquiry.LoadReference)
	assert.Equal(t, database.SourceWebhook, inquiry.Source)
	assert.Equal(t, result["requestId"], inquiry.RequestID)

	resp = do(t, http.MethodGet, srv.URL+"/api/inquiries?limit=5", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var inquiries []database.Inquiry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&inquiries))
	assert.Len(t, inquiries, 1)
}

func TestRouter_WebhookMethodNotAllowed(t *testing.T) {
	srv := setupTestServer(t, "", false)

	resp := do(t, http.MethodGet, srv.URL+"/api/webhook", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "Method not allowed", body["error"])
}

func TestRouter_Auth(t *testing.T) {
	srv := setupTestServer(t, "s3cret", false)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   any
		status int
	}{
		{"health is public", http.MethodGet, "/api/health", "", nil, http.StatusOK},
		{"webhook needs a token", http.MethodPost, "/api/webhook", "", map[string]string{"id": "x"}, http.StatusUnauthorized},
		{"wrong token", http.MethodGet, "/api/inquiries", "nope", nil, http.StatusUnauthorized},
		{"extract with token", http.MethodPost, "/api/extract", "s3cret", map[string]string{"text": "PO 8812345"}, http.StatusOK},
		{"inquiries with token", http.MethodGet, "/api/inquiries", "s3cret", nil, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, tt.method, srv.URL+tt.path, tt.token, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestRouter_AdminRoutes(t *testing.T) {
	without := setupTestServer(t, "", false)
	resp := do(t, http.MethodGet, without.URL+"/api/admin/poller/status", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	with := setupTestServer(t, "", true)
	resp = do(t, http.MethodGet, with.URL+"/api/admin/poller/status", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status handlers.PollerStatusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.False(t, status.Enabled)

	resp = do(t, http.MethodPost, with.URL+"/api/admin/poller/pause", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestRouter_UnknownRoute(t *testing.T) {
	srv := setupTestServer(t, "", false)

	resp := do(t, http.MethodGet, srv.URL+"/api/shipments", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
