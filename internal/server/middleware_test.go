package server

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newBufferLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}

func TestLoggingMiddleware(t *testing.T) {
	tests := []struct {
		name   string
		status int
		level  string
	}{
		{"success logs at info", http.StatusOK, "level=INFO"},
		{"client error logs at warn", http.StatusNotFound, "level=WARN"},
		{"server error logs at error", http.StatusBadGateway, "level=ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, buf := newBufferLogger()
			handler := LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte("test"))
			}))

			req := httptest.NewRequest("GET", "/test", nil)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.status {
				t.Errorf("Expected status %d, got %d", tt.status, w.Code)
			}
			if w.Body.String() != "test" {
				t.Errorf("Expected body 'test', got '%s'", w.Body.String())
			}

			line := buf.String()
			if !strings.Contains(line, tt.level) || !strings.Contains(line, "path=/test") {
				t.Errorf("Unexpected log line: %s", line)
			}
		})
	}
}

func TestCORSMiddleware(t *testing.T) {
	handler := CORSMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	tests := []struct {
		method string
		status int
	}{
		{http.MethodPost, http.StatusAccepted},
		{http.MethodOptions, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(tt.method, "/api/webhook", nil))

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
			assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Authorization")
		})
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	logger, buf := newBufferLogger()
	panicHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("test panic")
	})

	middleware := RecoveryMiddleware(logger)(panicHandler)

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()

	middleware.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Internal Server Error") {
		t.Error("Expected error message in response body")
	}
	if !strings.Contains(buf.String(), "test panic") {
		t.Errorf("Expected panic to be logged, got %s", buf.String())
	}
}

func TestContentTypeMiddleware(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	middleware := ContentTypeMiddleware(handler)

	tests := []struct {
		path        string
		expectJSON  bool
		description string
	}{
		{"/api/inquiries", true, "API route should get JSON content type"},
		{"/api/health", true, "API health route should get JSON content type"},
		{"/", false, "Non-API route should not get JSON content type"},
		{"/favicon.ico", false, "Other routes should not get JSON content type"},
	}

	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			req := httptest.NewRequest("GET", tt.path, nil)
			w := httptest.NewRecorder()

			middleware.ServeHTTP(w, req)

			contentType := w.Header().Get("Content-Type")
			if tt.expectJSON && contentType != "application/json" {
				t.Errorf("Expected JSON content type for %s, got '%s'", tt.path, contentType)
			}
			if !tt.expectJSON && contentType == "application/json" {
				t.Errorf("Did not expect JSON content type for %s, got '%s'", tt.path, contentType)
			}
		})
	}
}

func TestSecurityMiddleware(t *testing.T) {
	w := httptest.NewRecorder()
	SecurityMiddleware(http.NotFoundHandler()).ServeHTTP(w, httptest.NewRequest("GET", "/api/inquiries", nil))

	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "1; mode=block", w.Header().Get("X-XSS-Protection"))
}

func TestAuthMiddleware(t *testing.T) {
	logger, buf := newBufferLogger()
	handler := AuthMiddleware("s3cret-key", logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		status int
		reason string
	}{
		{"valid key", "Bearer s3cret-key", http.StatusNoContent, ""},
		{"missing header", "", http.StatusUnauthorized, "missing authorization header"},
		{"basic auth", "Basic czNjcmV0LWtleQ==", http.StatusUnauthorized, "invalid authorization format"},
		{"wrong key", "Bearer s3cret-kez", http.StatusUnauthorized, "invalid API key"},
		{"prefix of key", "Bearer s3cret", http.StatusUnauthorized, "invalid API key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			req := httptest.NewRequest("POST", "/api/webhook", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			if w.Code != tt.status {
				t.Errorf("Expected status %d, got %d", tt.status, w.Code)
			}
			if tt.reason != "" {
				if w.Body.String() != `{"error":"Unauthorized"}` {
					t.Errorf("Unexpected body %q", w.Body.String())
				}
				if !strings.Contains(buf.String(), tt.reason) {
					t.Errorf("Expected reason %q in log, got %s", tt.reason, buf.String())
				}
			}
		})
	}
}

func TestChain(t *testing.T) {
	var calls []string
	tag := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls = append(calls, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	handler := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, "handler")
	}), tag("outer"), tag("inner"))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, []string{"outer", "inner", "handler"}, calls)
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name     string
		headers  map[string]string
		remote   string
		expected string
	}{
		{"forwarded for", map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}, "10.0.0.1:5000", "203.0.113.7"},
		{"real ip", map[string]string{"X-Real-IP": " 198.51.100.2 "}, "10.0.0.1:5000", "198.51.100.2"},
		{"remote addr", nil, "192.0.2.10:41234", "192.0.2.10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := getClientIP(req); got != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, got)
			}
		})
	}
}
