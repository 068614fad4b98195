package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"load-triage/internal/database"
	"load-triage/internal/email"
	"load-triage/internal/miner"
	"load-triage/internal/reply"
	"load-triage/internal/triage"
)

// stubTriager records what it was asked to triage
type stubTriager struct {
	msg   email.RawEmail
	opts  triage.Options
	calls int
	panic bool
}

func (s *stubTriager) Triage(ctx context.Context, msg email.RawEmail, opts triage.Options) *triage.Result {
	s.calls++
	s.msg = msg
	s.opts = opts
	if s.panic {
		panic("formatter exploded")
	}
	reference := "1234567"
	return &triage.Result{
		Success:         true,
		RequestID:       "req-1",
		LoadReference:   &reference,
		ResponseSubject: "Re: " + msg.SubjectOrDefault(),
		ResponseBody:    "body",
		ReplyToEmailID:  msg.ID,
		Mode:            triage.ModeBasic,
	}
}

func decodeFallback(t *testing.T, w *httptest.ResponseRecorder) FallbackResponse {
	t.Helper()
	var response FallbackResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	return response
}

func TestWebhook(t *testing.T) {
	t.Run("triages the posted email", func(t *testing.T) {
		triager := &stubTriager{}
		handler := NewTriageHandler(triager, nil, nil, nil)

		body := `{"id":"AAMk1","subject":"Load","bodyPreview":"order 1234567","body":{"contentType":"text","content":"order 1234567"}}`
		req := httptest.NewRequest(http.MethodPost, "/api/webhook", strings.NewReader(body))
		w := httptest.NewRecorder()

		handler.Webhook(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
		assert.Equal(t, "AAMk1", triager.msg.ID)
		assert.Equal(t, "order 1234567", triager.msg.Body.Content)
		assert.Equal(t, database.SourceWebhook, triager.opts.Source)

		var response map[string]any
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, "1234567", response["loadReference"])
		assert.Equal(t, "AAMk1", response["replyToEmailId"])
		assert.Equal(t, "Re: Load", response["responseSubject"])
	})

	t.Run("rejects other methods", func(t *testing.T) {
		triager := &stubTriager{}
		handler := NewTriageHandler(triager, nil, nil, nil)

		w := httptest.NewRecorder()
		handler.Webhook(w, httptest.NewRequest(http.MethodGet, "/api/webhook", nil))

		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
		assert.JSONEq(t, `{"error":"Method not allowed"}`, w.Body.String())
		assert.Zero(t, triager.calls)
	})

	t.Run("invalid JSON gets the fallback reply", func(t *testing.T) {
		triager := &stubTriager{}
		handler := NewTriageHandler(triager, nil, nil, nil)

		w := httptest.NewRecorder()
		handler.Webhook(w, httptest.NewRequest(http.MethodPost, "/api/webhook", strings.NewReader("{not json")))

		require.Equal(t, http.StatusOK, w.Code)
		response := decodeFallback(t, w)
		assert.True(t, response.Success)
		assert.Contains(t, response.Message, "Invalid request body")
		assert.Equal(t, reply.FallbackSubject, response.ResponseSubject)
		assert.Equal(t, reply.FallbackBody, response.ResponseBody)
		assert.False(t, response.Timestamp.IsZero())
		assert.Zero(t, triager.calls)
	})

	t.Run("panics get the fallback reply", func(t *testing.T) {
		handler := NewTriageHandler(&stubTriager{panic: true}, nil, nil, nil)

		w := httptest.NewRecorder()
		handler.Webhook(w, httptest.NewRequest(http.MethodPost, "/api/webhook", strings.NewReader(`{"id":"x"}`)))

		require.Equal(t, http.StatusOK, w.Code)
		response := decodeFallback(t, w)
		assert.Equal(t, "Error processing request", response.Message)
		assert.Equal(t, reply.FallbackSubject, response.ResponseSubject)
	})
}

func TestInboundMIME(t *testing.T) {
	raw := "From: Shipper <shipper@example.com>\r\n" +
		"To: dispatch@example.com\r\n" +
		"Subject: Reefer load\r\n" +
		"Message-ID: <abc123@example.com>\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"Load # 4471123 picks up Monday\r\n"

	triager := &stubTriager{}
	handler := NewTriageHandler(triager, nil, nil, nil)

	w := httptest.NewRecorder()
	handler.InboundMIME(w, httptest.NewRequest(http.MethodPost, "/api/inbound/mime", strings.NewReader(raw)))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "abc123@example.com", triager.msg.ID)
	assert.Equal(t, "Reefer load", triager.msg.Subject)
	assert.Contains(t, triager.msg.Body.Content, "4471123")
	assert.Equal(t, database.SourceMIME, triager.opts.Source)

	w = httptest.NewRecorder()
	handler.InboundMIME(w, httptest.NewRequest(http.MethodPut, "/api/inbound/mime", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestExtract(t *testing.T) {
	handler := NewTriageHandler(&stubTriager{}, nil, nil, nil)

	tests := []struct {
		name      string
		body      string
		status    int
		reference any
		rule      string
	}{
		{"order number", `{"text":"Can you cover order #1234567?"}`, http.StatusOK, "1234567", "order_number"},
		{"no reference", `{"text":"Do you have a truck for Friday?"}`, http.StatusOK, nil, ""},
		{"invalid JSON", `{"text":`, http.StatusBadRequest, nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			handler.Extract(w, httptest.NewRequest(http.MethodPost, "/api/extract", strings.NewReader(tt.body)))

			require.Equal(t, tt.status, w.Code)
			if tt.status != http.StatusOK {
				assert.JSONEq(t, `{"error":"Invalid JSON"}`, w.Body.String())
				return
			}

			var response map[string]any
			require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
			assert.Equal(t, tt.reference, response["loadReference"])
			if tt.rule != "" {
				assert.Equal(t, tt.rule, response["rule"])
			}
		})
	}
}

func TestMine(t *testing.T) {
	handler := NewTriageHandler(&stubTriager{}, nil, nil, nil)

	text := `{"text":"Shipper: Dallas, TX 75201\nConsignee: Memphis, TN 38118\nWeight: 38,500 lbs"}`
	w := httptest.NewRecorder()
	handler.Mine(w, httptest.NewRequest(http.MethodPost, "/api/mine", strings.NewReader(text)))

	require.Equal(t, http.StatusOK, w.Code)

	var details miner.LoadDetails
	require.NoError(t, json.NewDecoder(w.Body).Decode(&details))
	require.NotNil(t, details.Pickup)
	require.NotNil(t, details.Delivery)
	assert.Equal(t, "Dallas, TX", details.Pickup.Location)
	assert.Equal(t, "Memphis, TN", details.Delivery.Location)
	assert.Equal(t, "38,500 lbs", details.Weight)
	assert.Equal(t, miner.DefaultRate, details.Rate)
}
