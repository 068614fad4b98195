package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"load-triage/internal/database"
	"load-triage/internal/email"
	"load-triage/internal/miner"
	"load-triage/internal/parser"
	"load-triage/internal/reply"
	"load-triage/internal/triage"
)

// Triager produces a reply for an inbound email
type Triager interface {
	Triage(ctx context.Context, msg email.RawEmail, opts triage.Options) *triage.Result
}

// TriageHandler serves the inbound email endpoints and the extraction tools
type TriageHandler struct {
	triager   Triager
	extractor *parser.ReferenceExtractor
	miner     *miner.Miner
	logger    *slog.Logger
}

// NewTriageHandler creates a new triage handler; nil extractor and miner get defaults
func NewTriageHandler(triager Triager, extractor *parser.ReferenceExtractor, m *miner.Miner, logger *slog.Logger) *TriageHandler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if extractor == nil {
		extractor = parser.NewReferenceExtractor(&parser.ExtractorConfig{Logger: logger})
	}
	if m == nil {
		m = miner.New(&miner.Config{Logger: logger})
	}
	return &TriageHandler{
		triager:   triager,
		extractor: extractor,
		miner:     m,
		logger:    logger,
	}
}

// FallbackResponse is returned when an inbound email could not be triaged
type FallbackResponse struct {
	Success         bool      `json:"success"`
	Message         string    `json:"message"`
	ResponseSubject string    `json:"responseSubject"`
	ResponseBody    string    `json:"responseBody"`
	Timestamp       time.Time `json:"timestamp"`
}

// Webhook handles POST /api/webhook
func (h *TriageHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	defer h.recoverWithFallback(w)

	var msg email.RawEmail
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&msg); err != nil {
		h.logger.Warn("Invalid webhook payload", "error", err)
		h.writeFallback(w, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	h.triageAndRespond(w, r, msg, database.SourceWebhook)
}

// InboundMIME handles POST /api/inbound/mime with a raw RFC 822 message body
func (h *TriageHandler) InboundMIME(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	defer h.recoverWithFallback(w)

	msg, err := email.ParseMIME(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.logger.Warn("Invalid MIME message", "error", err)
		h.writeFallback(w, fmt.Sprintf("Invalid MIME message: %v", err))
		return
	}

	h.triageAndRespond(w, r, msg.ToRawEmail(), database.SourceMIME)
}

func (h *TriageHandler) triageAndRespond(w http.ResponseWriter, r *http.Request, msg email.RawEmail, source string) {
	result := h.triager.Triage(r.Context(), msg, triage.Options{Source: source})
	writeJSON(w, http.StatusOK, result)
}

func (h *TriageHandler) recoverWithFallback(w http.ResponseWriter) {
	if err := recover(); err != nil {
		h.logger.Error("Panic while triaging inbound email", "panic", err)
		h.writeFallback(w, "Error processing request")
	}
}

func (h *TriageHandler) writeFallback(w http.ResponseWriter, message string) {
	fallback := reply.Fallback()
	writeJSON(w, http.StatusOK, FallbackResponse{
		Success:         true,
		Message:         message,
		ResponseSubject: fallback.Subject,
		ResponseBody:    fallback.Body,
		Timestamp:       time.Now().UTC(),
	})
}

// TextRequest is the body accepted by the extraction tools
type TextRequest struct {
	Text string `json:"text"`
}

// ExtractResponse reports the load reference found in a text
type ExtractResponse struct {
	LoadReference *string `json:"loadReference"`
	Rule          string  `json:"rule,omitempty"`
}

// Extract handles POST /api/extract
func (h *TriageHandler) Extract(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeText(w, r)
	if !ok {
		return
	}

	var response ExtractResponse
	if match, found := h.extractor.ExtractMatch(req.Text); found {
		response.LoadReference = &match.Value
		response.Rule = match.Rule
	}
	writeJSON(w, http.StatusOK, response)
}

// Mine handles POST /api/mine
func (h *TriageHandler) Mine(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeText(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, h.miner.Mine(req.Text))
}

func (h *TriageHandler) decodeText(w http.ResponseWriter, r *http.Request) (TextRequest, bool) {
	var req TextRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.logger.Warn("Invalid JSON body", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return req, false
	}
	return req, true
}
