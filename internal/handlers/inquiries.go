package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"load-triage/internal/database"
)

// InquiryStore reads the triage history
type InquiryStore interface {
	List(limit int) ([]database.Inquiry, error)
	GetByEmailID(emailID string) (*database.Inquiry, error)
}

// InquiryHandler serves the triage history
type InquiryHandler struct {
	store  InquiryStore
	logger *slog.Logger
}

// NewInquiryHandler creates a new inquiry handler
func NewInquiryHandler(store InquiryStore, logger *slog.Logger) *InquiryHandler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &InquiryHandler{store: store, logger: logger}
}

// List handles GET /api/inquiries
func (h *InquiryHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := database.DefaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	inquiries, err := h.store.List(limit)
	if err != nil {
		h.logger.Error("Failed to list inquiries", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to list inquiries")
		return
	}
	writeJSON(w, http.StatusOK, inquiries)
}

// Get handles GET /api/inquiries/{emailID}
func (h *InquiryHandler) Get(w http.ResponseWriter, r *http.Request) {
	emailID := chi.URLParam(r, "emailID")

	inquiry, err := h.store.GetByEmailID(emailID)
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Inquiry not found")
		return
	}
	if err != nil {
		h.logger.Error("Failed to get inquiry", "email_id", emailID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to get inquiry")
		return
	}
	writeJSON(w, http.StatusOK, inquiry)
}
