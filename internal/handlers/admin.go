package handlers

import (
	"log/slog"
	"net/http"
	"time"
)

// Poller is the background mailbox poller controlled through the admin API
type Poller interface {
	IsRunning() bool
	IsPaused() bool
	Pause()
	Resume()
}

// AdminHandler handles administrative operations
type AdminHandler struct {
	poller Poller
	logger *slog.Logger
}

// NewAdminHandler creates a new admin handler; poller may be nil when polling is off
func NewAdminHandler(poller Poller, logger *slog.Logger) *AdminHandler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &AdminHandler{poller: poller, logger: logger}
}

// PollerStatusResponse represents the status of the mailbox poller
type PollerStatusResponse struct {
	Enabled bool `json:"enabled"`
	Running bool `json:"running"`
	Paused  bool `json:"paused"`
}

// PollerActionResponse is returned by pause and resume
type PollerActionResponse struct {
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// GetPollerStatus handles GET /api/admin/poller/status
func (h *AdminHandler) GetPollerStatus(w http.ResponseWriter, r *http.Request) {
	if h.poller == nil {
		writeJSON(w, http.StatusOK, PollerStatusResponse{})
		return
	}

	writeJSON(w, http.StatusOK, PollerStatusResponse{
		Enabled: true,
		Running: h.poller.IsRunning(),
		Paused:  h.poller.IsPaused(),
	})
}

// PausePoller handles POST /api/admin/poller/pause
func (h *AdminHandler) PausePoller(w http.ResponseWriter, r *http.Request) {
	if h.poller == nil {
		writeError(w, http.StatusServiceUnavailable, "Mailbox poller not configured")
		return
	}

	h.poller.Pause()
	h.logger.Info("Mailbox poller paused via API")
	writeJSON(w, http.StatusOK, PollerActionResponse{
		Status:    "paused",
		Message:   "Mailbox poller has been paused",
		Timestamp: time.Now().UTC(),
	})
}

// ResumePoller handles POST /api/admin/poller/resume
func (h *AdminHandler) ResumePoller(w http.ResponseWriter, r *http.Request) {
	if h.poller == nil {
		writeError(w, http.StatusServiceUnavailable, "Mailbox poller not configured")
		return
	}

	h.poller.Resume()
	h.logger.Info("Mailbox poller resumed via API")
	writeJSON(w, http.StatusOK, PollerActionResponse{
		Status:    "resumed",
		Message:   "Mailbox poller has been resumed",
		Timestamp: time.Now().UTC(),
	})
}
