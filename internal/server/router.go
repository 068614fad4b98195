package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"load-triage/internal/handlers"
)

// Handlers are the API handlers mounted by NewRouter; Admin may be nil
type Handlers struct {
	Triage    *handlers.TriageHandler
	Inquiries *handlers.InquiryHandler
	Health    *handlers.HealthHandler
	Admin     *handlers.AdminHandler
}

// RouterConfig configures NewRouter
type RouterConfig struct {
	// APIKey enables bearer auth on every /api route except health
	APIKey string
	// RequestTimeout bounds each request; triage with a portal lookup is the slowest
	RequestTimeout time.Duration
	Logger         *slog.Logger
}

// NewRouter builds the chi router serving the load triage API
func NewRouter(h *Handlers, config *RouterConfig) http.Handler {
	if config == nil {
		config = &RouterConfig{}
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	timeout := config.RequestTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(LoggingMiddleware(logger))
	r.Use(RecoveryMiddleware(logger))
	r.Use(CORSMiddleware)
	r.Use(ContentTypeMiddleware)
	r.Use(SecurityMiddleware)
	r.Use(middleware.Timeout(timeout))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health.HealthCheck)

		r.Group(func(r chi.Router) {
			if config.APIKey != "" {
				r.Use(AuthMiddleware(config.APIKey, logger))
			}

			r.HandleFunc("/webhook", h.Triage.Webhook)
			r.HandleFunc("/inbound/mime", h.Triage.InboundMIME)
			r.Post("/extract", h.Triage.Extract)
			r.Post("/mine", h.Triage.Mine)

			r.Get("/inquiries", h.Inquiries.List)
			r.Get("/inquiries/{emailID}", h.Inquiries.Get)

			if h.Admin != nil {
				r.Get("/admin/poller/status", h.Admin.GetPollerStatus)
				r.Post("/admin/poller/pause", h.Admin.PausePoller)
				r.Post("/admin/poller/resume", h.Admin.ResumePoller)
			}
		})
	})

	return r
}
