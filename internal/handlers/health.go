package handlers

import (
	"net/http"

	"load-triage/internal/browser"
	"load-triage/internal/cache"
)

// Pinger reports database health
type Pinger interface {
	IsHealthy() error
}

// PoolStatter reports browser pool usage
type PoolStatter interface {
	Stats() browser.Stats
}

// CacheStatter reports lookup cache usage
type CacheStatter interface {
	GetStats() (cache.CacheStats, error)
}

// HealthHandler handles health check requests
type HealthHandler struct {
	db    Pinger
	pool  PoolStatter
	cache CacheStatter
}

// NewHealthHandler creates a new health handler; pool and cache may be nil
func NewHealthHandler(db Pinger, pool PoolStatter, cache CacheStatter) *HealthHandler {
	return &HealthHandler{db: db, pool: pool, cache: cache}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status   string            `json:"status"`
	Database string            `json:"database"`
	Message  string            `json:"message,omitempty"`
	Browser  *browser.Stats    `json:"browser,omitempty"`
	Cache    *cache.CacheStats `json:"cache,omitempty"`
}

// HealthCheck handles GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:   "healthy",
		Database: "ok",
	}

	if h.pool != nil {
		stats := h.pool.Stats()
		response.Browser = &stats
	}
	if h.cache != nil {
		if stats, err := h.cache.GetStats(); err == nil {
			response.Cache = &stats
		}
	}

	if err := h.db.IsHealthy(); err != nil {
		response.Status = "unhealthy"
		response.Database = "error"
		response.Message = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, response)
		return
	}

	writeJSON(w, http.StatusOK, response)
}
