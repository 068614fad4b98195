package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"load-triage/internal/database"
	"load-triage/internal/miner"
)

// CachedDetails is an in-memory cache entry with expiry
type CachedDetails struct {
	Details   *miner.LoadDetails
	CachedAt  time.Time
	ExpiresAt time.Time
}

// IsExpired checks if the cached entry has expired
func (c *CachedDetails) IsExpired() bool {
	return time.Now().After(c.ExpiresAt)
}

// Manager keeps mined load details per reference in memory, backed by SQLite
type Manager struct {
	store    *database.LookupCacheStore
	memory   sync.Map // map[string]*CachedDetails
	disabled bool
	ttl      time.Duration
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewManager creates a cache manager and warms it from the store
func NewManager(store *database.LookupCacheStore, disabled bool, ttl time.Duration, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	ctx, cancel := context.WithCancel(context.Background())

	manager := &Manager{
		store:    store,
		disabled: disabled,
		ttl:      ttl,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}

	if !disabled {
		if err := manager.loadFromDatabase(); err != nil {
			logger.Warn("Failed to load lookup cache from database", "error", err)
		}

		go manager.cleanupLoop()
	}

	return manager
}

// Get returns cached details for a reference; a miss is (nil, nil)
func (m *Manager) Get(reference string) (*miner.LoadDetails, error) {
	if m.disabled {
		return nil, nil
	}

	if value, ok := m.memory.Load(reference); ok {
		cached := value.(*CachedDetails)
		if !cached.IsExpired() {
			return cached.Details, nil
		}
		m.memory.Delete(reference)
	}

	details, err := m.store.Get(reference)
	if err != nil {
		return nil, fmt.Errorf("failed to get from database cache: %w", err)
	}

	if details != nil {
		now := time.Now()
		m.memory.Store(reference, &CachedDetails{
			Details:   details,
			CachedAt:  now,
			ExpiresAt: now.Add(m.ttl),
		})
	}

	return details, nil
}

// Set stores details in both memory and database
func (m *Manager) Set(reference string, details *miner.LoadDetails) error {
	if m.disabled {
		return nil
	}

	if err := m.store.Set(reference, details, m.ttl); err != nil {
		return fmt.Errorf("failed to store in database cache: %w", err)
	}

	now := time.Now()
	m.memory.Store(reference, &CachedDetails{
		Details:   details,
		CachedAt:  now,
		ExpiresAt: now.Add(m.ttl),
	})

	return nil
}

// Delete removes a reference from both memory and database
func (m *Manager) Delete(reference string) error {
	if m.disabled {
		return nil
	}

	m.memory.Delete(reference)

	if err := m.store.Delete(reference); err != nil {
		return fmt.Errorf("failed to delete from database cache: %w", err)
	}

	return nil
}

// ForceInvalidate drops a cached entry so the next triage looks the load up again.
// It returns the age of the dropped in-memory entry, or nil if none was held.
func (m *Manager) ForceInvalidate(reference string) (*time.Duration, error) {
	if m.disabled {
		return nil, nil
	}

	var cacheAge *time.Duration
	if value, ok := m.memory.Load(reference); ok {
		age := time.Since(value.(*CachedDetails).CachedAt)
		cacheAge = &age
	}

	if err := m.Delete(reference); err != nil {
		return cacheAge, fmt.Errorf("failed to invalidate cache: %w", err)
	}

	return cacheAge, nil
}

// IsEnabled returns true if caching is enabled
func (m *Manager) IsEnabled() bool {
	return !m.disabled
}

// GetTTL returns the cache TTL duration
func (m *Manager) GetTTL() time.Duration {
	return m.ttl
}

func (m *Manager) loadFromDatabase() error {
	entries, err := m.store.LoadAll()
	if err != nil {
		return err
	}

	now := time.Now()
	for reference, details := range entries {
		m.memory.Store(reference, &CachedDetails{
			Details:   details,
			CachedAt:  now,
			ExpiresAt: now.Add(m.ttl),
		})
	}

	if len(entries) > 0 {
		m.logger.Info("Loaded lookup cache entries from database", "count", len(entries))
	}

	return nil
}

func (m *Manager) cleanupLoop() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.cleanup()
		}
	}
}

// cleanup removes expired entries from both memory and database
func (m *Manager) cleanup() {
	memoryCount := 0
	m.memory.Range(func(key, value any) bool {
		if value.(*CachedDetails).IsExpired() {
			m.memory.Delete(key)
			memoryCount++
		}
		return true
	})

	removed, err := m.store.DeleteExpired()
	if err != nil {
		m.logger.Warn("Failed to clean up expired database cache entries", "error", err)
	}

	if memoryCount > 0 || removed > 0 {
		m.logger.Debug("Cleaned up expired lookup cache entries", "memory", memoryCount, "database", removed)
	}
}

// GetStats returns cache statistics
func (m *Manager) GetStats() (CacheStats, error) {
	stats := CacheStats{
		Disabled: m.disabled,
		TTL:      m.ttl.String(),
	}

	if m.disabled {
		return stats, nil
	}

	m.memory.Range(func(key, value any) bool {
		stats.MemoryTotal++
		if value.(*CachedDetails).IsExpired() {
			stats.MemoryExpired++
		}
		return true
	})

	dbTotal, dbExpired, err := m.store.GetStats()
	if err != nil {
		return stats, fmt.Errorf("failed to get database stats: %w", err)
	}

	stats.DatabaseTotal = dbTotal
	stats.DatabaseExpired = dbExpired

	return stats, nil
}

// Close stops the cleanup goroutine
func (m *Manager) Close() {
	if m.cancel != nil {
		m.cancel()
	}
}

// CacheStats represents cache statistics
type CacheStats struct {
	Disabled        bool   `json:"disabled"`
	TTL             string `json:"ttl"`
	MemoryTotal     int    `json:"memory_total"`
	MemoryExpired   int    `json:"memory_expired"`
	DatabaseTotal   int    `json:"database_total"`
	DatabaseExpired int    `json:"database_expired"`
}
