package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"load-triage/internal/miner"
)

// LookupCacheStore persists mined load details per reference
type LookupCacheStore struct {
	db *sql.DB
}

// NewLookupCacheStore creates a new lookup cache store
func NewLookupCacheStore(db *sql.DB) *LookupCacheStore {
	return &LookupCacheStore{db: db}
}

// Get returns the cached details for a reference; a miss is (nil, nil)
func (s *LookupCacheStore) Get(reference string) (*miner.LoadDetails, error) {
	query := `SELECT details_data, expires_at FROM lookup_cache WHERE reference = ?`

	var detailsData string
	var expiresAt time.Time

	err := s.db.QueryRow(query, reference).Scan(&detailsData, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get cached details: %w", err)
	}

	if time.Now().After(expiresAt) {
		if err := s.Delete(reference); err != nil {
			return nil, err
		}
		return nil, nil
	}

	var details miner.LoadDetails
	if err := json.Unmarshal([]byte(detailsData), &details); err != nil {
		return nil, fmt.Errorf("failed to deserialize cached details: %w", err)
	}

	return &details, nil
}

// Set stores details for a reference with the given TTL
func (s *LookupCacheStore) Set(reference string, details *miner.LoadDetails, ttl time.Duration) error {
	detailsData, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("failed to serialize details: %w", err)
	}

	now := time.Now().UTC()
	query := `INSERT OR REPLACE INTO lookup_cache (reference, details_data, cached_at, expires_at)
			  VALUES (?, ?, ?, ?)`

	if _, err := s.db.Exec(query, reference, string(detailsData), now, now.Add(ttl)); err != nil {
		return fmt.Errorf("failed to cache details: %w", err)
	}

	return nil
}

// Delete removes the cached entry for a reference
func (s *LookupCacheStore) Delete(reference string) error {
	if _, err := s.db.Exec(`DELETE FROM lookup_cache WHERE reference = ?`, reference); err != nil {
		return fmt.Errorf("failed to delete cached entry: %w", err)
	}
	return nil
}

// DeleteExpired removes all expired entries and returns how many were removed
func (s *LookupCacheStore) DeleteExpired() (int64, error) {
	result, err := s.db.Exec(`DELETE FROM lookup_cache WHERE expires_at <= ?`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired entries: %w", err)
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count expired entries: %w", err)
	}
	return removed, nil
}

// LoadAll returns every non-expired entry, used to warm the in-memory cache
func (s *LookupCacheStore) LoadAll() (map[string]*miner.LoadDetails, error) {
	rows, err := s.db.Query(`SELECT reference, details_data FROM lookup_cache WHERE expires_at > ?`, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to load cache entries: %w", err)
	}
	defer rows.Close()

	entries := make(map[string]*miner.LoadDetails)
	for rows.Next() {
		var reference, detailsData string
		if err := rows.Scan(&reference, &detailsData); err != nil {
			return nil, fmt.Errorf("failed to scan cache entry: %w", err)
		}

		var details miner.LoadDetails
		if err := json.Unmarshal([]byte(detailsData), &details); err != nil {
			// Skip entries written by an incompatible version
			continue
		}
		entries[reference] = &details
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cache entries: %w", err)
	}

	return entries, nil
}

// GetStats returns the total and expired entry counts
func (s *LookupCacheStore) GetStats() (int, int, error) {
	var total, expired int

	if err := s.db.QueryRow("SELECT COUNT(*) FROM lookup_cache").Scan(&total); err != nil {
		return 0, 0, fmt.Errorf("failed to get total cache entries: %w", err)
	}

	err := s.db.QueryRow("SELECT COUNT(*) FROM lookup_cache WHERE expires_at <= ?", time.Now().UTC()).Scan(&expired)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to get expired cache entries: %w", err)
	}

	return total, expired, nil
}
