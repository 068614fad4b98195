// Copyright 2024 Load Triage
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package database

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a lookup by key matches no row
var ErrNotFound = errors.New("not found")

// DB wraps the sql.DB connection and provides access to stores
type DB struct {
	*sql.DB
	Inquiries   *InquiryStore
	LookupCache *LookupCacheStore
}

// Open opens a database connection and initializes stores
func Open(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Every connection to :memory: is a separate database
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	database := &DB{
		DB:          db,
		Inquiries:   NewInquiryStore(db),
		LookupCache: NewLookupCacheStore(db),
	}

	if err := database.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return database, nil
}

// migrate creates the database schema
func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS inquiries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		request_id TEXT NOT NULL UNIQUE,
		email_id TEXT NOT NULL DEFAULT '',
		source TEXT NOT NULL,
		subject TEXT NOT NULL,
		load_reference TEXT NOT NULL DEFAULT '',
		reference_rule TEXT NOT NULL DEFAULT '',
		load_info TEXT,
		lookup_attempted BOOLEAN NOT NULL DEFAULT FALSE,
		lookup_succeeded BOOLEAN NOT NULL DEFAULT FALSE,
		lookup_error TEXT NOT NULL DEFAULT '',
		response_subject TEXT NOT NULL,
		response_body TEXT NOT NULL,
		mode TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS lookup_cache (
		reference TEXT PRIMARY KEY,
		details_data TEXT NOT NULL,
		cached_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_inquiries_email ON inquiries(email_id);
	CREATE INDEX IF NOT EXISTS idx_inquiries_reference ON inquiries(load_reference, created_at);
	CREATE INDEX IF NOT EXISTS idx_lookup_cache_expires ON lookup_cache(expires_at);
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return db.migrateDraftFields()
}

// migrateDraftFields adds reply draft tracking to databases created before the Gmail poller
func (db *DB) migrateDraftFields() error {
	var columnExists int
	err := db.QueryRow(`
		SELECT COUNT(*)
		FROM pragma_table_info('inquiries')
		WHERE name = 'draft_id'
	`).Scan(&columnExists)
	if err != nil {
		return fmt.Errorf("failed to check draft_id column existence: %w", err)
	}

	if columnExists == 0 {
		alterQueries := []string{
			"ALTER TABLE inquiries ADD COLUMN reply_kind TEXT NOT NULL DEFAULT ''",
			"ALTER TABLE inquiries ADD COLUMN draft_id TEXT NOT NULL DEFAULT ''",
		}

		for _, query := range alterQueries {
			if _, err := db.Exec(query); err != nil {
				return fmt.Errorf("failed to execute draft migration query '%s': %w", query, err)
			}
		}
	}

	return nil
}

// IsHealthy checks if the database connection is healthy
func (db *DB) IsHealthy() error {
	return db.Ping()
}
