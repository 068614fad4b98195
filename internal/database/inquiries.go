package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Inquiry sources
const (
	SourceWebhook = "webhook"
	SourceMIME    = "mime"
	SourceGmail   = "gmail"
	SourceCLI     = "cli"
)

// DefaultListLimit caps List when no limit is given
const DefaultListLimit = 50

// Inquiry is one triaged inbound email and the reply produced for it
type Inquiry struct {
	ID              int64           `json:"id"`
	RequestID       string          `json:"requestId"`
	EmailID         string          `json:"emailId"`
	Source          string          `json:"source"`
	Subject         string          `json:"subject"`
	LoadReference   string          `json:"loadReference"`
	ReferenceRule   string          `json:"referenceRule,omitempty"`
	LoadInfo        json.RawMessage `json:"loadInfo,omitempty"`
	LookupAttempted bool            `json:"lookupAttempted"`
	LookupSucceeded bool            `json:"lookupSucceeded"`
	LookupError     string          `json:"lookupError,omitempty"`
	ReplyKind       string          `json:"replyKind"`
	ResponseSubject string          `json:"responseSubject"`
	ResponseBody    string          `json:"responseBody"`
	Mode            string          `json:"mode"`
	DraftID         string          `json:"draftId,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// InquiryStore handles database operations for triage history
type InquiryStore struct {
	db *sql.DB
}

// NewInquiryStore creates a new inquiry store
func NewInquiryStore(db *sql.DB) *InquiryStore {
	return &InquiryStore{db: db}
}

const inquiryColumns = `id, request_id, email_id, source, subject, load_reference, reference_rule,
	load_info, lookup_attempted, lookup_succeeded, lookup_error, reply_kind,
	response_subject, response_body, mode, draft_id, created_at`

// Record inserts an inquiry and fills in its ID and CreatedAt
func (s *InquiryStore) Record(inquiry *Inquiry) error {
	if inquiry.CreatedAt.IsZero() {
		inquiry.CreatedAt = time.Now().UTC()
	}

	var loadInfo sql.NullString
	if len(inquiry.LoadInfo) > 0 {
		loadInfo = sql.NullString{String: string(inquiry.LoadInfo), Valid: true}
	}

	query := `INSERT INTO inquiries (request_id, email_id, source, subject, load_reference,
			  reference_rule, load_info, lookup_attempted, lookup_succeeded, lookup_error,
			  reply_kind, response_subject, response_body, mode, draft_id, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := s.db.Exec(query,
		inquiry.RequestID, inquiry.EmailID, inquiry.Source, inquiry.Subject,
		inquiry.LoadReference, inquiry.ReferenceRule, loadInfo,
		inquiry.LookupAttempted, inquiry.LookupSucceeded, inquiry.LookupError,
		inquiry.ReplyKind, inquiry.ResponseSubject, inquiry.ResponseBody,
		inquiry.Mode, inquiry.DraftID, inquiry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record inquiry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get inquiry ID: %w", err)
	}
	inquiry.ID = id

	return nil
}

// List returns the most recent inquiries, newest first
func (s *InquiryStore) List(limit int) ([]Inquiry, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `SELECT ` + inquiryColumns + ` FROM inquiries ORDER BY created_at DESC, id DESC LIMIT ?`

	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list inquiries: %w", err)
	}
	defer rows.Close()

	inquiries := []Inquiry{}
	for rows.Next() {
		inquiry, err := scanInquiry(rows)
		if err != nil {
			return nil, err
		}
		inquiries = append(inquiries, *inquiry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating inquiries: %w", err)
	}

	return inquiries, nil
}

// GetByEmailID returns the latest inquiry recorded for an email
func (s *InquiryStore) GetByEmailID(emailID string) (*Inquiry, error) {
	query := `SELECT ` + inquiryColumns + ` FROM inquiries WHERE email_id = ?
			  ORDER BY created_at DESC, id DESC LIMIT 1`

	inquiry, err := scanInquiry(s.db.QueryRow(query, emailID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("inquiry for email %s: %w", emailID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return inquiry, nil
}

// LastFailedLookup returns when the most recent lookup for a reference failed,
// or nil when there was none or the most recent lookup succeeded
func (s *InquiryStore) LastFailedLookup(reference string) (*time.Time, error) {
	query := `SELECT lookup_succeeded, created_at FROM inquiries
			  WHERE load_reference = ? AND lookup_attempted = TRUE
			  ORDER BY created_at DESC, id DESC LIMIT 1`

	var succeeded bool
	var createdAt time.Time
	err := s.db.QueryRow(query, reference).Scan(&succeeded, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last lookup: %w", err)
	}

	if succeeded {
		return nil, nil
	}
	return &createdAt, nil
}

// SetDraftID records the reply draft created for an inquiry
func (s *InquiryStore) SetDraftID(id int64, draftID string) error {
	result, err := s.db.Exec("UPDATE inquiries SET draft_id = ? WHERE id = ?", draftID, id)
	if err != nil {
		return fmt.Errorf("failed to set draft ID: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("inquiry %d: %w", id, ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInquiry(row rowScanner) (*Inquiry, error) {
	var inquiry Inquiry
	var loadInfo sql.NullString

	err := row.Scan(
		&inquiry.ID, &inquiry.RequestID, &inquiry.EmailID, &inquiry.Source,
		&inquiry.Subject, &inquiry.LoadReference, &inquiry.ReferenceRule,
		&loadInfo, &inquiry.LookupAttempted, &inquiry.LookupSucceeded,
		&inquiry.LookupError, &inquiry.ReplyKind, &inquiry.ResponseSubject,
		&inquiry.ResponseBody, &inquiry.Mode, &inquiry.DraftID, &inquiry.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan inquiry: %w", err)
	}

	if loadInfo.Valid && loadInfo.String != "" {
		inquiry.LoadInfo = json.RawMessage(loadInfo.String)
	}

	return &inquiry, nil
}
