package database

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestInquiryStore_RecordAndGet(t *testing.T) {
	db := openTestDB(t)

	inquiry := &Inquiry{
		RequestID:       "req-1",
		EmailID:         "AAMkAGI2",
		Source:          SourceWebhook,
		Subject:         "Load 556677",
		LoadReference:   "556677",
		ReferenceRule:   "six_digit",
		LoadInfo:        json.RawMessage(`{"rate":"$2,450"}`),
		LookupAttempted: true,
		LookupSucceeded: true,
		ReplyKind:       "detailed",
		ResponseSubject: "Re: Load 556677",
		ResponseBody:    "Hello",
		Mode:            "quotefactory",
	}

	if err := db.Inquiries.Record(inquiry); err != nil {
		t.Fatalf("Failed to record inquiry: %v", err)
	}
	if inquiry.ID == 0 {
		t.Error("Expected inquiry ID to be set")
	}
	if inquiry.CreatedAt.IsZero() {
		t.Error("Expected CreatedAt to be set")
	}

	got, err := db.Inquiries.GetByEmailID("AAMkAGI2")
	if err != nil {
		t.Fatalf("Failed to get inquiry: %v", err)
	}
	if got.LoadReference != "556677" {
		t.Errorf("Expected reference 556677, got %s", got.LoadReference)
	}
	if got.ReferenceRule != "six_digit" {
		t.Errorf("Expected rule six_digit, got %s", got.ReferenceRule)
	}
	if string(got.LoadInfo) != `{"rate":"$2,450"}` {
		t.Errorf("Unexpected load info %s", got.LoadInfo)
	}
	if !got.LookupAttempted || !got.LookupSucceeded {
		t.Error("Expected lookup flags to round trip")
	}
	if got.Mode != "quotefactory" {
		t.Errorf("Expected mode quotefactory, got %s", got.Mode)
	}
}

func TestInquiryStore_GetByEmailID_NotFound(t *testing.T) {
	db := openTestDB(t)

	_, err := db.Inquiries.GetByEmailID("missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestInquiryStore_ListAndExists(t *testing.T) {
	db := openTestDB(t)
	base := time.Now().UTC().Add(-time.Hour)

	for i, emailID := range []string{"a", "b", "c"} {
		inquiry := &Inquiry{
			RequestID:       "req-" + emailID,
			EmailID:         emailID,
			Source:          SourceGmail,
			Subject:         "Inquiry " + emailID,
			ResponseSubject: "Re: Inquiry " + emailID,
			ResponseBody:    "body",
			Mode:            "basic",
			CreatedAt:       base.Add(time.Duration(i) * time.Minute),
		}
		if err := db.Inquiries.Record(inquiry); err != nil {
			t.Fatalf("Failed to record inquiry %s: %v", emailID, err)
		}
	}

	inquiries, err := db.Inquiries.List(2)
	if err != nil {
		t.Fatalf("Failed to list inquiries: %v", err)
	}
	if len(inquiries) != 2 {
		t.Fatalf("Expected 2 inquiries, got %d", len(inquiries))
	}
	if inquiries[0].EmailID != "c" || inquiries[1].EmailID != "b" {
		t.Errorf("Expected newest first, got %s then %s", inquiries[0].EmailID, inquiries[1].EmailID)
	}

	all, err := db.Inquiries.List(0)
	if err != nil {
		t.Fatalf("Failed to list inquiries: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("Expected default limit to return all 3, got %d", len(all))
	}

	if _, err := db.Inquiries.GetByEmailID("z"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown email, got %v", err)
	}
}

func TestInquiryStore_LastFailedLookup(t *testing.T) {
	db := openTestDB(t)
	now := time.Now().UTC()

	record := func(requestID string, attempted, succeeded bool, at time.Time) {
		t.Helper()
		err := db.Inquiries.Record(&Inquiry{
			RequestID:       requestID,
			Source:          SourceWebhook,
			Subject:         "s",
			LoadReference:   "778899",
			LookupAttempted: attempted,
			LookupSucceeded: succeeded,
			ResponseSubject: "Re: s",
			ResponseBody:    "b",
			Mode:            "quotefactory",
			CreatedAt:       at,
		})
		if err != nil {
			t.Fatalf("Failed to record inquiry: %v", err)
		}
	}

	last, err := db.Inquiries.LastFailedLookup("778899")
	if err != nil || last != nil {
		t.Fatalf("Expected no failure before any lookup, got %v (%v)", last, err)
	}

	record("r1", true, false, now.Add(-10*time.Minute))
	last, err = db.Inquiries.LastFailedLookup("778899")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if last == nil {
		t.Fatal("Expected a failed lookup time")
	}
	if last.Sub(now.Add(-10*time.Minute)).Abs() > time.Second {
		t.Errorf("Unexpected failure time %v", last)
	}

	// Inquiries that skipped the lookup do not count
	record("r2", false, false, now.Add(-5*time.Minute))
	last, _ = db.Inquiries.LastFailedLookup("778899")
	if last == nil {
		t.Error("Expected skipped lookups to be ignored")
	}

	record("r3", true, true, now.Add(-time.Minute))
	last, err = db.Inquiries.LastFailedLookup("778899")
	if err != nil || last != nil {
		t.Errorf("Expected success to clear the failure, got %v (%v)", last, err)
	}
}

func TestInquiryStore_SetDraftID(t *testing.T) {
	db := openTestDB(t)

	inquiry := &Inquiry{
		RequestID:       "req-draft",
		EmailID:         "gmail-1",
		Source:          SourceGmail,
		Subject:         "s",
		ResponseSubject: "Re: s",
		ResponseBody:    "b",
		Mode:            "basic",
	}
	if err := db.Inquiries.Record(inquiry); err != nil {
		t.Fatalf("Failed to record inquiry: %v", err)
	}

	if err := db.Inquiries.SetDraftID(inquiry.ID, "r-123"); err != nil {
		t.Fatalf("Failed to set draft ID: %v", err)
	}

	got, err := db.Inquiries.GetByEmailID("gmail-1")
	if err != nil {
		t.Fatalf("Failed to get inquiry: %v", err)
	}
	if got.DraftID != "r-123" {
		t.Errorf("Expected draft ID r-123, got %s", got.DraftID)
	}

	if err := db.Inquiries.SetDraftID(9999, "r-x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for missing inquiry, got %v", err)
	}
}

func TestOpen_FileDatabaseMigratesTwice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "triage.db")

	db, err := Open(path)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	if err := db.IsHealthy(); err != nil {
		t.Errorf("Expected healthy database, got %v", err)
	}
	db.Close()

	db, err = Open(path)
	if err != nil {
		t.Fatalf("Failed to reopen database: %v", err)
	}
	defer db.Close()

	var columns int
	if err := db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('inquiries') WHERE name IN ('draft_id', 'reply_kind')`).Scan(&columns); err != nil {
		t.Fatalf("Failed to inspect schema: %v", err)
	}
	if columns != 2 {
		t.Errorf("Expected draft columns to exist once, got %d", columns)
	}
}
