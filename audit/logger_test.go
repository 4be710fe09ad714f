package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// setupTestDB creates a temporary test database
func setupTestDB(t *testing.T) *sqlx.DB {
	tmpDir := t.TempDir()
	dbPath := path.Join(tmpDir, "test_audit.db")
	db := sqlx.MustConnect("sqlite3", dbPath)
	t.Cleanup(func() {
		db.Close()
		os.Remove(dbPath)
	})
	return db
}

func TestNewLogger(t *testing.T) {
	db := setupTestDB(t)
	logger, err := NewLogger(db)

	if err != nil {
		t.Fatalf("NewLogger returned error: %v", err)
	}

	if logger == nil || logger.db == nil {
		t.Fatal("NewLogger returned an unusable logger")
	}
}

func TestOpen(t *testing.T) {
	logger, err := Open(path.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	defer logger.Close()

	if err := logger.LogQuery("SELECT 1", false); err != nil {
		t.Fatalf("LogQuery failed: %v", err)
	}
}

func TestOpenFailsWhenSchemaCannotBeCreated(t *testing.T) {
	dbPath := path.Join(t.TempDir(), "audit.db")
	db := sqlx.MustConnect("sqlite3", dbPath)
	db.MustExec("CREATE VIEW audit_events AS SELECT 1 AS timestamp, 'x' AS event_type")
	db.Close()

	logger, err := Open(dbPath)
	if err == nil {
		logger.Close()
		t.Fatal("expected Open to fail when audit_events is a view")
	}
	if logger != nil {
		t.Fatal("expected no logger on failure")
	}
}

func TestDBInit(t *testing.T) {
	db := setupTestDB(t)
	if err := DBInit(db); err != nil {
		t.Fatalf("DBInit returned error: %v", err)
	}
	// Running twice must be harmless
	if err := DBInit(db); err != nil {
		t.Fatalf("second DBInit returned error: %v", err)
	}

	var tableName string
	err := db.Get(&tableName, "SELECT name FROM sqlite_master WHERE type='table' AND name='audit_events'")
	if err != nil {
		t.Fatalf("Table 'audit_events' does not exist: %v", err)
	}

	var count int
	err = db.Get(&count, "SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND tbl_name='audit_events'")
	if err != nil {
		t.Fatalf("Failed to query indexes: %v", err)
	}
	if count < 2 {
		t.Errorf("Expected at least 2 indexes, got %d", count)
	}
}

func TestFingerprint(t *testing.T) {
	value := "Bearer secrettoken"
	expected := sha256.Sum256([]byte(value))

	if got := fingerprint(value); got != hex.EncodeToString(expected[:]) {
		t.Errorf("Expected fingerprint %x, got %s", expected, got)
	}
	if fingerprint(value) == fingerprint("Bearer other") {
		t.Error("Different values should produce different fingerprints")
	}
	if got := fingerprint(""); got != "" {
		t.Errorf("Empty value should produce empty fingerprint, got %s", got)
	}
}

func TestLogUnauthorized(t *testing.T) {
	db := setupTestDB(t)
	logger, err := NewLogger(db)
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	if err := logger.LogUnauthorized("Bearer wrong"); err != nil {
		t.Fatalf("LogUnauthorized failed: %v", err)
	}

	var event AuditEvent
	err = db.Get(&event, "SELECT * FROM audit_events WHERE event_type = $1", string(EventUnauthorized))
	if err != nil {
		t.Fatalf("Failed to retrieve event: %v", err)
	}
	if event.TokenFingerprint != fingerprint("Bearer wrong") {
		t.Errorf("Unexpected token fingerprint %s", event.TokenFingerprint)
	}
	if event.StatementFingerprint != "" {
		t.Errorf("Unauthorized event should not carry a statement, got %s", event.StatementFingerprint)
	}
	if time.Since(time.Unix(event.Timestamp, 0)) > time.Minute {
		t.Errorf("Timestamp %d is not recent", event.Timestamp)
	}
}

func TestLogQueryAndFailure(t *testing.T) {
	db := setupTestDB(t)
	logger, err := NewLogger(db)
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	if err := logger.LogQuery("INSERT INTO t VALUES (1)", true); err != nil {
		t.Fatalf("LogQuery failed: %v", err)
	}
	if err := logger.LogQueryFailed("SELECT * FROM missing", false, "syntax"); err != nil {
		t.Fatalf("LogQueryFailed failed: %v", err)
	}

	events, err := logger.getEventsByType(EventQuery, 10)
	if err != nil {
		t.Fatalf("getEventsByType failed: %v", err)
	}
	if len(events) != 1 || !events[0].ChangedDB {
		t.Fatalf("Unexpected query events: %+v", events)
	}

	failed, err := logger.getEventsByType(EventQueryFailed, 10)
	if err != nil {
		t.Fatalf("getEventsByType failed: %v", err)
	}
	if len(failed) != 1 {
		t.Fatalf("Expected 1 failed event, got %d", len(failed))
	}
	if failed[0].ErrorKind != "syntax" || failed[0].ChangedDB {
		t.Errorf("Unexpected failed event: %+v", failed[0])
	}
	if failed[0].StatementFingerprint != fingerprint("SELECT * FROM missing") {
		t.Errorf("Unexpected statement fingerprint %s", failed[0].StatementFingerprint)
	}
}

func TestRecentEvents(t *testing.T) {
	db := setupTestDB(t)
	logger, err := NewLogger(db)
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	logger.LogUnauthorized("")
	logger.LogQuery("SELECT 1", false)
	logger.LogQuery("SELECT 2", false)

	events, err := logger.getRecentEvents(2)
	if err != nil {
		t.Fatalf("getRecentEvents failed: %v", err)
	}
	if len(events) != 2 {
		t.Errorf("Expected 2 events, got %d", len(events))
	}
	if len(events) == 2 && events[0].Timestamp < events[1].Timestamp {
		t.Error("Events should be in descending timestamp order")
	}
}

func TestDeleteOldEvents(t *testing.T) {
	db := setupTestDB(t)
	logger, err := NewLogger(db)
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	oldTimestamp := time.Now().UTC().Add(-2 * time.Hour).Unix()
	for _, id := range []string{"old-event-1", "old-event-2"} {
		_, err = db.Exec(`
			INSERT INTO audit_events (id, event_type, timestamp)
			VALUES ($1, $2, $3)`,
			id, string(EventQuery), oldTimestamp)
		if err != nil {
			t.Fatalf("Failed to insert old event: %v", err)
		}
	}

	logger.LogQuery("SELECT 1", false)

	deleted, err := logger.DeleteOldEvents(1 * time.Hour)
	if err != nil {
		t.Fatalf("DeleteOldEvents failed: %v", err)
	}
	if deleted != 2 {
		t.Errorf("Expected to delete 2 events, deleted %d", deleted)
	}

	events, err := logger.getRecentEvents(10)
	if err != nil {
		t.Fatalf("getRecentEvents failed: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("Expected 1 event after deletion, got %d", len(events))
	}
}

func TestEventTypes(t *testing.T) {
	tests := []struct {
		name      string
		eventType EventType
		expected  string
	}{
		{"Unauthorized", EventUnauthorized, "unauthorized"},
		{"Query", EventQuery, "query"},
		{"QueryFailed", EventQueryFailed, "query_failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if string(tt.eventType) != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, string(tt.eventType))
			}
		})
	}
}
