package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// EventType represents the type of audit event
type EventType string

const (
	EventUnauthorized EventType = "unauthorized"
	EventQuery        EventType = "query"
	EventQueryFailed  EventType = "query_failed"
)

// AuditEvent represents an audit log entry in the database. Neither the SQL
// text nor the bearer token is stored, only their fingerprints.
type AuditEvent struct {
	ID                   string `db:"id"`
	EventType            string `db:"event_type"`
	Timestamp            int64  `db:"timestamp"`
	TokenFingerprint     string `db:"token_fingerprint"`
	StatementFingerprint string `db:"statement_fingerprint"`
	ChangedDB            bool   `db:"changed_db"`
	ErrorKind            string `db:"error_kind"`
}

// Logger records authorization and execution events in their own database
type Logger struct {
	db *sqlx.DB
}

// NewLogger creates a new audit logger instance
func NewLogger(db *sqlx.DB) (*Logger, error) {
	if err := DBInit(db); err != nil {
		return nil, err
	}
	return &Logger{
		db: db,
	}, nil
}

// Open connects to the audit database at path and prepares its schema. The
// connection is closed again if the schema cannot be created.
func Open(path string) (*Logger, error) {
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}
	logger, err := NewLogger(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize audit logger: %w", err)
	}
	return logger, nil
}

// DBInit initializes the audit events database table
func DBInit(db *sqlx.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS audit_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		token_fingerprint TEXT NOT NULL DEFAULT '',
		statement_fingerprint TEXT NOT NULL DEFAULT '',
		changed_db BOOLEAN NOT NULL DEFAULT 0,
		error_kind TEXT NOT NULL DEFAULT ''
	)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_audit_events_timestamp ON audit_events(timestamp)`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_audit_events_event_type ON audit_events(event_type)`)
	return err
}

// fingerprint creates a SHA-256 hash of a secret or statement so events can
// be correlated without storing the value itself
func fingerprint(value string) string {
	if value == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(value))
	return hex.EncodeToString(hash[:])
}

func (l *Logger) insertEvent(event *AuditEvent) error {
	_, err := l.db.NamedExec(`
		INSERT INTO audit_events (
			id, event_type, timestamp, token_fingerprint,
			statement_fingerprint, changed_db, error_kind
		) VALUES (
			:id, :event_type, :timestamp, :token_fingerprint,
			:statement_fingerprint, :changed_db, :error_kind
		)`, event)
	return err
}

func newEvent(eventType EventType) *AuditEvent {
	return &AuditEvent{
		ID:        uuid.New().String(),
		EventType: string(eventType),
		Timestamp: time.Now().UTC().Unix(),
	}
}

// LogUnauthorized records a request whose Authorization header was rejected.
// header is the raw header value, which may be empty.
func (l *Logger) LogUnauthorized(header string) error {
	event := newEvent(EventUnauthorized)
	event.TokenFingerprint = fingerprint(header)
	return l.insertEvent(event)
}

// LogQuery records a statement that executed successfully
func (l *Logger) LogQuery(sql string, changedDB bool) error {
	event := newEvent(EventQuery)
	event.StatementFingerprint = fingerprint(sql)
	event.ChangedDB = changedDB
	return l.insertEvent(event)
}

// LogQueryFailed records a statement that the engine rejected
func (l *Logger) LogQueryFailed(sql string, changedDB bool, errorKind string) error {
	event := newEvent(EventQueryFailed)
	event.StatementFingerprint = fingerprint(sql)
	event.ChangedDB = changedDB
	event.ErrorKind = errorKind
	return l.insertEvent(event)
}

// getEventsByType retrieves audit events of a specific type
func (l *Logger) getEventsByType(eventType EventType, limit int) ([]AuditEvent, error) {
	var events []AuditEvent
	err := l.db.Select(&events,
		"SELECT * FROM audit_events WHERE event_type = $1 ORDER BY timestamp DESC LIMIT $2",
		string(eventType), limit)
	return events, err
}

// getRecentEvents retrieves the most recent audit events
func (l *Logger) getRecentEvents(limit int) ([]AuditEvent, error) {
	var events []AuditEvent
	err := l.db.Select(&events,
		"SELECT * FROM audit_events ORDER BY timestamp DESC LIMIT $1",
		limit)
	return events, err
}

// DeleteOldEvents deletes audit events older than the specified duration
func (l *Logger) DeleteOldEvents(olderThan time.Duration) (int64, error) {
	threshold := time.Now().UTC().Add(-olderThan).Unix()
	result, err := l.db.Exec("DELETE FROM audit_events WHERE timestamp < $1", threshold)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Close releases the audit database.
func (l *Logger) Close() error {
	return l.db.Close()
}
