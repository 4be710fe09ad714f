package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// ErrEmptyStatement is returned when the SQL text is blank.
var ErrEmptyStatement = errors.New("sql statement is empty")

// Query is one statement and its bound parameters.
type Query struct {
	SQL    string
	Params Params
}

// WriteSummary is the outcome of a write statement. LastInsertID is nil when
// the statement inserted no row.
type WriteSummary struct {
	Changes      int64  `json:"changes"`
	LastInsertID *int64 `json:"lastInsertId"`
}

// Result is the outcome of a statement. Reads fill Rows, writes fill Summary.
type Result struct {
	Classification Classification
	Rows           []Row
	Summary        *WriteSummary
}

// ChangedDB reports whether the statement was run on the write path.
func (r *Result) ChangedDB() bool {
	return r.Classification == Write
}

// Payload is the value placed in the envelope's "results" member: the row
// list for reads (never nil) or the write summary.
func (r *Result) Payload() any {
	if r.Classification == Read {
		if r.Rows == nil {
			return []Row{}
		}
		return r.Rows
	}
	return r.Summary
}

func (r *Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Payload())
}

// Executor runs statements, opening a fresh handle for every call.
type Executor struct {
	opener Opener
}

func NewExecutor(opener Opener) *Executor {
	return &Executor{opener: opener}
}

// Execute classifies q and runs it on the read or write path. Driver errors
// are returned unchanged; use Normalize to shape them for clients.
func (e *Executor) Execute(ctx context.Context, q Query) (*Result, error) {
	if strings.TrimSpace(q.SQL) == "" {
		return nil, ErrEmptyStatement
	}

	db, err := e.opener.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	if Classify(q.SQL) == Read {
		return queryRows(ctx, db, q)
	}
	return execStatement(ctx, db, q)
}

func queryRows(ctx context.Context, db *sqlx.DB, q Query) (*Result, error) {
	rows, err := db.QueryxContext(ctx, q.SQL, q.Params.Args()...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}
	declTypes := make([]string, len(columns))
	if types, err := rows.ColumnTypes(); err == nil {
		for i, ct := range types {
			declTypes[i] = ct.DatabaseTypeName()
		}
	}

	results := []Row{}
	for rows.Next() {
		values, err := rows.SliceScan()
		if err != nil {
			return nil, err
		}
		results = append(results, Row{Columns: columns, Values: processRowValues(values, declTypes)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &Result{Classification: Read, Rows: results}, nil
}

func execStatement(ctx context.Context, db *sqlx.DB, q Query) (*Result, error) {
	res, err := db.ExecContext(ctx, q.SQL, q.Params.Args()...)
	if err != nil {
		return nil, err
	}

	summary := &WriteSummary{}
	if n, err := res.RowsAffected(); err == nil {
		summary.Changes = n
	}
	// The handle is new, so a non-zero id can only come from this statement.
	// An explicit insert of rowid 0 is reported as null.
	if id, err := res.LastInsertId(); err == nil && id != 0 {
		summary.LastInsertID = &id
	}

	return &Result{Classification: Write, Summary: summary}, nil
}
