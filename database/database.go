package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const driverName = "sqlite3"

// Opener hands out a database handle for a single execution. The caller owns
// the handle and must close it.
type Opener interface {
	Open(ctx context.Context) (*sqlx.DB, error)
}

// FileOpener opens the SQLite file at Path. SQLite creates the file on first
// use if it does not exist.
type FileOpener struct {
	Path        string
	BusyTimeout time.Duration
}

// DataSourceName returns the driver DSN for the file with the busy timeout
// applied.
func (o FileOpener) DataSourceName() string {
	if o.BusyTimeout <= 0 {
		return o.Path
	}
	return fmt.Sprintf("%s?_busy_timeout=%d", o.Path, o.BusyTimeout.Milliseconds())
}

// Open returns a connected handle limited to one connection, so a statement
// and the result it reports (changes, last insert id) always share a
// connection. The connection is established under ctx.
func (o FileOpener) Open(ctx context.Context) (*sqlx.DB, error) {
	if o.Path == "" {
		return nil, fmt.Errorf("database path is not configured")
	}
	db, err := sqlx.Open(driverName, o.DataSourceName())
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", o.Path, err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect %s: %w", o.Path, err)
	}
	return db, nil
}

// Connect opens the file and checks that SQLite can use it.
func Connect(ctx context.Context, o FileOpener) error {
	db, err := o.Open(ctx)
	if err != nil {
		return err
	}
	return db.Close()
}
