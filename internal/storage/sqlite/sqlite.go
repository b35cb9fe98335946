// Package sqlite implements the storage interfaces on an embedded SQLite
// database. All three lifecycle tables live in one file; the journal is WAL
// so readers never block writers, and every per-key move runs under a
// BEGIN IMMEDIATE write lock on its own short-lived connection.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"option-pipeline/internal/storage"
)

// DB wraps the shared database handle for dependency injection.
type DB struct {
	sql  *sql.DB
	path string
}

// Options contains configuration for opening the database.
type Options struct {
	// Path to the database file. Parent directories are created.
	Path string

	// BusyTimeout is how long a connection waits for a lock before
	// surfacing SQLITE_BUSY. Default: 30s.
	BusyTimeout time.Duration
}

// Open opens (creating if needed) the database file and applies schema
// migrations. Connections are not pooled: a connection released back is
// closed, so no writer holds a connection across a sleep interval.
func Open(ctx context.Context, opts Options) (*DB, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("%w: database path required", storage.ErrInvalidInput)
	}

	busyTimeout := opts.BusyTimeout
	if busyTimeout == 0 {
		busyTimeout = 30 * time.Second
	}

	if dir := filepath.Dir(opts.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(%d)&_pragma=foreign_keys(ON)",
		opts.Path, busyTimeout.Milliseconds(),
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxIdleConns(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}

	d := &DB{sql: db, path: opts.Path}
	if err := d.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

// Close closes the database handle.
func (d *DB) Close() error {
	return d.sql.Close()
}

// Path returns the database file path.
func (d *DB) Path() string {
	return d.path
}

// Handle exposes the underlying handle for read-only ad-hoc queries.
func (d *DB) Handle() *sql.DB {
	return d.sql
}

// Tx executes statements on the single pinned connection holding the
// immediate write lock of an in-flight move.
type Tx struct {
	conn *sql.Conn
}

// Exec runs a statement inside the move transaction.
func (t *Tx) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.conn.ExecContext(ctx, query, args...)
}

// Query runs a query inside the move transaction.
func (t *Tx) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return t.conn.QueryContext(ctx, query, args...)
}

// QueryRow runs a single-row query inside the move transaction.
func (t *Tx) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return t.conn.QueryRowContext(ctx, query, args...)
}

// WithImmediate runs fn inside BEGIN IMMEDIATE on a dedicated connection.
// IMMEDIATE acquires the write reservation before any row is touched, so a
// contended lock fails fast with SQLITE_BUSY instead of deadlocking at
// commit. On any error the transaction is rolled back and the outcome is
// classified Retryable (busy) or Fatal.
func (d *DB) WithImmediate(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) storage.MoveOutcome {
	conn, err := d.sql.Conn(ctx)
	if err != nil {
		return classify(fmt.Errorf("acquire connection: %w", err))
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return classify(fmt.Errorf("begin immediate: %w", err))
	}

	if err := fn(ctx, &Tx{conn: conn}); err != nil {
		rollback(ctx, conn)
		return classify(err)
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		rollback(ctx, conn)
		return classify(fmt.Errorf("commit: %w", err))
	}
	return storage.Success()
}

// rollback must run even when ctx is already cancelled, otherwise the
// pinned connection would be returned with the lock still held.
func rollback(ctx context.Context, conn *sql.Conn) {
	_, _ = conn.ExecContext(context.WithoutCancel(ctx), "ROLLBACK")
}

func classify(err error) storage.MoveOutcome {
	if IsBusy(err) {
		return storage.Retryable(fmt.Errorf("%w: %v", storage.ErrBusy, err))
	}
	return storage.Fatal(err)
}

// IsBusy reports whether err indicates the write-intent lock could not be
// acquired within the busy timeout.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
	}
	return errors.Is(err, storage.ErrBusy)
}
