// Package sqlite implements the persistence layer on modernc.org/sqlite. It
// backs local development and the test suite and mirrors the PostgreSQL
// schema and semantics.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/studyhub/groupmatch/internal/application/uow"
)

// dbtx is satisfied by *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

// Store implements uow.Store using SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ uow.Store = (*Store)(nil)

// Open opens (or creates) a database at path and applies the schema. Use
// ":memory:" for a throwaway database.
func Open(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		dsn = "file:" + path
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	dsn += sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// a single writer connection keeps transactions serialized
	db.SetMaxOpenConns(1)

	s := &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// DB exposes the handle for tests and diagnostics.
func (s *Store) DB() *sql.DB { return s.db }

// SetClock overrides the clock used for server-assigned timestamps.
func (s *Store) SetClock(now func() time.Time) { s.now = now }

func (s *Store) repositories(q dbtx) uow.Repositories {
	return uow.Repositories{
		Tickets:      &TicketRepository{q: q, now: s.now},
		GroupTickets: &GroupTicketRepository{q: q, now: s.now},
		Groups:       &GroupRepository{q: q},
		Courses:      &CourseRepository{q: q},
		Users:        &UserRepository{q: q},
	}
}

// Repositories returns repositories outside any transaction.
func (s *Store) Repositories() uow.Repositories {
	return s.repositories(s.db)
}

// WithinTx runs fn in one transaction, rolling back on error or panic.
func (s *Store) WithinTx(ctx context.Context, fn uow.TxFunc) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(ctx, s.repositories(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("tx error: %w, rollback error: %v", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

// Ping checks the database.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("sqlite: migrate: %w", err)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	email        TEXT NOT NULL DEFAULT '',
	languages    INTEGER NOT NULL DEFAULT 0,
	availability INTEGER NOT NULL DEFAULT 0,
	days         INTEGER NOT NULL DEFAULT 0,
	locations    INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS courses (
	id                 TEXT PRIMARY KEY,
	name               TEXT NOT NULL,
	group_size         INTEGER NOT NULL CHECK (group_size >= 2),
	allow_custom_sizes INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS course_enrollments (
	course_id TEXT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
	user_id   TEXT NOT NULL,
	PRIMARY KEY (course_id, user_id)
);

CREATE TABLE IF NOT EXISTS tickets (
	id           TEXT PRIMARY KEY,
	course_id    TEXT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
	user_id      TEXT NOT NULL,
	languages    INTEGER NOT NULL,
	availability INTEGER NOT NULL,
	days         INTEGER NOT NULL,
	locations    INTEGER NOT NULL,
	queued_at    INTEGER NOT NULL,
	UNIQUE (course_id, user_id)
);
CREATE INDEX IF NOT EXISTS idx_tickets_course_queued ON tickets(course_id, queued_at, id);

CREATE TABLE IF NOT EXISTS groups (
	id           TEXT PRIMARY KEY,
	course_id    TEXT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
	capacity     INTEGER NOT NULL CHECK (capacity >= 2),
	languages    INTEGER NOT NULL,
	availability INTEGER NOT NULL,
	days         INTEGER NOT NULL,
	locations    INTEGER NOT NULL,
	is_complete  INTEGER NOT NULL DEFAULT 0,
	version      INTEGER NOT NULL DEFAULT 0,
	created_at   INTEGER NOT NULL,
	updated_at   INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS group_members (
	group_id  TEXT NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
	course_id TEXT NOT NULL,
	user_id   TEXT NOT NULL,
	position  INTEGER NOT NULL,
	joined_at INTEGER NOT NULL,
	PRIMARY KEY (group_id, user_id),
	UNIQUE (course_id, user_id)
);

CREATE TABLE IF NOT EXISTS group_tickets (
	id        TEXT PRIMARY KEY,
	group_id  TEXT NOT NULL UNIQUE REFERENCES groups(id) ON DELETE CASCADE,
	course_id TEXT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
	queued_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_group_tickets_course_queued ON group_tickets(course_id, queued_at, id);
`

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func sqliteCode(err error) int {
	var e *sqlite.Error
	if errors.As(err, &e) {
		return e.Code()
	}
	return 0
}

func isUniqueViolation(err error) bool {
	switch sqliteCode(err) {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isForeignKeyViolation(err error) bool {
	if sqliteCode(err) == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY {
		return true
	}
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

func toNanos(t time.Time) int64 { return t.UnixNano() }

func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

func stringArgs(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func collectStrings(rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
