// Package sqlite persists accounts, sessions and command history in a
// single SQLite database file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	sharedErrors "github.com/khanhnv2901/siteterminal/internal/shared/errors"
	"github.com/khanhnv2901/siteterminal/internal/shared/security"
)

// DefaultFileName is used when Open is given a directory.
const DefaultFileName = "siteterminal.db"

var errNoRows = sql.ErrNoRows

// DB wraps the SQL handle shared by the repositories.
type DB struct {
	db   *sql.DB
	path string
}

// Open opens or creates the database at path, enables WAL and creates the
// schema. A path ending in a separator or naming an existing directory
// gets DefaultFileName appended.
func Open(ctx context.Context, path string) (*DB, error) {
	if !security.IsValidPath(path) {
		return nil, fmt.Errorf("invalid database path: %q", path)
	}
	if info, err := os.Stat(path); (err == nil && info.IsDir()) || strings.HasSuffix(path, string(os.PathSeparator)) {
		path = filepath.Join(path, DefaultFileName)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite has a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	d := &DB{db: db, path: path}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if err := d.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return d, nil
}

// Path returns the database file location.
func (d *DB) Path() string { return d.path }

// Close closes the database connection.
func (d *DB) Close() error { return d.db.Close() }

// Ping checks the database is reachable; used by the readiness probe.
func (d *DB) Ping(ctx context.Context) error { return d.db.PingContext(ctx) }

func (d *DB) createTables(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL DEFAULT '',
		password TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'USER',
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sessions (
		token TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		created_at TEXT NOT NULL,
		expires_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id);

	CREATE TABLE IF NOT EXISTS command_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		command TEXT NOT NULL,
		target TEXT NOT NULL,
		success INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_logs_user ON command_logs(user_id);
	CREATE INDEX IF NOT EXISTS idx_logs_command ON command_logs(command);

	CREATE TABLE IF NOT EXISTS search_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		command TEXT NOT NULL,
		target TEXT NOT NULL,
		result_json TEXT NOT NULL DEFAULT '{}',
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_searches_user ON search_records(user_id);
	CREATE INDEX IF NOT EXISTS idx_searches_command ON search_records(command);
	`
	_, err := d.db.ExecContext(ctx, schema)
	return err
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// wrap tags a driver error with ErrRepositoryOperation.
func wrap(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, sharedErrors.ErrNotFound)
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%s: %w", op, sharedErrors.ErrAlreadyExists)
	}
	return fmt.Errorf("%s: %w: %v", op, sharedErrors.ErrRepositoryOperation, err)
}
