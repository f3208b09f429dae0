// SPDX-License-Identifier: MPL-2.0

// Package ledger keeps a journal of lifecycle operations and downloads in a
// SQLite database. The journal backs the history command; nothing reads it
// to decide what is installed.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/invowk/addonctl/pkg/addon"
)

// DefaultHistoryLimit bounds History when the filter sets no limit.
const DefaultHistoryLimit = 50

type (
	// Ledger is an open journal.
	Ledger struct {
		db  *sql.DB
		now func() time.Time
	}

	// Entry is one lifecycle step.
	Entry struct {
		ID      int64
		At      time.Time
		AddOnID string
		Version string
		Action  string
		Status  addon.Status
		OK      bool
		Detail  string
	}

	// Download is one finished transfer.
	Download struct {
		ID         int64
		Handle     string
		URL        string
		Target     string
		StartedAt  time.Time
		FinishedAt time.Time
		Validated  bool
		Detail     string
	}

	// Filter narrows History.
	Filter struct {
		AddOnID string
		Limit   int
	}

	// Option configures a Ledger.
	Option func(*Ledger)
)

// WithClock overrides the timestamp source of Record.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// Open opens (creating if needed) the journal at path. ":memory:" opens a
// private in-memory journal.
func Open(ctx context.Context, path string, opts ...Option) (*Ledger, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating ledger directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening ledger %s: %w", path, err)
	}
	// One connection: an in-memory database is private to its connection.
	db.SetMaxOpenConns(1)

	l, err := New(ctx, db, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

// New wraps an open database and migrates it.
func New(ctx context.Context, db *sql.DB, opts ...Option) (*Ledger, error) {
	l := &Ledger{db: db, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	if err := Migrate(ctx, db); err != nil {
		return nil, err
	}
	return l, nil
}

// Migrate creates the journal tables.
func Migrate(ctx context.Context, db *sql.DB) error {
	statements := []struct {
		label string
		sql   string
	}{
		{"operations", `
			CREATE TABLE IF NOT EXISTS operations (
				id       INTEGER PRIMARY KEY AUTOINCREMENT,
				at       TEXT    NOT NULL,
				addon_id TEXT    NOT NULL,
				version  TEXT    NOT NULL,
				action   TEXT    NOT NULL,
				status   TEXT    NOT NULL,
				ok       INTEGER NOT NULL,
				detail   TEXT    NOT NULL DEFAULT ''
			);`},
		{"operations indexes", `
			CREATE INDEX IF NOT EXISTS idx_operations_addon ON operations(addon_id);`},
		{"downloads", `
			CREATE TABLE IF NOT EXISTS downloads (
				id          INTEGER PRIMARY KEY AUTOINCREMENT,
				handle      TEXT    NOT NULL UNIQUE,
				url         TEXT    NOT NULL,
				target      TEXT    NOT NULL,
				started_at  TEXT    NOT NULL,
				finished_at TEXT    NOT NULL,
				validated   INTEGER NOT NULL,
				detail      TEXT    NOT NULL DEFAULT ''
			);`},
	}

	for _, s := range statements {
		if _, err := db.ExecContext(ctx, s.sql); err != nil {
			return fmt.Errorf("ledger migration failed at [%s]: %w", s.label, err)
		}
	}
	return nil
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Record appends entries in one transaction. Entries without a timestamp
// get the current time.
func (l *Ledger) Record(ctx context.Context, entries ...Entry) (err error) {
	if len(entries) == 0 {
		return nil
	}
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("recording operations: %w", err)
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, tx.Rollback())
		}
	}()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO operations (at, addon_id, version, action, status, ok, detail) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("recording operations: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, e := range entries {
		at := e.At
		if at.IsZero() {
			at = l.now()
		}
		if _, err := stmt.ExecContext(ctx, formatTime(at), e.AddOnID, e.Version, e.Action, string(e.Status), e.OK, e.Detail); err != nil {
			return fmt.Errorf("recording %s %s: %w", e.Action, e.AddOnID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("recording operations: %w", err)
	}
	return nil
}

// RecordDownload stores a finished transfer. Recording the same handle twice
// keeps the first record.
func (l *Ledger) RecordDownload(ctx context.Context, d Download) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO downloads (handle, url, target, started_at, finished_at, validated, detail)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.Handle, d.URL, d.Target, formatTime(d.StartedAt), formatTime(d.FinishedAt), d.Validated, d.Detail)
	if err != nil {
		return fmt.Errorf("recording download %s: %w", d.Handle, err)
	}
	return nil
}

// History returns operations, newest first.
func (l *Ledger) History(ctx context.Context, f Filter) ([]Entry, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	query := `SELECT id, at, addon_id, version, action, status, ok, detail FROM operations`
	args := []any{}
	if f.AddOnID != "" {
		query += ` WHERE addon_id = ?`
		args = append(args, f.AddOnID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("reading history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Entry
	for rows.Next() {
		var (
			e      Entry
			at     string
			status string
		)
		if err := rows.Scan(&e.ID, &at, &e.AddOnID, &e.Version, &e.Action, &status, &e.OK, &e.Detail); err != nil {
			return nil, fmt.Errorf("reading history: %w", err)
		}
		e.Status = addon.Status(status)
		if e.At, err = parseTime(at); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Downloads returns recorded transfers, newest first.
func (l *Ledger) Downloads(ctx context.Context, limit int) ([]Download, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, handle, url, target, started_at, finished_at, validated, detail
		 FROM downloads ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("reading downloads: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Download
	for rows.Next() {
		var (
			d                 Download
			started, finished string
		)
		if err := rows.Scan(&d.ID, &d.Handle, &d.URL, &d.Target, &started, &finished, &d.Validated, &d.Detail); err != nil {
			return nil, fmt.Errorf("reading downloads: %w", err)
		}
		if d.StartedAt, err = parseTime(started); err != nil {
			return nil, err
		}
		if d.FinishedAt, err = parseTime(finished); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed ledger timestamp %q: %w", s, err)
	}
	return t, nil
}
