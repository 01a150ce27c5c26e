package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"github.com/okian/rks/internal/domain/model"
)

const (
	upsertWindowSQL = `
		INSERT INTO rating_windows (identity, ratings, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(identity) DO UPDATE SET ratings = excluded.ratings, updated_at = excluded.updated_at`
	upsertSnapshotSQL = `
		INSERT INTO rating_snapshots (identity, ts, rks, summary) VALUES (?, ?, ?, ?)
		ON CONFLICT(identity, ts) DO UPDATE SET rks = excluded.rks, summary = excluded.summary`
)

// SQLiteBackend keeps history in two tables keyed by identity.
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLiteBackend opens or creates the database at path and migrates it.
func NewSQLiteBackend(ctx context.Context, path string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1) // SQLite is not concurrent for writes
	b := &SQLiteBackend{db: db}
	if err := b.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate history db: %w", err)
	}
	return b, nil
}

// uriPath escapes the characters that end or alter the path part of an SQLite
// URI filename; SQLite decodes %HH escapes when opening.
var uriPath = strings.NewReplacer("%", "%25", "?", "%3f", "#", "%23")

func sqliteDSN(path string) string {
	return "file:" + uriPath.Replace(path) +
		"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)"
}

// NewSQLite returns a Store persisting to the SQLite database at path.
func NewSQLite(ctx context.Context, path string, opts ...Option) (*Store, error) {
	b, err := NewSQLiteBackend(ctx, path)
	if err != nil {
		return nil, err
	}
	return New(b, opts...), nil
}

func (b *SQLiteBackend) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS rating_windows (
			identity TEXT PRIMARY KEY,
			ratings TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS rating_snapshots (
			identity TEXT NOT NULL,
			ts TEXT NOT NULL,
			rks REAL NOT NULL,
			summary TEXT,
			PRIMARY KEY(identity, ts)
		);`,
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, q := range stmts {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (b *SQLiteBackend) ReadWindow(ctx context.Context, identity string) (Lookup[model.Window], error) {
	var raw string
	err := b.db.QueryRowContext(ctx,
		`SELECT ratings FROM rating_windows WHERE identity = ?`, identity).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return absent[model.Window](), nil
	}
	if err != nil {
		return Lookup[model.Window]{}, err
	}
	w, err := decodeWindow([]byte(raw))
	if err != nil {
		return corrupt[model.Window](err), nil
	}
	return found(w), nil
}

func (b *SQLiteBackend) WriteWindow(ctx context.Context, identity string, w model.Window) error {
	data, err := encodeWindow(w)
	if err != nil {
		return err
	}
	_, err = b.db.ExecContext(ctx, upsertWindowSQL, identity, string(data), time.Now().UTC())
	return err
}

func (b *SQLiteBackend) ReadTimeline(ctx context.Context, identity string) (Lookup[[]model.Snapshot], error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT ts, rks, summary FROM rating_snapshots WHERE identity = ? ORDER BY ts`, identity)
	if err != nil {
		return Lookup[[]model.Snapshot]{}, err
	}
	defer func() { _ = rows.Close() }()

	var out []model.Snapshot
	var bad error
	for rows.Next() {
		var (
			snap    model.Snapshot
			summary sql.NullString
		)
		if err := rows.Scan(&snap.Timestamp, &snap.Rating, &summary); err != nil {
			return Lookup[[]model.Snapshot]{}, err
		}
		if summary.Valid && summary.String != "" {
			if !json.Valid([]byte(summary.String)) {
				bad = fmt.Errorf("%w: summary at %s is not JSON", ErrCorruptState, snap.Timestamp)
				continue
			}
			snap.Summary = json.RawMessage(summary.String)
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return Lookup[[]model.Snapshot]{}, err
	}
	if bad != nil {
		l := corrupt[[]model.Snapshot](bad)
		l.Value = out
		return l, nil
	}
	if len(out) == 0 {
		return absent[[]model.Snapshot](), nil
	}
	return found(out), nil
}

func (b *SQLiteBackend) PutSnapshot(ctx context.Context, identity string, snap model.Snapshot) error {
	_, err := b.db.ExecContext(ctx, upsertSnapshotSQL, identity, snap.Timestamp, snap.Rating, nullSummary(snap))
	return err
}

// Record writes the snapshot and window in one transaction.
func (b *SQLiteBackend) Record(ctx context.Context, identity string, snap model.Snapshot, w model.Window) error {
	data, err := encodeWindow(w)
	if err != nil {
		return err
	}
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, upsertSnapshotSQL, identity, snap.Timestamp, snap.Rating, nullSummary(snap)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if _, err := tx.ExecContext(ctx, upsertWindowSQL, identity, string(data), time.Now().UTC()); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func nullSummary(snap model.Snapshot) sql.NullString {
	if len(snap.Summary) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(snap.Summary), Valid: true}
}

func (b *SQLiteBackend) Close() error { return b.db.Close() }
