// Package store persists harvested chat entries in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ppiankov/chatharvest/internal/chat"
	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

// Run is one recording session against a page.
type Run struct {
	ID        string
	PageURL   string
	StartedAt time.Time
}

// StoredEntry is a chat entry with the bookkeeping added on insert.
type StoredEntry struct {
	chat.Entry
	RunID     string
	FetchedAt time.Time
}

// Stats summarizes the stored entries.
type Stats struct {
	Entries int
	Runs    int
	Authors int
	First   int64 // earliest entry timestamp, 0 when empty
	Last    int64 // latest entry timestamp, 0 when empty
}

func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("path is required")
	}

	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Pragmas are per connection; a single connection keeps foreign keys on
	// and serializes writers.
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// StartRun registers a new recording session and returns it.
func (s *Store) StartRun(ctx context.Context, pageURL string, startedAt time.Time) (Run, error) {
	if s == nil || s.db == nil {
		return Run{}, errors.New("store is not initialized")
	}
	if strings.TrimSpace(pageURL) == "" {
		return Run{}, errors.New("page_url is required")
	}
	if startedAt.IsZero() {
		startedAt = time.Now()
	}

	run := Run{
		ID:        uuid.NewString(),
		PageURL:   pageURL,
		StartedAt: startedAt.UTC(),
	}
	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO runs (id, page_url, started_at) VALUES (?, ?, ?)",
		run.ID, run.PageURL, formatTime(run.StartedAt),
	); err != nil {
		return Run{}, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// InsertEntries stores entries under runID and returns how many were new.
// Entries whose message ID is already stored are ignored.
func (s *Store) InsertEntries(ctx context.Context, runID string, entries []chat.Entry, fetchedAt time.Time) (int, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("store is not initialized")
	}
	if len(entries) == 0 {
		return 0, nil
	}
	if fetchedAt.IsZero() {
		return 0, errors.New("fetched_at is required")
	}

	var runVal sql.NullString
	if runID != "" {
		runVal = sql.NullString{String: runID, Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO entries (message_id, run_id, ts, author_name, author_id, text, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(message_id) DO NOTHING
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	fetched := formatTime(fetchedAt)
	inserted := 0
	for _, e := range entries {
		var idVal sql.NullString
		if e.ID != "" {
			idVal = sql.NullString{String: e.ID, Valid: true}
		}
		res, err := stmt.ExecContext(ctx, idVal, runVal, e.Timestamp, e.AuthorName, e.AuthorID, e.Text, fetched)
		if err != nil {
			return 0, fmt.Errorf("insert entry %s: %w", e.ID, err)
		}
		n, _ := res.RowsAffected()
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit entries: %w", err)
	}
	return inserted, nil
}

// GetEntries returns entries stamped at or after since, oldest first.
// A zero since returns everything.
func (s *Store) GetEntries(ctx context.Context, since time.Time) ([]StoredEntry, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store is not initialized")
	}

	var sinceUnix int64
	if !since.IsZero() {
		sinceUnix = since.Unix()
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT message_id, run_id, ts, author_name, author_id, text, fetched_at
		FROM entries
		WHERE ts >= ?
		ORDER BY ts ASC, id ASC
	`, sinceUnix)
	if err != nil {
		return nil, fmt.Errorf("get entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []StoredEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

// TailEntries returns the newest n entries, oldest first.
func (s *Store) TailEntries(ctx context.Context, n int) ([]StoredEntry, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	if n <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT message_id, run_id, ts, author_name, author_id, text, fetched_at
		FROM entries
		ORDER BY ts DESC, id DESC
		LIMIT ?
	`, n)
	if err != nil {
		return nil, fmt.Errorf("tail entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []StoredEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	slices.Reverse(entries)
	return entries, nil
}

// LatestTimestamp returns the newest stored entry timestamp. ok is false
// when the store holds no entries.
func (s *Store) LatestTimestamp(ctx context.Context) (ts int64, ok bool, err error) {
	if s == nil || s.db == nil {
		return 0, false, errors.New("store is not initialized")
	}
	var v sql.NullInt64
	if err := s.db.QueryRowContext(ctx, "SELECT MAX(ts) FROM entries").Scan(&v); err != nil {
		return 0, false, fmt.Errorf("latest timestamp: %w", err)
	}
	return v.Int64, v.Valid, nil
}

// PruneOld deletes entries older than retainDays and runs left without entries.
// Returns the number of entries removed.
func (s *Store) PruneOld(ctx context.Context, retainDays int) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("store is not initialized")
	}
	if retainDays <= 0 {
		return 0, nil
	}

	cutoff := time.Now().AddDate(0, 0, -retainDays)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin prune transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, "DELETE FROM entries WHERE ts < ?", cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("prune old entries: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM runs
		WHERE started_at < ?
		AND NOT EXISTS (SELECT 1 FROM entries e WHERE e.run_id = runs.id)
	`, formatTime(cutoff)); err != nil {
		return 0, fmt.Errorf("prune empty runs: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit prune: %w", err)
	}

	n, _ := res.RowsAffected()
	return n, nil
}

func (s *Store) Stats(ctx context.Context) (Stats, error) {
	if s == nil || s.db == nil {
		return Stats{}, errors.New("store is not initialized")
	}

	var (
		st          Stats
		first, last sql.NullInt64
	)
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT NULLIF(author_id, '')), MIN(ts), MAX(ts)
		FROM entries
	`).Scan(&st.Entries, &st.Authors, &first, &last); err != nil {
		return Stats{}, fmt.Errorf("entry stats: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs").Scan(&st.Runs); err != nil {
		return Stats{}, fmt.Errorf("run stats: %w", err)
	}
	st.First = first.Int64
	st.Last = last.Int64
	return st, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(scanner rowScanner) (StoredEntry, error) {
	var (
		e            StoredEntry
		idVal, runID sql.NullString
		fetchedAt    string
	)
	if err := scanner.Scan(
		&idVal,
		&runID,
		&e.Timestamp,
		&e.AuthorName,
		&e.AuthorID,
		&e.Text,
		&fetchedAt,
	); err != nil {
		return StoredEntry{}, fmt.Errorf("scan entry: %w", err)
	}

	e.ID = idVal.String
	e.RunID = runID.String

	var err error
	e.FetchedAt, err = parseTime(fetchedAt)
	if err != nil {
		return StoredEntry{}, fmt.Errorf("parse fetched_at: %w", err)
	}
	return e, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts, nil
	}
	return time.Parse(time.RFC3339, value)
}
