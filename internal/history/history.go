// Package history persists completed dictation sessions so the last
// transcript survives a failed injection or a restart.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Entry is one completed session.
type Entry struct {
	SessionID string
	Raw       string // postprocessed transcript
	Final     string // text handed to the injector
	Formatted bool
	Provider  string
	CreatedAt time.Time
}

const schema = `
	CREATE TABLE IF NOT EXISTS transcripts (
		sessionId TEXT PRIMARY KEY,
		raw TEXT NOT NULL,
		final TEXT NOT NULL,
		formatted INTEGER NOT NULL DEFAULT 0,
		provider TEXT NOT NULL DEFAULT 'none',
		createdAt REAL NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_transcripts_createdAt ON transcripts(createdAt);
`

// Store is a SQLite-backed transcript history.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the history database at path. The special
// path ":memory:" opens a private in-memory database.
func Open(path string) (*Store, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("history: creating directory: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("history: open database: %w", err)
	}
	// An in-memory database exists per connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record stores e. Recording the same session twice replaces the earlier row.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.SessionID == "" {
		return errors.New("history: entry has no session id")
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	if e.Provider == "" {
		e.Provider = "none"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO transcripts (sessionId, raw, final, formatted, provider, createdAt)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.SessionID, e.Raw, e.Final, boolToInt(e.Formatted), e.Provider, unixFromTime(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("history: insert transcript: %w", err)
	}
	return nil
}

// Last returns the most recent entry, or nil when the history is empty.
func (s *Store) Last(ctx context.Context) (*Entry, error) {
	entries, err := s.Recent(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return &entries[0], nil
}

// Recent returns up to n entries, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT sessionId, raw, final, formatted, provider, createdAt
		FROM transcripts
		ORDER BY createdAt DESC, rowid DESC
		LIMIT ?
	`, n)
	if err != nil {
		return nil, fmt.Errorf("history: query transcripts: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var formatted int
		var createdAt float64
		if err := rows.Scan(&e.SessionID, &e.Raw, &e.Final, &formatted, &e.Provider, &createdAt); err != nil {
			return nil, fmt.Errorf("history: scan transcript: %w", err)
		}
		e.Formatted = formatted != 0
		e.CreatedAt = timeFromUnix(createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func unixFromTime(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func timeFromUnix(f float64) time.Time {
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9))
}
