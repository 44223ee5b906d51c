// Package journal keeps a local append-only record of delivered relays.
// It exists for inspection (admin commands, doctor) only: it is not a
// dedup table and gives no delivery guarantee.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Entry is one delivered relay.
type Entry struct {
	ID              int64
	SourceChannelID string
	TargetChannelID string
	AuthorID        string
	AuthorName      string
	// Path is "webhook" or "fallback".
	Path        string
	ContentLen  int
	Attachments int
	Embeds      int
	CreatedAt   time.Time
}

// Store implements the journal on SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewStore(dbPath string, logger *slog.Logger) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create journal directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open journal database: %w", err)
	}

	// Single connection: SQLite handles one writer at a time anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal migration failed: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS relays (
		id                 INTEGER PRIMARY KEY AUTOINCREMENT,
		source_channel_id  TEXT NOT NULL,
		target_channel_id  TEXT NOT NULL,
		author_id          TEXT,
		author_name        TEXT,
		path               TEXT NOT NULL,
		content_len        INTEGER DEFAULT 0,
		attachments        INTEGER DEFAULT 0,
		embeds             INTEGER DEFAULT 0,
		created_at         DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_relays_time ON relays(created_at);
	CREATE INDEX IF NOT EXISTS idx_relays_source ON relays(source_channel_id, created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record appends one delivered relay.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO relays (source_channel_id, target_channel_id, author_id, author_name, path, content_len, attachments, embeds, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.SourceChannelID, e.TargetChannelID, e.AuthorID, e.AuthorName, e.Path,
		e.ContentLen, e.Attachments, e.Embeds, e.CreatedAt,
	)
	return err
}

// Count returns the total number of recorded relays.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM relays`).Scan(&n)
	return n, err
}

// Recent returns the newest entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source_channel_id, target_channel_id, author_id, author_name, path, content_len, attachments, embeds, created_at
		 FROM relays ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.SourceChannelID, &e.TargetChannelID, &e.AuthorID, &e.AuthorName,
			&e.Path, &e.ContentLen, &e.Attachments, &e.Embeds, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}
