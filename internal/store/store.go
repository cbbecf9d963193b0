package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound is returned when a referenced row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrTransition is returned when a post's status does not allow the
	// requested change.
	ErrTransition = errors.New("invalid status transition")
	// ErrCommentMismatch is returned when an approval names a comment that
	// belongs to a different post.
	ErrCommentMismatch = errors.New("comment does not belong to post")
)

// Store handles all database operations
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New creates a new Store with SQLite backend
func New(dbPath string) (*Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}

	// WAL lets readers proceed while a background unit holds the write lock.
	// Foreign keys give referential integrity on insert.
	dsn := "file:" + dbPath +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=foreign_keys(1)" +
		"&_time_format=sqlite"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return s, nil
}

// SetClock overrides the time source used for store-assigned timestamps.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS posts (
		id TEXT PRIMARY KEY,
		url TEXT UNIQUE NOT NULL,
		author_handle TEXT NOT NULL,
		author_name TEXT,
		author_followers INTEGER,
		author_verified BOOLEAN NOT NULL DEFAULT 0,
		text TEXT NOT NULL,
		views INTEGER,
		likes INTEGER NOT NULL DEFAULT 0,
		replies INTEGER NOT NULL DEFAULT 0,
		retweets INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME,
		discovered_at DATETIME NOT NULL,
		source TEXT,
		score REAL NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'pending'
	);

	CREATE TABLE IF NOT EXISTS comments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		post_id TEXT NOT NULL REFERENCES posts(id),
		comment_type TEXT NOT NULL,
		text TEXT NOT NULL,
		generated_at DATETIME NOT NULL,
		issues TEXT
	);

	CREATE TABLE IF NOT EXISTS approvals (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		post_id TEXT NOT NULL REFERENCES posts(id),
		comment_id INTEGER NOT NULL REFERENCES comments(id),
		option_chosen TEXT,
		custom_text TEXT,
		approved_at DATETIME NOT NULL,
		posted_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS account_checks (
		handle TEXT PRIMARY KEY COLLATE NOCASE,
		last_checked_at DATETIME,
		priority TEXT NOT NULL DEFAULT 'medium',
		check_every_hours INTEGER NOT NULL DEFAULT 6
	);

	CREATE TABLE IF NOT EXISTS comment_performance (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		post_id TEXT NOT NULL REFERENCES posts(id),
		comment_id INTEGER NOT NULL REFERENCES comments(id),
		likes_after_24h INTEGER DEFAULT 0,
		replies_after_24h INTEGER DEFAULT 0,
		measured_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_posts_discovered_at ON posts(discovered_at);
	CREATE INDEX IF NOT EXISTS idx_comments_post_id ON comments(post_id);
	CREATE INDEX IF NOT EXISTS idx_approvals_approved_at ON approvals(approved_at);
	CREATE INDEX IF NOT EXISTS idx_approvals_posted_at ON approvals(posted_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// ts normalizes a timestamp for storage. Second precision in UTC keeps the
// stored text fixed-width, so string comparison in SQL is chronological.
func ts(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

// nullTime maps the zero time to NULL.
func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: ts(t), Valid: true}
}

func nullInt(n *int) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*n), Valid: true}
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}
