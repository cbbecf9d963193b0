package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ibeckermayer/replyscout/internal/types"
)

const postColumns = `id, url, author_handle, author_name, author_followers, author_verified,
	text, views, likes, replies, retweets, created_at, discovered_at, source, score, status`

// InsertPost records a discovered post with status pending. It is a no-op
// when a post with the same id or url already exists; created reports
// whether a row was written.
func (s *Store) InsertPost(ctx context.Context, p *types.Post) (created bool, err error) {
	discovered := p.DiscoveredAt
	if discovered.IsZero() {
		discovered = s.now()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO posts (`+postColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.URL, p.AuthorHandle, p.AuthorName, nullInt(p.AuthorFollowers), p.AuthorVerified,
		p.Text, nullInt(p.Views), p.Likes, p.Replies, p.Retweets,
		nullTime(p.CreatedAt), ts(discovered), p.Source, p.Score, string(types.StatusPending))
	if err != nil {
		return false, fmt.Errorf("failed to insert post %s: %w", p.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetPost returns the post with the given id, or ErrNotFound.
func (s *Store) GetPost(ctx context.Context, id string) (*types.Post, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts WHERE id = ?`, id)
	p, err := scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("post %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// SeenIDs returns the id of every post ever recorded.
func (s *Store) SeenIDs(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM posts`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	seen := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		seen[id] = true
	}
	return seen, rows.Err()
}

// UpdateScore stores the computed score for a post.
func (s *Store) UpdateScore(ctx context.Context, id string, score float64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE posts SET score = ? WHERE id = ?`, score, id)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (*types.Post, error) {
	var (
		p          types.Post
		authorName sql.NullString
		source     sql.NullString
		followers  sql.NullInt64
		views      sql.NullInt64
		createdAt  sql.NullTime
		status     string
	)

	err := row.Scan(
		&p.ID, &p.URL, &p.AuthorHandle, &authorName, &followers, &p.AuthorVerified,
		&p.Text, &views, &p.Likes, &p.Replies, &p.Retweets, &createdAt, &p.DiscoveredAt,
		&source, &p.Score, &status,
	)
	if err != nil {
		return nil, err
	}

	p.AuthorName = authorName.String
	p.Source = source.String
	p.AuthorFollowers = intPtr(followers)
	p.Views = intPtr(views)
	if createdAt.Valid {
		p.CreatedAt = createdAt.Time
	}
	p.Status = types.Status(status)
	return &p, nil
}
