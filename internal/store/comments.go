package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ibeckermayer/replyscout/internal/types"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// InsertComment stores a comment for an existing post and returns its id.
func (s *Store) InsertComment(ctx context.Context, c *types.Comment) (int64, error) {
	return s.insertComment(ctx, s.db, c)
}

func (s *Store) insertComment(ctx context.Context, db execer, c *types.Comment) (int64, error) {
	issues := c.Issues
	if issues == nil {
		issues = []types.Issue{}
	}
	issuesJSON, err := json.Marshal(issues)
	if err != nil {
		return 0, err
	}

	generated := c.GeneratedAt
	if generated.IsZero() {
		generated = s.now()
	}

	res, err := db.ExecContext(ctx, `
		INSERT INTO comments (post_id, comment_type, text, generated_at, issues)
		VALUES (?, ?, ?, ?, ?)
	`, c.PostID, string(c.Tone), c.Text, ts(generated), string(issuesJSON))
	if err != nil {
		return 0, fmt.Errorf("failed to insert %s comment for post %s: %w", c.Tone, c.PostID, err)
	}
	return res.LastInsertId()
}

// GetComment returns the comment with the given id, or ErrNotFound.
func (s *Store) GetComment(ctx context.Context, id int64) (*types.Comment, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, post_id, comment_type, text, generated_at, issues
		FROM comments WHERE id = ?
	`, id)
	c, err := scanComment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("comment %d: %w", id, ErrNotFound)
	}
	return c, err
}

// CommentsForPost returns a post's comments in insertion order.
func (s *Store) CommentsForPost(ctx context.Context, postID string) ([]types.Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, post_id, comment_type, text, generated_at, issues
		FROM comments WHERE post_id = ? ORDER BY id
	`, postID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var comments []types.Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		comments = append(comments, *c)
	}
	return comments, rows.Err()
}

// CommentForTone returns the most recent comment of the given tone for a
// post, or ErrNotFound.
func (s *Store) CommentForTone(ctx context.Context, postID string, tone types.Tone) (*types.Comment, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, post_id, comment_type, text, generated_at, issues
		FROM comments WHERE post_id = ? AND comment_type = ?
		ORDER BY id DESC LIMIT 1
	`, postID, string(tone))
	c, err := scanComment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s comment for post %s: %w", tone, postID, ErrNotFound)
	}
	return c, err
}

func scanComment(row rowScanner) (*types.Comment, error) {
	var (
		c          types.Comment
		tone       string
		generated  time.Time
		issuesJSON sql.NullString
	)
	if err := row.Scan(&c.ID, &c.PostID, &tone, &c.Text, &generated, &issuesJSON); err != nil {
		return nil, err
	}
	c.Tone = types.Tone(tone)
	c.GeneratedAt = generated
	if issuesJSON.Valid && issuesJSON.String != "" {
		if err := json.Unmarshal([]byte(issuesJSON.String), &c.Issues); err != nil {
			return nil, fmt.Errorf("comment %d has malformed issues: %w", c.ID, err)
		}
	}
	return &c, nil
}
