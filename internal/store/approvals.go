package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ibeckermayer/replyscout/internal/types"
)

// OptionCustom is the option recorded for reviewer-written replies.
const OptionCustom = "custom"

// Approve records that commentID was chosen for postID and moves the post to
// approved. A post that was already approved may be approved again with a
// different comment; skipped and posted posts are refused with ErrTransition.
func (s *Store) Approve(ctx context.Context, postID string, commentID int64, option string) (*types.Approval, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	// The status update goes first so the transaction holds the write lock
	// before anything is read.
	if err := s.markApproved(ctx, tx, postID); err != nil {
		return nil, err
	}

	var owner string
	err = tx.QueryRowContext(ctx, `SELECT post_id FROM comments WHERE id = ?`, commentID).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("comment %d: %w", commentID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if owner != postID {
		return nil, fmt.Errorf("comment %d on post %s: %w", commentID, postID, ErrCommentMismatch)
	}

	a, err := s.insertApproval(ctx, tx, postID, commentID, option, "")
	if err != nil {
		return nil, err
	}
	return a, tx.Commit()
}

// ApproveCustom stores reviewer-written text as a custom comment and
// approves it, in one transaction.
func (s *Store) ApproveCustom(ctx context.Context, postID, text string) (*types.Approval, *types.Comment, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback()

	if err := s.markApproved(ctx, tx, postID); err != nil {
		return nil, nil, err
	}

	c := &types.Comment{
		PostID:      postID,
		Tone:        types.ToneCustom,
		Text:        text,
		GeneratedAt: s.now(),
	}
	id, err := s.insertComment(ctx, tx, c)
	if err != nil {
		return nil, nil, err
	}
	c.ID = id

	a, err := s.insertApproval(ctx, tx, postID, id, OptionCustom, text)
	if err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	return a, c, nil
}

// Skip moves a pending post to skipped.
func (s *Store) Skip(ctx context.Context, postID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE posts SET status = ? WHERE id = ? AND status = ?`,
		string(types.StatusSkipped), postID, string(types.StatusPending))
	if err != nil {
		return err
	}
	return s.checkTransition(ctx, s.db, res, postID)
}

// MarkPosted stamps posted_at on an approval and moves its post to posted.
// It fails with ErrTransition when the approval was already posted.
func (s *Store) MarkPosted(ctx context.Context, approvalID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE approvals SET posted_at = ? WHERE id = ? AND posted_at IS NULL`,
		ts(s.now()), approvalID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}

	var postID string
	err = tx.QueryRowContext(ctx, `SELECT post_id FROM approvals WHERE id = ?`, approvalID).Scan(&postID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("approval %d: %w", approvalID, ErrNotFound)
	}
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("approval %d already posted: %w", approvalID, ErrTransition)
	}

	res, err = tx.ExecContext(ctx,
		`UPDATE posts SET status = ? WHERE id = ? AND status = ?`,
		string(types.StatusPosted), postID, string(types.StatusApproved))
	if err != nil {
		return err
	}
	if err := s.checkTransition(ctx, tx, res, postID); err != nil {
		return err
	}
	return tx.Commit()
}

// GetApproval returns the approval with the given id, or ErrNotFound.
func (s *Store) GetApproval(ctx context.Context, id int64) (*types.Approval, error) {
	var (
		a        types.Approval
		option   sql.NullString
		custom   sql.NullString
		postedAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, post_id, comment_id, option_chosen, custom_text, approved_at, posted_at
		FROM approvals WHERE id = ?
	`, id).Scan(&a.ID, &a.PostID, &a.CommentID, &option, &custom, &a.ApprovedAt, &postedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("approval %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	a.OptionChosen = option.String
	a.CustomText = custom.String
	if postedAt.Valid {
		t := postedAt.Time
		a.PostedAt = &t
	}
	return &a, nil
}

type queryExecer interface {
	execer
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) markApproved(ctx context.Context, tx *sql.Tx, postID string) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE posts SET status = ? WHERE id = ? AND status IN (?, ?)`,
		string(types.StatusApproved), postID,
		string(types.StatusPending), string(types.StatusApproved))
	if err != nil {
		return err
	}
	return s.checkTransition(ctx, tx, res, postID)
}

// checkTransition turns a conditional status update that touched no rows
// into ErrNotFound or ErrTransition.
func (s *Store) checkTransition(ctx context.Context, db queryExecer, res sql.Result, postID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var status string
	err = db.QueryRowContext(ctx, `SELECT status FROM posts WHERE id = ?`, postID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("post %s: %w", postID, ErrNotFound)
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("post %s is %s: %w", postID, status, ErrTransition)
}

func (s *Store) insertApproval(ctx context.Context, tx *sql.Tx, postID string, commentID int64, option, customText string) (*types.Approval, error) {
	a := &types.Approval{
		PostID:       postID,
		CommentID:    commentID,
		OptionChosen: option,
		CustomText:   customText,
		ApprovedAt:   ts(s.now()),
	}

	var custom sql.NullString
	if customText != "" {
		custom = sql.NullString{String: customText, Valid: true}
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO approvals (post_id, comment_id, option_chosen, custom_text, approved_at)
		VALUES (?, ?, ?, ?, ?)
	`, postID, commentID, option, custom, a.ApprovedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert approval for post %s: %w", postID, err)
	}
	if a.ID, err = res.LastInsertId(); err != nil {
		return nil, err
	}
	return a, nil
}
