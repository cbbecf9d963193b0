// Package approval moves posts through pending, approved, skipped and posted
// in response to reviewer commands.
package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ibeckermayer/replyscout/internal/store"
	"github.com/ibeckermayer/replyscout/internal/types"
)

var (
	// ErrUnknownPost is returned when a command names a post that was never
	// recorded. Nothing is changed.
	ErrUnknownPost = errors.New("unknown post")
	// ErrNoComment is returned when the chosen tone has no stored reply.
	ErrNoComment = errors.New("no reply for that tone")
	// ErrNoHandle is returned when a watched post has no author handle.
	ErrNoHandle = errors.New("post has no author handle")
)

// Store is the persistence the machine drives
type Store interface {
	GetPost(ctx context.Context, id string) (*types.Post, error)
	CommentForTone(ctx context.Context, postID string, tone types.Tone) (*types.Comment, error)
	Approve(ctx context.Context, postID string, commentID int64, option string) (*types.Approval, error)
	ApproveCustom(ctx context.Context, postID, text string) (*types.Approval, *types.Comment, error)
	Skip(ctx context.Context, postID string) error
	AddWatch(ctx context.Context, w types.AccountWatch) (bool, error)
}

// Selection is a completed approval
type Selection struct {
	Post     *types.Post
	Comment  *types.Comment
	Approval *types.Approval
}

// Machine applies reviewer commands to the store
type Machine struct {
	store  Store
	logger *slog.Logger
}

// NewMachine creates a machine over s.
func NewMachine(s Store) *Machine {
	return &Machine{store: s, logger: slog.With("component", "approval")}
}

// Post loads a post, mapping a missing row to ErrUnknownPost.
func (m *Machine) Post(ctx context.Context, postID string) (*types.Post, error) {
	p, err := m.store.GetPost(ctx, postID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPost, postID)
	}
	return p, err
}

// Select approves the stored reply for tone. auto marks the approval as an
// auto-post choice; dispatching it is up to the caller.
func (m *Machine) Select(ctx context.Context, postID string, tone types.Tone, auto bool) (*Selection, error) {
	post, err := m.Post(ctx, postID)
	if err != nil {
		return nil, err
	}

	comment, err := m.store.CommentForTone(ctx, postID, tone)
	if errors.Is(err, store.ErrNotFound) || (err == nil && comment.Text == "") {
		return nil, fmt.Errorf("%w: %s on post %s", ErrNoComment, tone, postID)
	}
	if err != nil {
		return nil, err
	}

	option := Option(tone, auto)
	approval, err := m.store.Approve(ctx, postID, comment.ID, option)
	if err != nil {
		return nil, err
	}
	post.Status = types.StatusApproved

	m.logger.Info("post approved", "post", postID, "option", option, "approval", approval.ID)
	return &Selection{Post: post, Comment: comment, Approval: approval}, nil
}

// Custom approves reviewer-written text for the post.
func (m *Machine) Custom(ctx context.Context, postID, text string) (*Selection, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("custom reply is empty")
	}

	post, err := m.Post(ctx, postID)
	if err != nil {
		return nil, err
	}

	approval, comment, err := m.store.ApproveCustom(ctx, postID, text)
	if err != nil {
		return nil, err
	}
	post.Status = types.StatusApproved

	m.logger.Info("custom reply approved", "post", postID, "approval", approval.ID)
	return &Selection{Post: post, Comment: comment, Approval: approval}, nil
}

// Skip passes on a pending post.
func (m *Machine) Skip(ctx context.Context, postID string) (*types.Post, error) {
	post, err := m.Post(ctx, postID)
	if err != nil {
		return nil, err
	}
	if err := m.store.Skip(ctx, postID); err != nil {
		return nil, err
	}
	post.Status = types.StatusSkipped

	m.logger.Info("post skipped", "post", postID)
	return post, nil
}

// Watch adds the post's author to the watchlist with the default priority
// and cadence. added is false when the author was already watched. The
// post's status is not changed.
func (m *Machine) Watch(ctx context.Context, postID string) (handle string, added bool, err error) {
	post, err := m.Post(ctx, postID)
	if err != nil {
		return "", false, err
	}
	if post.AuthorHandle == "" {
		return "", false, ErrNoHandle
	}

	added, err = m.store.AddWatch(ctx, types.AccountWatch{
		Handle:          post.AuthorHandle,
		Priority:        types.DefaultWatchPriority,
		CheckEveryHours: types.DefaultCheckEveryHours,
	})
	if err != nil {
		return "", false, err
	}

	m.logger.Info("author watched", "handle", post.AuthorHandle, "added", added)
	return post.AuthorHandle, added, nil
}
