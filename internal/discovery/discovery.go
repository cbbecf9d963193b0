// Package discovery merges topic-search and account-watch results into one
// batch of posts that have never been seen before.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/ibeckermayer/replyscout/internal/types"
)

// Source fetches posts from X
type Source interface {
	SearchTopic(ctx context.Context, keyword string, limit int) ([]types.Post, error)
	PollAccount(ctx context.Context, handle string, limit int) ([]types.Post, error)
	FetchExistingReplies(ctx context.Context, url string, limit int) ([]types.Reply, error)
}

// Session is a Source holding resources until closed
type Session interface {
	Source
	Close() error
}

// Opener starts a new Session
type Opener func(ctx context.Context) (Session, error)

// SourceError is a single failed discovery call.
type SourceError struct {
	Op     string // "search", "poll" or "replies"
	Target string
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Op, e.Target, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// Aggregate concatenates topic and account results and removes posts whose id
// is in seen or already appeared earlier in the batch. Input order is kept.
func Aggregate(topic, account []types.Post, seen map[string]bool) []types.Post {
	out := make([]types.Post, 0, len(topic)+len(account))
	batch := make(map[string]bool, len(topic)+len(account))

	for _, group := range [][]types.Post{topic, account} {
		for _, p := range group {
			if p.ID == "" || seen[p.ID] || batch[p.ID] {
				continue
			}
			batch[p.ID] = true
			out = append(out, p)
		}
	}
	return out
}

// SearchOptions controls a topic sweep
type SearchOptions struct {
	Keywords   []string
	PerKeyword int
	// Delay is the minimum spacing between two searches.
	Delay time.Duration
}

// SearchTopics runs one search per keyword. A failed keyword is logged and
// contributes nothing. Results are tagged topic_search and filtered against
// seen. It stops early only when ctx is done.
func SearchTopics(ctx context.Context, src Source, opts SearchOptions, seen map[string]bool) []types.Post {
	logger := slog.With("component", "discovery")

	limit := rate.Inf
	if opts.Delay > 0 {
		limit = rate.Every(opts.Delay)
	}
	limiter := rate.NewLimiter(limit, 1)

	var all []types.Post
	for _, kw := range opts.Keywords {
		if err := limiter.Wait(ctx); err != nil {
			logger.Warn("topic sweep interrupted", "error", err)
			break
		}

		posts, err := src.SearchTopic(ctx, kw, opts.PerKeyword)
		if err != nil {
			logger.Error("keyword search failed", "error", &SourceError{Op: "search", Target: kw, Err: err})
			continue
		}

		fresh := 0
		for _, p := range posts {
			if seen[p.ID] {
				continue
			}
			if p.Source == "" {
				p.Source = types.SourceTopicSearch
			}
			all = append(all, p)
			fresh++
		}
		logger.Info("keyword searched", "keyword", kw, "found", len(posts), "new", fresh)
	}
	return all
}
