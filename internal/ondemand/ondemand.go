// Package ondemand runs reviewer-requested topic searches: no ranking gate
// and no generated replies, just the freshest high-traction posts.
package ondemand

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/ibeckermayer/replyscout/internal/approval"
	"github.com/ibeckermayer/replyscout/internal/discovery"
	"github.com/ibeckermayer/replyscout/internal/notifier"
	"github.com/ibeckermayer/replyscout/internal/types"
)

const (
	// Window is how old a post may be to be offered
	Window = 48 * time.Hour
	// ScrapeLimit is how many posts are read before selection
	ScrapeLimit = 50
)

// Store is what a search reads and records
type Store interface {
	SeenIDs(ctx context.Context) (map[string]bool, error)
	InsertPost(ctx context.Context, p *types.Post) (bool, error)
}

// Searcher runs on-demand searches and reports progress by editing a status
// message
type Searcher struct {
	open     discovery.Opener
	store    Store
	notifier notifier.Notifier
	now      func() time.Time
	logger   *slog.Logger
}

// New creates a Searcher.
func New(open discovery.Opener, store Store, n notifier.Notifier) *Searcher {
	return &Searcher{
		open:     open,
		store:    store,
		notifier: n,
		now:      time.Now,
		logger:   slog.With("component", "ondemand"),
	}
}

// Select keeps posts from the last Window that are not in seen, drops
// repeats within the batch, orders by views (highest first, unknown last,
// ties keep scrape order) and returns the first n tagged with source.
// Posts with an unknown creation time are kept.
func Select(posts []types.Post, seen map[string]bool, topic string, n int, now time.Time) []types.Post {
	cutoff := now.Add(-Window)
	batch := make(map[string]bool, len(posts))
	out := make([]types.Post, 0, len(posts))

	for _, p := range posts {
		if p.ID == "" || seen[p.ID] || batch[p.ID] {
			continue
		}
		if !p.CreatedAt.IsZero() && p.CreatedAt.Before(cutoff) {
			continue
		}
		batch[p.ID] = true
		p.Source = types.SourceOnDemandPrefix + topic
		out = append(out, p)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ViewCount() > out[j].ViewCount()
	})
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// Search finds up to n posts for topic and sends them as post-only cards.
// Progress and the outcome are written to the status message.
func (s *Searcher) Search(ctx context.Context, topic string, n int, status notifier.MessageRef) {
	logger := s.logger.With("topic", topic)
	t := notifier.Escape(topic)

	s.edit(ctx, status, fmt.Sprintf("🔍 Searching <b>%s</b>...\n\nOpening browser...", t))

	top, err := s.find(ctx, topic, n, status)
	if err != nil {
		logger.Error("on-demand search failed", "error", err)
		s.edit(ctx, status, "❌ Search failed: "+notifier.Escape(err.Error()))
		return
	}
	if top == nil {
		return
	}

	sent := 0
	for i := range top {
		p := &top[i]
		if _, err := s.store.InsertPost(ctx, p); err != nil {
			logger.Error("failed to record post", "post", p.ID, "error", err)
			continue
		}
		card := notifier.Card{Post: *p, Keyboard: approval.PostOnlyKeyboard(*p)}
		if _, err := s.notifier.SendCard(ctx, card); err != nil {
			logger.Error("failed to send post", "post", p.ID, "error", err)
			continue
		}
		sent++
		logger.Info("sent on-demand post", "n", i+1, "of", len(top), "author", p.AuthorHandle)
	}

	s.edit(ctx, status, fmt.Sprintf("✅ <b>%d/%d posts for \"%s\"</b>\n\nSorted by highest views. Tap ➕ to watch an author.", sent, len(top), t))
}

// find scrapes and selects. A nil slice with a nil error means the outcome
// was already reported.
func (s *Searcher) find(ctx context.Context, topic string, n int, status notifier.MessageRef) ([]types.Post, error) {
	t := notifier.Escape(topic)

	session, err := s.open(ctx)
	if err != nil {
		return nil, err
	}
	defer session.Close()

	s.edit(ctx, status, fmt.Sprintf("🔍 Searching <b>%s</b>...\n\nScraping posts...", t))
	raw, err := session.SearchTopic(ctx, topic, ScrapeLimit)
	if err != nil {
		return nil, err
	}
	s.logger.Info("on-demand scrape done", "topic", topic, "raw", len(raw))
	if len(raw) == 0 {
		s.edit(ctx, status, fmt.Sprintf("😕 No posts found for <b>%s</b>.\n\nTry a different keyword.", t))
		return nil, nil
	}

	seen, err := s.store.SeenIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("load seen posts: %w", err)
	}

	top := Select(raw, seen, topic, n, s.now())
	if len(top) == 0 {
		s.edit(ctx, status, fmt.Sprintf("😕 Found posts for <b>%s</b> but none passed filters.\n(All were older than 48h or already seen.)", t))
		return nil, nil
	}

	s.edit(ctx, status, fmt.Sprintf("✅ Found <b>%d posts</b> for <b>%s</b>\n\nSending now...", len(top), t))
	return top, nil
}

func (s *Searcher) edit(ctx context.Context, ref notifier.MessageRef, text string) {
	if err := s.notifier.EditMessage(ctx, ref, text); err != nil {
		s.logger.Warn("failed to update search status", "error", err)
	}
}
