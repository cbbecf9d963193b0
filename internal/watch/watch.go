// Package watch polls monitored accounts on their own cadence.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/ibeckermayer/replyscout/internal/discovery"
	"github.com/ibeckermayer/replyscout/internal/types"
)

// Store is the persistence the scheduler needs
type Store interface {
	Watches(ctx context.Context) ([]types.AccountWatch, error)
	TouchWatch(ctx context.Context, handle string, now time.Time) error
}

// Scheduler decides which watched accounts are due and polls them
type Scheduler struct {
	store      Store
	perProfile int
	delay      time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithDelay sets the minimum spacing between two profile polls.
func WithDelay(d time.Duration) Option {
	return func(s *Scheduler) { s.delay = d }
}

// New creates a scheduler reading watches from store and fetching up to
// perProfile posts per account.
func New(store Store, perProfile int, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:      store,
		perProfile: perProfile,
		now:        time.Now,
		logger:     slog.With("component", "watch"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Due reports whether w should be polled at now.
func Due(w types.AccountWatch, now time.Time) bool {
	if w.LastCheckedAt == nil {
		return true
	}
	interval := time.Duration(w.CheckEveryHours) * time.Hour
	return now.Sub(*w.LastCheckedAt) >= interval
}

// Poll fetches new posts from every due account. Posts are tagged with the
// account's priority boost and the account_monitor source. A failed poll is
// logged and leaves last_checked_at untouched so the account is retried on
// the next run. Only a failure to read the watchlist is returned.
func (s *Scheduler) Poll(ctx context.Context, src discovery.Source, seen map[string]bool) ([]types.Post, error) {
	watches, err := s.store.Watches(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load watchlist: %w", err)
	}

	limit := rate.Inf
	if s.delay > 0 {
		limit = rate.Every(s.delay)
	}
	limiter := rate.NewLimiter(limit, 1)

	var all []types.Post
	for _, w := range watches {
		now := s.now()
		if !Due(w, now) {
			s.logger.Debug("account not due", "handle", w.Handle, "every_hours", w.CheckEveryHours)
			continue
		}
		if err := limiter.Wait(ctx); err != nil {
			s.logger.Warn("account polling interrupted", "error", err)
			break
		}

		posts, err := src.PollAccount(ctx, w.Handle, s.perProfile)
		if err != nil {
			s.logger.Error("account poll failed", "error", &discovery.SourceError{Op: "poll", Target: w.Handle, Err: err})
			continue
		}

		boost := w.Priority.Boost()
		fresh := 0
		for _, p := range posts {
			if seen[p.ID] {
				continue
			}
			p.PriorityBoost = boost
			p.Source = types.SourceAccountMonitor
			all = append(all, p)
			fresh++
		}

		if err := s.store.TouchWatch(ctx, w.Handle, now); err != nil {
			s.logger.Error("failed to record account check", "handle", w.Handle, "error", err)
		}
		s.logger.Info("account polled", "handle", w.Handle, "priority", w.Priority, "new", fresh)
	}
	return all, nil
}
