package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ibeckermayer/replyscout/internal/approval"
	"github.com/ibeckermayer/replyscout/internal/config"
	"github.com/ibeckermayer/replyscout/internal/discovery"
	"github.com/ibeckermayer/replyscout/internal/generator"
	"github.com/ibeckermayer/replyscout/internal/notifier"
	"github.com/ibeckermayer/replyscout/internal/ranking"
	"github.com/ibeckermayer/replyscout/internal/store"
	"github.com/ibeckermayer/replyscout/internal/types"
	"github.com/ibeckermayer/replyscout/internal/watch"
)

// Test mode limits
const (
	testKeywords   = 3
	testCandidates = 1
)

// ErrRunInProgress is returned when RunOnce is called while a run is active.
var ErrRunInProgress = errors.New("a run is already in progress")

// sendGap spaces consecutive cards.
var sendGap = time.Second

// RunOptions controls a single pipeline run
type RunOptions struct {
	// Test searches only the first few keywords, skips watched accounts,
	// generates for one candidate and logs a preview instead of sending.
	Test bool
}

// RunSummary counts what a run did
type RunSummary struct {
	RunID      string
	Discovered int
	Ranked     int
	Generated  int
	Sent       int
}

// Candidate is a ranked post with its generated options. It is the cached
// output of the generated step.
type Candidate struct {
	Post     types.Post         `json:"post"`
	Replies  []types.Reply      `json:"replies"`
	Results  []generator.Result `json:"results"`
	Comments []types.Comment    `json:"comments"`
}

// RunOnce discovers, ranks, generates and sends cards. Partial failures
// (a keyword, an account, a provider, a card) are logged and skipped; only
// failures to open the session or read the store end the run.
func (a *App) RunOnce(ctx context.Context, opts RunOptions) (*RunSummary, error) {
	if !a.running.TryLock() {
		return nil, ErrRunInProgress
	}
	defer a.running.Unlock()

	s := a.getSnapshot()
	sum := &RunSummary{RunID: uuid.NewString()[:8]}
	logger := a.logger.With("run", sum.RunID, "test", opts.Test)
	logger.Info("run starting")

	err := a.run(ctx, logger, s, opts, sum)
	a.countRun(err)
	if err != nil {
		logger.Error("run failed", "error", err)
		return sum, err
	}
	logger.Info("run complete", "discovered", sum.Discovered, "ranked", sum.Ranked, "generated", sum.Generated, "sent", sum.Sent)
	return sum, nil
}

func (a *App) run(ctx context.Context, logger *slog.Logger, s snapshot, opts RunOptions, sum *RunSummary) error {
	cfg := s.config

	seen, err := a.store.SeenIDs(ctx)
	if err != nil {
		return fmt.Errorf("failed to load seen posts: %w", err)
	}

	session, err := s.components.Open(ctx)
	if err != nil {
		return fmt.Errorf("failed to open session: %w", err)
	}
	defer session.Close()

	// Step 1: discover
	keywords := cfg.Keywords()
	if opts.Test && len(keywords) > testKeywords {
		keywords = keywords[:testKeywords]
	}
	topic := discovery.SearchTopics(ctx, session, discovery.SearchOptions{
		Keywords:   keywords,
		PerKeyword: cfg.Scraping.PostsPerKeyword,
		Delay:      time.Duration(cfg.Scraping.SearchDelaySeconds) * time.Second,
	}, seen)

	var account []types.Post
	if !opts.Test {
		sched := watch.New(a.store, cfg.Scraping.PostsPerProfile,
			watch.WithDelay(time.Duration(cfg.Scraping.SearchDelaySeconds)*time.Second))
		account, err = sched.Poll(ctx, session, seen)
		if err != nil {
			logger.Error("account polling failed", "error", err)
		}
	}

	all := discovery.Aggregate(topic, account, seen)
	sum.Discovered = len(all)
	logger.Info("discovery done", "topic", len(topic), "account", len(account), "total", len(all))
	if len(all) == 0 {
		logger.Warn("no posts discovered, check cookies or keywords")
		return ctx.Err()
	}

	// Test runs leave the store untouched so a later real run sees the
	// same posts as new.
	persist := !opts.Test
	for i := range all {
		if persist {
			if _, err := a.store.InsertPost(ctx, &all[i]); err != nil {
				return fmt.Errorf("failed to record post %s: %w", all[i].ID, err)
			}
		}
		if a.metrics != nil {
			a.metrics.Discovered.WithLabelValues(sourceLabel(all[i].Source)).Inc()
		}
	}
	a.cacheStep(logger, cfg, sum.RunID, store.StepDiscovered, all)

	// Step 2: filter and rank
	topN := cfg.Filtering.TopNPosts
	if limit := cfg.Generation.MaxPosts; limit > 0 && limit < topN {
		topN = limit
	}
	if opts.Test {
		topN = testCandidates
	}
	ranked := ranking.FilterAndRank(all, seen, ranking.Options{
		MinScore:     cfg.Filtering.MinScore,
		MinViews:     cfg.Filtering.MinViews,
		MinFollowers: cfg.Filtering.MinAuthorFollowers,
		TopN:         topN,
		MaxAge:       time.Duration(cfg.Scraping.MaxPostAgeHours) * time.Hour,
	}, time.Now())
	sum.Ranked = len(ranked)
	if a.metrics != nil {
		a.metrics.Ranked.Add(float64(len(ranked)))
	}
	logger.Info("ranking done", "selected", len(ranked))
	if len(ranked) == 0 {
		logger.Info("no posts passed the filter threshold")
		return ctx.Err()
	}
	if persist {
		for _, p := range ranked {
			if err := a.store.UpdateScore(ctx, p.ID, p.Score); err != nil {
				logger.Warn("failed to record score", "post", p.ID, "error", err)
			}
		}
	}
	a.cacheStep(logger, cfg, sum.RunID, store.StepRanked, ranked)

	// Step 3: research existing replies and generate
	var candidates []Candidate
	for _, p := range ranked {
		if err := ctx.Err(); err != nil {
			return err
		}
		c := a.generate(ctx, logger, s, session, p, persist)
		if len(c.Comments) == 0 {
			logger.Error("every tone failed, skipping post", "post", p.ID)
			continue
		}
		candidates = append(candidates, c)
	}
	sum.Generated = len(candidates)
	a.cacheStep(logger, cfg, sum.RunID, store.StepGenerated, candidates)

	// Step 4: send
	if opts.Test {
		preview(logger, candidates)
		return nil
	}
	for i, c := range candidates {
		if i > 0 && sendGap > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(sendGap):
			}
		}
		card := notifier.Card{Post: c.Post, Comments: c.Comments, Keyboard: approval.CardKeyboard(c.Post)}
		if len(c.Replies) > 0 {
			card.TopReply = &c.Replies[0]
		}
		if _, err := a.notifier.SendCard(ctx, card); err != nil {
			logger.Warn("failed to send card", "post", c.Post.ID, "error", err)
			continue
		}
		sum.Sent++
		if a.metrics != nil {
			a.metrics.Cards.Inc()
		}
		logger.Info("card sent", "post", c.Post.ID, "url", c.Post.URL)
	}
	return nil
}

func (a *App) generate(ctx context.Context, logger *slog.Logger, s snapshot, session discovery.Session, p types.Post, persist bool) Candidate {
	cfg := s.config
	c := Candidate{Post: p}

	replies, err := session.FetchExistingReplies(ctx, p.URL, cfg.Generation.ReplyContext)
	if err != nil {
		logger.Warn("could not fetch replies", "post", p.ID, "error", err)
	} else if len(replies) == 0 {
		logger.Info("no replies yet", "post", p.ID, "author", p.AuthorHandle)
	}
	c.Replies = replies

	c.Results = s.components.Generator.Generate(ctx, p, replies)
	now := time.Now()
	for _, r := range c.Results {
		if r.Failed() {
			continue
		}
		comment := r.Comment(p.ID, now)
		if persist {
			id, err := a.store.InsertComment(ctx, &comment)
			if err != nil {
				logger.Error("failed to store comment", "post", p.ID, "tone", r.Tone, "error", err)
				continue
			}
			comment.ID = id
		}
		c.Comments = append(c.Comments, comment)
	}
	logger.Info("generated", "post", p.ID, "author", p.AuthorHandle, "score", p.Score, "options", len(c.Comments))
	return c
}

func preview(logger *slog.Logger, candidates []Candidate) {
	logger.Info("test mode preview, nothing sent", "posts", len(candidates))
	for _, c := range candidates {
		logger.Info("post", "url", c.Post.URL, "score", c.Post.Score)
		for _, r := range c.Results {
			logger.Info("option", "tone", r.Tone, "provider", r.Provider, "text", truncate(r.Text, 80))
		}
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// keepSteps is how many cached outputs are kept per step.
const keepSteps = 20

func (a *App) cacheStep(logger *slog.Logger, cfg *config.Config, runID string, step store.StepName, data any) {
	if !cfg.Debug.CacheSteps {
		return
	}
	path, err := store.SaveStepOutput(step, runID, data)
	if err != nil {
		logger.Warn("failed to cache step", "step", step, "error", err)
		return
	}
	logger.Debug("cached step", "step", step, "path", path)
	if _, err := store.PruneStepOutputs(step, keepSteps); err != nil {
		logger.Warn("failed to prune step cache", "step", step, "error", err)
	}
}

func (a *App) countRun(err error) {
	if a.metrics == nil {
		return
	}
	outcome := "ok"
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		outcome = "canceled"
	case err != nil:
		outcome = "error"
	}
	a.metrics.Runs.WithLabelValues(outcome).Inc()
}

func sourceLabel(source string) string {
	if strings.HasPrefix(source, types.SourceOnDemandPrefix) {
		return "on_demand"
	}
	return source
}
