// Package scraper reads posts, profiles and threads from x.com with a
// cookie-authenticated headless browser.
package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/ibeckermayer/replyscout/internal/browser"
	"github.com/ibeckermayer/replyscout/internal/discovery"
	"github.com/ibeckermayer/replyscout/internal/types"
)

// Options configures a Session
type Options struct {
	Headless bool
	Proxy    string
	// Timeout bounds a single page scrape including scrolling.
	Timeout time.Duration
	// ScrollPause is the base wait after each scroll; up to the same amount
	// of jitter is added.
	ScrollPause time.Duration
}

// maxIdleScrolls stops scrolling after this many scrolls without new posts
const maxIdleScrolls = 5

// Session is one browser shared by every scrape in a run
type Session struct {
	ctx    context.Context
	cancel context.CancelFunc
	opts   Options
	now    func() time.Time
	logger *slog.Logger
}

var _ discovery.Session = (*Session)(nil)

// Open starts a browser and signs in with cookies. A session that does not
// look signed in is still returned; pages then show less data.
func Open(ctx context.Context, cookies []*network.Cookie, opts Options) (*Session, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}
	if opts.ScrollPause <= 0 {
		opts.ScrollPause = 1500 * time.Millisecond
	}

	browserCtx, cancel, err := browser.Launch(ctx, opts.Headless, opts.Proxy)
	if err != nil {
		return nil, err
	}
	s := &Session{
		ctx:    browserCtx,
		cancel: cancel,
		opts:   opts,
		now:    time.Now,
		logger: slog.With("component", "scraper"),
	}

	startCtx, startCancel := context.WithTimeout(browserCtx, time.Minute)
	defer startCancel()

	if err := browser.InjectCookies(startCtx, cookies); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to inject cookies: %w", err)
	}
	if err := chromedp.Run(startCtx, chromedp.Navigate("https://x.com/home")); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open x.com: %w", err)
	}

	checkCtx, checkCancel := context.WithTimeout(startCtx, 10*time.Second)
	defer checkCancel()
	if err := chromedp.Run(checkCtx, chromedp.WaitVisible(browser.ProfileLink, chromedp.ByQuery)); err != nil {
		s.logger.Warn("cookie login may have failed, some data might be missing")
	} else {
		s.logger.Info("signed in to x.com via cookies")
	}

	return s, nil
}

// Close tears down the browser.
func (s *Session) Close() error {
	s.cancel()
	return nil
}

// SearchTopic returns up to limit posts from the live search for keyword.
func (s *Session) SearchTopic(ctx context.Context, keyword string, limit int) ([]types.Post, error) {
	u := "https://x.com/search?q=" + url.QueryEscape(keyword) + "&f=live&src=typed_query"
	s.logger.Info("searching topic", "keyword", keyword)
	posts, err := s.scrapeTimeline(ctx, u, limit)
	if err != nil {
		return nil, &discovery.SourceError{Op: "search", Target: keyword, Err: err}
	}
	return posts, nil
}

// PollAccount returns up to limit recent posts from handle's profile.
func (s *Session) PollAccount(ctx context.Context, handle string, limit int) ([]types.Post, error) {
	handle = strings.TrimPrefix(handle, "@")
	s.logger.Info("polling account", "handle", handle)
	posts, err := s.scrapeTimeline(ctx, "https://x.com/"+url.PathEscape(handle), limit)
	if err != nil {
		return nil, &discovery.SourceError{Op: "poll", Target: handle, Err: err}
	}
	return posts, nil
}

// FetchExistingReplies returns the most liked replies visible on the thread
// page of postURL.
func (s *Session) FetchExistingReplies(ctx context.Context, postURL string, limit int) ([]types.Reply, error) {
	callCtx, cancel := s.call(ctx)
	defer cancel()

	if err := chromedp.Run(callCtx,
		chromedp.Navigate(postURL),
		chromedp.WaitVisible(TweetArticle, chromedp.ByQuery),
	); err != nil {
		return nil, &discovery.SourceError{Op: "replies", Target: postURL, Err: err}
	}

	// Replies render after the root post
	if err := sleep(callCtx, 2*time.Second); err != nil {
		return nil, &discovery.SourceError{Op: "replies", Target: postURL, Err: err}
	}

	raw, err := visibleTweets(callCtx, true)
	if err != nil {
		return nil, &discovery.SourceError{Op: "replies", Target: postURL, Err: err}
	}
	return toReplies(raw, limit), nil
}

// call derives a context on the browser that also ends with ctx.
func (s *Session) call(ctx context.Context) (context.Context, context.CancelFunc) {
	callCtx, cancel := context.WithTimeout(s.ctx, s.opts.Timeout)
	stop := context.AfterFunc(ctx, cancel)
	return callCtx, func() {
		stop()
		cancel()
	}
}

// scrapeTimeline loads url and scrolls until limit unique posts are collected
// or scrolling stops producing new ones.
func (s *Session) scrapeTimeline(ctx context.Context, u string, limit int) ([]types.Post, error) {
	callCtx, cancel := s.call(ctx)
	defer cancel()

	if err := chromedp.Run(callCtx,
		chromedp.Navigate(u),
		chromedp.WaitVisible(WaitForTimeline, chromedp.ByQuery),
	); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", u, err)
	}

	// Empty results never render an article, so a missing one is not an error
	waitCtx, waitCancel := context.WithTimeout(callCtx, 10*time.Second)
	_ = chromedp.Run(waitCtx, chromedp.WaitVisible(WaitForTweets, chromedp.ByQuery))
	waitCancel()

	var posts []types.Post
	seen := make(map[string]bool)
	idle := 0

	for len(posts) < limit && idle < maxIdleScrolls {
		raw, err := visibleTweets(callCtx, false)
		if err != nil {
			return nil, err
		}

		added := 0
		now := s.now()
		for _, rp := range raw {
			p, ok := toPost(rp, now)
			if !ok || seen[p.ID] {
				continue
			}
			seen[p.ID] = true
			posts = append(posts, p)
			added++
			if len(posts) >= limit {
				break
			}
		}
		if added == 0 {
			idle++
		} else {
			idle = 0
		}
		if len(posts) >= limit {
			break
		}

		if err := chromedp.Run(callCtx, chromedp.Evaluate(`window.scrollBy(0, window.innerHeight * 2)`, nil)); err != nil {
			return nil, err
		}
		if err := sleep(callCtx, s.opts.ScrollPause+rand.N(s.opts.ScrollPause)); err != nil {
			return nil, err
		}
	}

	s.logger.Debug("scraped page", "url", u, "posts", len(posts))
	return posts, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
