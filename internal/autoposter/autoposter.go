// Package autoposter publishes an approved reply through a real browser
// session.
package autoposter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"github.com/ibeckermayer/replyscout/internal/browser"
)

// Reply flow selectors
const (
	ReplyButton   = `article[data-testid="tweet"] button[data-testid="reply"]`
	ReplyTextarea = `div[data-testid="tweetTextarea_0"]`
	SubmitButton  = `button[data-testid="tweetButton"]`
)

// MaxChars caps typed text to stay under the platform limit
const MaxChars = 270

// ErrNotConfirmed means the composer never closed after submitting.
var ErrNotConfirmed = errors.New("reply composer still open after submit")

// CookieSource supplies the stored session
type CookieSource interface {
	Cookies() ([]*network.Cookie, error)
}

// Poster posts replies, one fresh browser per call
type Poster struct {
	cookies  CookieSource
	headless bool
	proxy    string
	logger   *slog.Logger
}

// New creates a Poster.
func New(cookies CookieSource, headless bool, proxy string) *Poster {
	return &Poster{
		cookies:  cookies,
		headless: headless,
		proxy:    proxy,
		logger:   slog.With("component", "autoposter"),
	}
}

// PostReply navigates to postURL, opens the reply composer, types text and
// submits it. The browser is torn down on every path.
func (p *Poster) PostReply(ctx context.Context, postURL, text string) error {
	cookies, err := p.cookies.Cookies()
	if err != nil {
		return fmt.Errorf("no session for auto-post: %w", err)
	}

	browserCtx, cancel, err := browser.Launch(ctx, p.headless, p.proxy)
	if err != nil {
		return err
	}
	defer cancel()

	if err := browser.InjectCookies(browserCtx, cookies); err != nil {
		return fmt.Errorf("failed to inject cookies: %w", err)
	}

	p.logger.Info("auto-posting reply", "url", postURL)
	if err := chromedp.Run(browserCtx,
		chromedp.Navigate(postURL),
		chromedp.WaitVisible(ReplyButton, chromedp.ByQuery),
		chromedp.ScrollIntoView(ReplyButton, chromedp.ByQuery),
		chromedp.Click(ReplyButton, chromedp.ByQuery, chromedp.NodeVisible),
	); err != nil {
		return fmt.Errorf("reply button: %w", err)
	}

	typed := Truncate(text)
	if err := chromedp.Run(browserCtx,
		chromedp.WaitVisible(ReplyTextarea, chromedp.ByQuery),
		chromedp.Click(ReplyTextarea, chromedp.ByQuery),
		chromedp.SendKeys(ReplyTextarea, typed, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("reply textarea: %w", err)
	}
	p.logger.Debug("typed reply", "chars", len([]rune(typed)))

	if err := chromedp.Run(browserCtx,
		chromedp.WaitEnabled(SubmitButton, chromedp.ByQuery),
		chromedp.Click(SubmitButton, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("submit button: %w", err)
	}

	if err := waitClosed(browserCtx, 10*time.Second); err == nil {
		p.logger.Info("reply posted", "url", postURL)
		return nil
	}

	// The submit click is sometimes swallowed; Ctrl+Enter submits from the
	// textarea.
	p.logger.Warn("composer still open, retrying with keyboard submit", "url", postURL)
	if err := chromedp.Run(browserCtx,
		chromedp.Focus(ReplyTextarea, chromedp.ByQuery),
		chromedp.KeyEvent(kb.Enter, chromedp.KeyModifiers(input.ModifierCtrl)),
	); err != nil {
		return fmt.Errorf("keyboard submit: %w", err)
	}
	if err := waitClosed(browserCtx, 10*time.Second); err != nil {
		return ErrNotConfirmed
	}

	p.logger.Info("reply posted", "url", postURL)
	return nil
}

func waitClosed(ctx context.Context, d time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return chromedp.Run(waitCtx, chromedp.WaitNotPresent(ReplyTextarea, chromedp.ByQuery))
}

// Truncate caps text at MaxChars runes.
func Truncate(text string) string {
	r := []rune(text)
	if len(r) <= MaxChars {
		return text
	}
	return string(r[:MaxChars])
}
