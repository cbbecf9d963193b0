package auth

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"

	"github.com/ibeckermayer/replyscout/internal/browser"
)

// DefaultLoginTimeout is how long Login waits for the user
const DefaultLoginTimeout = 5 * time.Minute

// Manager handles x.com authentication
type Manager struct {
	cookieStore  *CookieStore
	proxy        string
	loginTimeout time.Duration
	logger       *slog.Logger
}

// NewManager creates a new auth manager. Browsers it starts go through
// proxy when set.
func NewManager(cookieStore *CookieStore, proxy string) *Manager {
	return &Manager{
		cookieStore:  cookieStore,
		proxy:        proxy,
		loginTimeout: DefaultLoginTimeout,
		logger:       slog.With("component", "auth"),
	}
}

// SessionInfo describes the stored x.com session
type SessionInfo struct {
	Path       string
	Valid      bool
	Cookies    int
	CapturedAt time.Time
	// ExpiresAt is zero when the session cookies carry no expiry.
	ExpiresAt time.Time
}

// Session reports on the stored cookies. A missing cookie file is not an
// error; it is an invalid session.
func (m *Manager) Session() (SessionInfo, error) {
	info := SessionInfo{Path: m.cookieStore.Path()}
	stored, err := m.cookieStore.Load()
	if errors.Is(err, fs.ErrNotExist) {
		return info, nil
	}
	if err != nil {
		return info, err
	}
	info.Valid = m.cookieStore.IsValid()
	info.Cookies = len(stored.Cookies)
	info.CapturedAt = stored.CapturedAt
	info.ExpiresAt = stored.ExpiresAt
	return info, nil
}

// IsAuthenticated checks if we have valid stored credentials
func (m *Manager) IsAuthenticated() bool {
	return m.cookieStore.IsValid()
}

// Login opens a visible browser window for the user to log in to x.com and
// stores the session cookies once the home timeline loads.
func (m *Manager) Login(ctx context.Context) error {
	browserCtx, cancel, err := browser.Launch(ctx, false, m.proxy)
	if err != nil {
		return err
	}
	defer cancel()

	if err := chromedp.Run(browserCtx, chromedp.Navigate("https://x.com/login")); err != nil {
		return fmt.Errorf("failed to navigate to login page: %w", err)
	}

	m.logger.Info("waiting for login in the browser window")
	if err := m.waitForLogin(browserCtx); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	cookies, err := extractCookies(browserCtx)
	if err != nil {
		return fmt.Errorf("failed to extract cookies: %w", err)
	}

	if err := m.cookieStore.Save(cookies); err != nil {
		return fmt.Errorf("failed to save cookies: %w", err)
	}

	m.logger.Info("login captured", "cookies", len(cookies), "path", m.cookieStore.Path())
	return nil
}

// waitForLogin polls until the user has successfully logged in
func (m *Manager) waitForLogin(ctx context.Context) error {
	timeout := time.After(m.loginTimeout)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-timeout:
			return fmt.Errorf("login timeout exceeded")
		case <-ticker.C:
			var url string
			if err := chromedp.Run(ctx, chromedp.Location(&url)); err != nil {
				continue
			}
			if !strings.HasSuffix(url, "/home") {
				continue
			}
			cookies, err := extractCookies(ctx)
			if err != nil {
				continue
			}
			for _, c := range cookies {
				if c.Name == AuthTokenCookie && c.Value != "" {
					return nil
				}
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// extractCookies gets all cookies from the browser
func extractCookies(ctx context.Context) ([]*network.Cookie, error) {
	var cookies []*network.Cookie

	err := chromedp.Run(ctx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			cookies, err = storage.GetCookies().Do(ctx)
			return err
		}),
	)

	return cookies, err
}

// Logout clears stored credentials
func (m *Manager) Logout() error {
	return m.cookieStore.Clear()
}

// Cookies returns the stored x.com cookies. An error means there is no
// usable session.
func (m *Manager) Cookies() ([]*network.Cookie, error) {
	if !m.cookieStore.IsValid() {
		return nil, fmt.Errorf("no valid x.com session at %s; run login or cookies import", m.cookieStore.Path())
	}
	return m.cookieStore.XCookies()
}
