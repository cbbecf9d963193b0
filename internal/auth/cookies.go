package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"

	"github.com/ibeckermayer/replyscout/internal/config"
)

// Cookies that must be present for an authenticated x.com session
const (
	AuthTokenCookie = "auth_token"
	CSRFCookie      = "ct0"
)

// CookieStore handles storage of x.com session cookies
type CookieStore struct {
	path string
	now  func() time.Time
}

// StoredCookies represents the persisted cookie data
type StoredCookies struct {
	Cookies    []*network.Cookie `json:"cookies"`
	CapturedAt time.Time         `json:"captured_at"`
	ExpiresAt  time.Time         `json:"expires_at"`
}

// NewCookieStore creates a cookie store at the given path
func NewCookieStore(path string) *CookieStore {
	return &CookieStore{path: path, now: time.Now}
}

// DefaultCookieStorePath returns the default path for cookie storage
func DefaultCookieStorePath() (string, error) {
	configDir, err := config.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "cookies.json"), nil
}

// Path is where cookies are persisted.
func (cs *CookieStore) Path() string {
	return cs.path
}

// Save persists cookies to disk
func (cs *CookieStore) Save(cookies []*network.Cookie) error {
	if err := os.MkdirAll(filepath.Dir(cs.path), 0700); err != nil {
		return err
	}

	complete := make([]*network.Cookie, len(cookies))
	for i, c := range cookies {
		complete[i] = withRequiredFields(c)
	}

	stored := StoredCookies{
		Cookies:    complete,
		CapturedAt: cs.now(),
		ExpiresAt:  earliestAuthExpiry(cookies),
	}

	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(cs.path, data, 0600)
}

// withRequiredFields returns a copy of c with the enum fields that cdproto
// refuses to decode when empty filled in.
func withRequiredFields(c *network.Cookie) *network.Cookie {
	out := *c
	if out.Priority == "" {
		out.Priority = network.CookiePriorityMedium
	}
	if out.SourceScheme == "" {
		out.SourceScheme = network.CookieSourceSchemeNonSecure
		if out.Secure {
			out.SourceScheme = network.CookieSourceSchemeSecure
		}
	}
	if out.SourcePort == 0 {
		out.SourcePort = -1
	}
	return &out
}

// earliestAuthExpiry is the first expiry among the session cookies. Session
// cookies without an expiry are ignored.
func earliestAuthExpiry(cookies []*network.Cookie) time.Time {
	var earliest time.Time
	for _, c := range cookies {
		if c.Name != AuthTokenCookie && c.Name != CSRFCookie {
			continue
		}
		if c.Expires <= 0 {
			continue
		}
		exp := time.Unix(int64(c.Expires), 0)
		if earliest.IsZero() || exp.Before(earliest) {
			earliest = exp
		}
	}
	return earliest
}

// Load retrieves cookies from disk
func (cs *CookieStore) Load() (*StoredCookies, error) {
	data, err := os.ReadFile(cs.path)
	if err != nil {
		return nil, err
	}

	var stored StoredCookies
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("parse %s: %w", cs.path, err)
	}

	return &stored, nil
}

// IsValid checks if stored cookies are present and unexpired
func (cs *CookieStore) IsValid() bool {
	stored, err := cs.Load()
	if err != nil {
		return false
	}

	if !stored.ExpiresAt.IsZero() && cs.now().After(stored.ExpiresAt) {
		return false
	}

	hasAuthToken, hasCT0 := false, false
	for _, c := range stored.Cookies {
		switch c.Name {
		case AuthTokenCookie:
			hasAuthToken = c.Value != ""
		case CSRFCookie:
			hasCT0 = c.Value != ""
		}
	}

	return hasAuthToken && hasCT0
}

// Clear removes stored cookies
func (cs *CookieStore) Clear() error {
	err := os.Remove(cs.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// XCookies returns only the x.com cookies for use in the browser
func (cs *CookieStore) XCookies() ([]*network.Cookie, error) {
	stored, err := cs.Load()
	if err != nil {
		return nil, err
	}

	var xCookies []*network.Cookie
	for _, c := range stored.Cookies {
		if c.Domain == ".x.com" || c.Domain == "x.com" {
			xCookies = append(xCookies, c)
		}
	}

	return xCookies, nil
}

// exportedCookie is one entry of a browser extension cookie export.
// Exporters disagree on the expiry key and on sameSite spelling.
type exportedCookie struct {
	Name           string   `json:"name"`
	Value          string   `json:"value"`
	Domain         string   `json:"domain"`
	Path           string   `json:"path"`
	Secure         bool     `json:"secure"`
	HTTPOnly       bool     `json:"httpOnly"`
	SameSite       string   `json:"sameSite"`
	Expires        *float64 `json:"expires"`
	ExpirationDate *float64 `json:"expirationDate"`
}

// ParseExport converts a browser extension cookie export (a JSON array) into
// cookies for x.com. twitter.com domains are remapped to x.com and entries
// missing a name are dropped.
func ParseExport(data []byte) ([]*network.Cookie, error) {
	var raw []exportedCookie
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("cookie export must be a JSON array: %w", err)
	}

	cookies := make([]*network.Cookie, 0, len(raw))
	for _, r := range raw {
		if r.Name == "" {
			continue
		}
		c := &network.Cookie{
			Name:     r.Name,
			Value:    r.Value,
			Domain:   strings.ReplaceAll(r.Domain, "twitter.com", "x.com"),
			Path:     r.Path,
			Secure:   r.Secure,
			HTTPOnly: r.HTTPOnly,
			SameSite: parseSameSite(r.SameSite),
			Priority: network.CookiePriorityMedium,
		}
		if c.Path == "" {
			c.Path = "/"
		}
		switch {
		case r.Expires != nil:
			c.Expires = *r.Expires
		case r.ExpirationDate != nil:
			c.Expires = *r.ExpirationDate
		default:
			c.Session = true
		}
		cookies = append(cookies, c)
	}
	return cookies, nil
}

func parseSameSite(s string) network.CookieSameSite {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "no_restriction":
		return network.CookieSameSiteNone
	case "lax":
		return network.CookieSameSiteLax
	case "strict":
		return network.CookieSameSiteStrict
	}
	return ""
}

// Import reads a cookie export file and saves the x.com session from it.
func (cs *CookieStore) Import(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	cookies, err := ParseExport(data)
	if err != nil {
		return 0, err
	}
	if err := cs.Save(cookies); err != nil {
		return 0, fmt.Errorf("failed to save cookies: %w", err)
	}
	return len(cookies), nil
}
