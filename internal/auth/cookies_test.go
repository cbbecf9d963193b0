package auth

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const export = `[
  {"name": "auth_token", "value": "tok", "domain": ".twitter.com", "path": "/", "secure": true, "httpOnly": true, "sameSite": "no_restriction", "expirationDate": 4102444800},
  {"name": "ct0", "value": "csrf", "domain": ".x.com", "sameSite": "Lax", "expires": 4102444800},
  {"name": "guest_id", "value": "g", "domain": "x.com", "sameSite": "strict"},
  {"name": "", "value": "orphan", "domain": ".x.com"}
]`

func TestParseExport(t *testing.T) {
	cookies, err := ParseExport([]byte(export))
	require.NoError(t, err)
	require.Len(t, cookies, 3)

	assert.Equal(t, ".x.com", cookies[0].Domain, "twitter.com remapped")
	assert.Equal(t, network.CookieSameSiteNone, cookies[0].SameSite)
	assert.Equal(t, float64(4102444800), cookies[0].Expires)
	assert.True(t, cookies[0].HTTPOnly)

	assert.Equal(t, network.CookieSameSiteLax, cookies[1].SameSite)
	assert.Equal(t, "/", cookies[1].Path)
	assert.Equal(t, float64(4102444800), cookies[1].Expires)

	assert.Equal(t, network.CookieSameSiteStrict, cookies[2].SameSite)
	assert.True(t, cookies[2].Session)

	for _, c := range cookies {
		assert.Equal(t, network.CookiePriorityMedium, c.Priority, c.Name)
	}
}

func TestImportedCookiesLoadBack(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "export.json")
	require.NoError(t, os.WriteFile(src, []byte(`[
  {"name": "auth_token", "value": "tok", "domain": ".x.com", "secure": true, "sameSite": "unspecified"},
  {"name": "ct0", "value": "csrf", "domain": ".x.com"}
]`), 0600))

	cs := NewCookieStore(filepath.Join(dir, "cookies.json"))
	_, err := cs.Import(src)
	require.NoError(t, err)

	stored, err := cs.Load()
	require.NoError(t, err)
	require.Len(t, stored.Cookies, 2)
	assert.Equal(t, network.CookieSourceSchemeSecure, stored.Cookies[0].SourceScheme)
	assert.Equal(t, network.CookieSourceSchemeNonSecure, stored.Cookies[1].SourceScheme)
	assert.Empty(t, stored.Cookies[0].SameSite, "unknown sameSite is dropped")
	assert.True(t, cs.IsValid())

	xc, err := NewManager(cs, "").Cookies()
	require.NoError(t, err)
	assert.Len(t, xc, 2)
}

func TestSaveFillsRequiredCookieFields(t *testing.T) {
	cs := NewCookieStore(filepath.Join(t.TempDir(), "cookies.json"))
	in := &network.Cookie{Name: AuthTokenCookie, Value: "tok", Domain: ".x.com"}
	require.NoError(t, cs.Save([]*network.Cookie{in}))
	assert.Empty(t, in.Priority, "caller's cookie is not modified")

	stored, err := cs.Load()
	require.NoError(t, err)
	assert.Equal(t, network.CookiePriorityMedium, stored.Cookies[0].Priority)
	assert.Equal(t, int64(-1), stored.Cookies[0].SourcePort)
}

func TestParseExportRejectsObject(t *testing.T) {
	_, err := ParseExport([]byte(`{"cookies": []}`))
	assert.Error(t, err)
}

func TestImportAndValidity(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "export.json")
	require.NoError(t, os.WriteFile(src, []byte(export), 0600))

	cs := NewCookieStore(filepath.Join(dir, "cfg", "cookies.json"))
	assert.False(t, cs.IsValid(), "nothing stored yet")

	n, err := cs.Import(src)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.True(t, cs.IsValid())

	xc, err := cs.XCookies()
	require.NoError(t, err)
	assert.Len(t, xc, 3)

	cs.now = func() time.Time { return time.Date(2101, 1, 1, 0, 0, 0, 0, time.UTC) }
	assert.False(t, cs.IsValid(), "expired")

	require.NoError(t, cs.Clear())
	require.NoError(t, cs.Clear(), "clearing twice is fine")
}

func TestMissingCSRFIsInvalid(t *testing.T) {
	cs := NewCookieStore(filepath.Join(t.TempDir(), "cookies.json"))
	require.NoError(t, cs.Save([]*network.Cookie{{Name: AuthTokenCookie, Value: "tok", Domain: ".x.com"}}))
	_, err := cs.Load()
	require.NoError(t, err)
	assert.False(t, cs.IsValid())
}

func TestManagerSession(t *testing.T) {
	dir := t.TempDir()
	cs := NewCookieStore(filepath.Join(dir, "cookies.json"))
	m := NewManager(cs, "")

	info, err := m.Session()
	require.NoError(t, err)
	assert.False(t, info.Valid)
	assert.Zero(t, info.Cookies)
	assert.Equal(t, cs.Path(), info.Path)

	src := filepath.Join(dir, "export.json")
	require.NoError(t, os.WriteFile(src, []byte(export), 0600))
	_, err = cs.Import(src)
	require.NoError(t, err)

	info, err = m.Session()
	require.NoError(t, err)
	assert.True(t, info.Valid)
	assert.Equal(t, 3, info.Cookies)
	assert.False(t, info.CapturedAt.IsZero())
}
