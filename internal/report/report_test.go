package report

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibeckermayer/replyscout/internal/store"
)

type fakeStore struct {
	since time.Time
	stats store.DailyStats
	hour  int
}

func (f *fakeStore) Stats(_ context.Context, since time.Time) (store.DailyStats, error) {
	f.since = since
	s := f.stats
	s.Since = since
	return s, nil
}

func (f *fakeStore) CountApprovedLastHour(context.Context) (int, error) {
	return f.hour, nil
}

func TestToday(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*3600)
	fs := &fakeStore{stats: store.DailyStats{Discovered: 8, Approved: 3, Posted: 1}, hour: 2}
	b, err := New(fs, loc)
	require.NoError(t, err)
	b.now = func() time.Time { return time.Date(2026, 3, 1, 23, 30, 0, 0, time.UTC) }

	r, err := b.Today(context.Background())
	require.NoError(t, err)

	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, loc), fs.since, "day boundary in report zone")
	assert.Equal(t, "37.5%", r.ApprovalRate())
	assert.Contains(t, r.Telegram(), "🔍 Discovered: 8")
	assert.Contains(t, r.Telegram(), "📈 Approval rate: 37.5%")
	assert.Contains(t, r.Telegram(), "last hour: 2")

	e, err := b.Email(r)
	require.NoError(t, err)
	assert.Equal(t, "replyscout report - Mar 2", e.Subject)
	assert.Contains(t, e.HTMLBody, `<td class="n">3</td>`)
	assert.Contains(t, e.PlainBody, "Posted: 1")
}

func TestApprovalRateWithoutDiscovery(t *testing.T) {
	r := &Report{}
	assert.Equal(t, "N/A", r.ApprovalRate())
}
