package watch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibeckermayer/replyscout/internal/types"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type memStore struct {
	watches []types.AccountWatch
	touched map[string]time.Time
}

func (m *memStore) Watches(context.Context) ([]types.AccountWatch, error) {
	return m.watches, nil
}

func (m *memStore) TouchWatch(_ context.Context, handle string, at time.Time) error {
	if m.touched == nil {
		m.touched = map[string]time.Time{}
	}
	m.touched[handle] = at
	return nil
}

type profileSource struct {
	profiles map[string][]types.Post
	failing  map[string]bool
	polled   []string
}

func (p *profileSource) SearchTopic(context.Context, string, int) ([]types.Post, error) {
	return nil, nil
}

func (p *profileSource) PollAccount(_ context.Context, handle string, _ int) ([]types.Post, error) {
	p.polled = append(p.polled, handle)
	if p.failing[handle] {
		return nil, errors.New("profile did not load")
	}
	return p.profiles[handle], nil
}

func (p *profileSource) FetchExistingReplies(context.Context, string, int) ([]types.Reply, error) {
	return nil, nil
}

func ago(d time.Duration) *time.Time {
	t := now.Add(-d)
	return &t
}

func TestDue(t *testing.T) {
	w := types.AccountWatch{Handle: "a", CheckEveryHours: 6}
	assert.True(t, Due(w, now), "never checked")

	w.LastCheckedAt = ago(2 * time.Hour)
	assert.False(t, Due(w, now))

	w.LastCheckedAt = ago(7 * time.Hour)
	assert.True(t, Due(w, now))

	w.LastCheckedAt = ago(6 * time.Hour)
	assert.True(t, Due(w, now), "exactly one interval elapsed")
}

func TestPollSkipsRecentAndAdvancesPolled(t *testing.T) {
	store := &memStore{watches: []types.AccountWatch{
		{Handle: "recent", Priority: types.PriorityHigh, CheckEveryHours: 6, LastCheckedAt: ago(2 * time.Hour)},
		{Handle: "stale", Priority: types.PriorityHigh, CheckEveryHours: 6, LastCheckedAt: ago(7 * time.Hour)},
		{Handle: "quiet", Priority: types.PriorityLow, CheckEveryHours: 6},
	}}
	src := &profileSource{profiles: map[string][]types.Post{
		"stale": {{ID: "1"}, {ID: "seen"}},
	}}

	s := New(store, 5, WithClock(func() time.Time { return now }))
	posts, err := s.Poll(context.Background(), src, map[string]bool{"seen": true})
	require.NoError(t, err)

	assert.Equal(t, []string{"stale", "quiet"}, src.polled)
	require.Len(t, posts, 1)
	assert.Equal(t, "1", posts[0].ID)
	assert.Equal(t, 3.0, posts[0].PriorityBoost)
	assert.Equal(t, types.SourceAccountMonitor, posts[0].Source)

	assert.Equal(t, now, store.touched["stale"])
	assert.Equal(t, now, store.touched["quiet"], "advanced even with no new posts")
	assert.NotContains(t, store.touched, "recent")
}

func TestPollFailureDoesNotAbortBatch(t *testing.T) {
	store := &memStore{watches: []types.AccountWatch{
		{Handle: "broken", Priority: types.PriorityMedium, CheckEveryHours: 6},
		{Handle: "fine", Priority: types.PriorityMedium, CheckEveryHours: 6},
	}}
	src := &profileSource{
		profiles: map[string][]types.Post{"fine": {{ID: "9"}}},
		failing:  map[string]bool{"broken": true},
	}

	s := New(store, 5, WithClock(func() time.Time { return now }))
	posts, err := s.Poll(context.Background(), src, nil)
	require.NoError(t, err)

	require.Len(t, posts, 1)
	assert.Equal(t, 1.0, posts[0].PriorityBoost)
	assert.NotContains(t, store.touched, "broken", "failed poll is retried next run")
	assert.Contains(t, store.touched, "fine")
}
