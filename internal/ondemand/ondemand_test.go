package ondemand

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibeckermayer/replyscout/internal/discovery"
	"github.com/ibeckermayer/replyscout/internal/notifier"
	"github.com/ibeckermayer/replyscout/internal/store"
	"github.com/ibeckermayer/replyscout/internal/types"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func post(id string, views *int, age time.Duration) types.Post {
	p := types.Post{ID: id, URL: "https://x.com/a/status/" + id, AuthorHandle: "a", Text: "post " + id, Views: views}
	if age >= 0 {
		p.CreatedAt = now.Add(-age)
	}
	return p
}

func TestSelect(t *testing.T) {
	posts := []types.Post{
		post("1", types.Count(100), time.Hour),
		post("2", types.Count(900), 50*time.Hour), // too old
		post("3", types.Count(500), time.Hour),
		post("4", nil, -1),                        // unknown age and views
		post("3", types.Count(9999), time.Hour),   // repeat in batch
		post("5", types.Count(500), 2*time.Hour),
		post("6", types.Count(10_000), time.Hour), // already seen
	}
	got := Select(posts, map[string]bool{"6": true}, "agents", 3, now)

	require.Len(t, got, 3)
	assert.Equal(t, "3", got[0].ID)
	assert.Equal(t, "5", got[1].ID, "equal views keep scrape order")
	assert.Equal(t, "1", got[2].ID)
	assert.Equal(t, "on_demand:agents", got[0].Source)

	all := Select(posts, nil, "agents", 10, now)
	assert.Equal(t, "4", all[len(all)-1].ID, "unknown views sort last")
}

type fakeSession struct {
	posts []types.Post
	err   error
}

func (f *fakeSession) SearchTopic(context.Context, string, int) ([]types.Post, error) {
	return f.posts, f.err
}
func (f *fakeSession) PollAccount(context.Context, string, int) ([]types.Post, error) {
	return nil, nil
}
func (f *fakeSession) FetchExistingReplies(context.Context, string, int) ([]types.Reply, error) {
	return nil, nil
}
func (f *fakeSession) Close() error { return nil }

type recorder struct {
	mu    sync.Mutex
	cards []notifier.Card
	edits []string
}

func (r *recorder) SendCard(_ context.Context, c notifier.Card) (notifier.MessageRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cards = append(r.cards, c)
	return notifier.MessageRef{MessageID: len(r.cards)}, nil
}
func (r *recorder) SendPlain(context.Context, string) error { return nil }
func (r *recorder) SendPrompt(context.Context, string, types.Keyboard) (notifier.MessageRef, error) {
	return notifier.MessageRef{}, nil
}
func (r *recorder) EditMessage(_ context.Context, _ notifier.MessageRef, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.edits = append(r.edits, text)
	return nil
}

func newSearcher(t *testing.T, sess *fakeSession, openErr error) (*Searcher, *store.Store, *recorder) {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "ondemand.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	rec := &recorder{}
	open := func(context.Context) (discovery.Session, error) {
		if openErr != nil {
			return nil, openErr
		}
		return sess, nil
	}
	s := New(open, st, rec)
	s.now = func() time.Time { return now }
	return s, st, rec
}

func TestSearchSendsPostOnlyCards(t *testing.T) {
	sess := &fakeSession{posts: []types.Post{
		post("1", types.Count(100), time.Hour),
		post("2", types.Count(700), time.Hour),
		post("3", types.Count(300), time.Hour),
	}}
	s, st, rec := newSearcher(t, sess, nil)
	ctx := context.Background()

	s.Search(ctx, "rag <evals>", 2, notifier.MessageRef{MessageID: 9})

	require.Len(t, rec.cards, 2)
	assert.Equal(t, "2", rec.cards[0].Post.ID)
	assert.Empty(t, rec.cards[0].Comments)
	assert.Equal(t, "skip|2", rec.cards[0].Keyboard[0][0].Token)

	stored, err := st.GetPost(ctx, "2")
	require.NoError(t, err)
	assert.Equal(t, "on_demand:rag <evals>", stored.Source)
	assert.Equal(t, types.StatusPending, stored.Status)

	last := rec.edits[len(rec.edits)-1]
	assert.Contains(t, last, "2/2 posts")
	assert.Contains(t, last, "rag &lt;evals&gt;")

	// A second search only offers what was not sent before
	s.Search(ctx, "rag <evals>", 2, notifier.MessageRef{MessageID: 10})
	require.Len(t, rec.cards, 3, "only post 1 is left")
	assert.Equal(t, "1", rec.cards[2].Post.ID)
}

func TestSearchNoResults(t *testing.T) {
	s, _, rec := newSearcher(t, &fakeSession{}, nil)
	s.Search(context.Background(), "nothing", 3, notifier.MessageRef{})
	assert.Empty(t, rec.cards)
	assert.Contains(t, rec.edits[len(rec.edits)-1], "No posts found")
}

func TestSearchAllFiltered(t *testing.T) {
	s, _, rec := newSearcher(t, &fakeSession{posts: []types.Post{post("1", nil, 72*time.Hour)}}, nil)
	s.Search(context.Background(), "old", 3, notifier.MessageRef{})
	assert.Empty(t, rec.cards)
	assert.Contains(t, rec.edits[len(rec.edits)-1], "none passed filters")
}

func TestSearchFailureIsReported(t *testing.T) {
	s, _, rec := newSearcher(t, nil, errors.New("chrome not found"))
	s.Search(context.Background(), "agents", 3, notifier.MessageRef{})
	assert.Contains(t, rec.edits[len(rec.edits)-1], "Search failed: chrome not found")
}
