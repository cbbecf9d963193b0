package app

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibeckermayer/replyscout/internal/config"
	"github.com/ibeckermayer/replyscout/internal/discovery"
	"github.com/ibeckermayer/replyscout/internal/generator"
	"github.com/ibeckermayer/replyscout/internal/notifier"
	"github.com/ibeckermayer/replyscout/internal/store"
	"github.com/ibeckermayer/replyscout/internal/types"
)

func init() {
	sendGap = 0
}

type fakeSession struct {
	mu       sync.Mutex
	byTopic  map[string][]types.Post
	searched []string
	polled   []string
	closed   int
}

func (f *fakeSession) SearchTopic(_ context.Context, topic string, _ int) ([]types.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searched = append(f.searched, topic)
	return f.byTopic[topic], nil
}

func (f *fakeSession) PollAccount(_ context.Context, handle string, _ int) ([]types.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polled = append(f.polled, handle)
	return nil, nil
}

func (f *fakeSession) FetchExistingReplies(context.Context, string, int) ([]types.Reply, error) {
	return []types.Reply{{Handle: "carol", Text: "first", Likes: 9}}, nil
}

func (f *fakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

type fakeGenerator struct {
	fail bool
}

func (g *fakeGenerator) Generate(_ context.Context, post types.Post, _ []types.Reply) []generator.Result {
	out := make([]generator.Result, 0, len(types.Tones))
	for _, tone := range types.Tones {
		r := generator.Result{Tone: tone, Provider: "fake"}
		if !g.fail {
			r.Text = string(tone) + " on " + post.ID
		}
		out = append(out, r)
	}
	return out
}

type fakeNotifier struct {
	mu    sync.Mutex
	cards []notifier.Card
}

func (f *fakeNotifier) SendCard(_ context.Context, c notifier.Card) (notifier.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cards = append(f.cards, c)
	return notifier.MessageRef{MessageID: len(f.cards)}, nil
}
func (f *fakeNotifier) SendPlain(context.Context, string) error { return nil }
func (f *fakeNotifier) SendPrompt(context.Context, string, types.Keyboard) (notifier.MessageRef, error) {
	return notifier.MessageRef{}, nil
}
func (f *fakeNotifier) EditMessage(context.Context, notifier.MessageRef, string) error { return nil }

func fresh(id string) types.Post {
	return types.Post{
		ID:           id,
		URL:          "https://x.com/bob/status/" + id,
		AuthorHandle: "bob",
		Text:         "what do you think about agent evals",
		Views:        types.Count(5000),
		Likes:        40,
		CreatedAt:    time.Now().Add(-time.Hour),
	}
}

type fixture struct {
	app     *App
	store   *store.Store
	session *fakeSession
	gen     *fakeGenerator
	out     *fakeNotifier
}

func setup(t *testing.T) *fixture {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "app.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cfg := config.Default()
	cfg.Interests.Keywords = []string{"evals", "agents", "rag", "post-training"}
	cfg.Interests.Accounts = []types.AccountWatch{{Handle: "alice"}}
	cfg.Filtering.MinScore = -1000
	cfg.Scraping.SearchDelaySeconds = 0

	f := &fixture{
		store: st,
		session: &fakeSession{byTopic: map[string][]types.Post{
			"evals":  {fresh("1"), fresh("2")},
			"agents": {fresh("2"), fresh("3")},
		}},
		gen: &fakeGenerator{},
		out: &fakeNotifier{},
	}
	build := func(context.Context, *config.Config) (Components, error) {
		return Components{
			Open:      func(context.Context) (discovery.Session, error) { return f.session, nil },
			Generator: f.gen,
		}, nil
	}
	f.app, err = New(context.Background(), cfg, Deps{Store: st, Notifier: f.out, Build: build})
	require.NoError(t, err)
	return f
}

func TestNewSyncsWatchlist(t *testing.T) {
	f := setup(t)
	watches, err := f.store.Watches(context.Background())
	require.NoError(t, err)
	require.Len(t, watches, 1)
	assert.Equal(t, "alice", watches[0].Handle)
	assert.Equal(t, types.DefaultWatchPriority, watches[0].Priority)
}

func TestRunOnceSendsCards(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	sum, err := f.app.RunOnce(ctx, RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, 3, sum.Discovered, "post 2 appears under two keywords")
	assert.Equal(t, 3, sum.Sent)
	assert.Equal(t, []string{"alice"}, f.session.polled)
	assert.Equal(t, 1, f.session.closed)

	require.Len(t, f.out.cards, 3)
	card := f.out.cards[0]
	assert.Len(t, card.Comments, len(types.Tones))
	require.NotNil(t, card.TopReply)
	assert.Equal(t, "carol", card.TopReply.Handle)
	assert.NotEmpty(t, card.Keyboard)

	comments, err := f.store.CommentsForPost(ctx, card.Post.ID)
	require.NoError(t, err)
	assert.Len(t, comments, len(types.Tones))

	// Everything found is now seen; the same results produce nothing new
	again, err := f.app.RunOnce(ctx, RunOptions{})
	require.NoError(t, err)
	assert.Zero(t, again.Discovered)
	assert.Len(t, f.out.cards, 3)
}

func TestRunOnceTestMode(t *testing.T) {
	f := setup(t)

	sum, err := f.app.RunOnce(context.Background(), RunOptions{Test: true})
	require.NoError(t, err)

	assert.Equal(t, []string{"evals", "agents", "rag"}, f.session.searched)
	assert.Empty(t, f.session.polled)
	assert.Equal(t, 1, sum.Ranked)
	assert.Equal(t, 1, sum.Generated)
	assert.Zero(t, sum.Sent)
	assert.Empty(t, f.out.cards)

	seen, err := f.store.SeenIDs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, seen, "test runs record nothing")

	sum, err = f.app.RunOnce(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Discovered, "posts previewed in test mode are still new")
}

func TestRunOnceSkipsPostsWithoutOptions(t *testing.T) {
	f := setup(t)
	f.gen.fail = true

	sum, err := f.app.RunOnce(context.Background(), RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, 3, sum.Ranked)
	assert.Zero(t, sum.Generated)
	assert.Empty(t, f.out.cards)

	p, err := f.store.GetPost(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusPending, p.Status, "post is still recorded")
}

func TestInvalidConfigRejected(t *testing.T) {
	st, err := store.New(filepath.Join(t.TempDir(), "bad.db"))
	require.NoError(t, err)
	defer st.Close()

	cfg := config.Default()
	cfg.Filtering.TopNPosts = 0
	_, err = New(context.Background(), cfg, Deps{Store: st, Build: func(context.Context, *config.Config) (Components, error) {
		return Components{}, nil
	}})
	assert.ErrorContains(t, err, "top_n_posts")
}

func TestRunsDoNotOverlap(t *testing.T) {
	f := setup(t)
	f.app.running.Lock()
	defer f.app.running.Unlock()

	_, err := f.app.RunOnce(context.Background(), RunOptions{})
	assert.ErrorIs(t, err, ErrRunInProgress)
	assert.Empty(t, f.session.searched)
}

func TestReloadConfig(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	cfg := config.Default()
	cfg.Interests.Accounts = []types.AccountWatch{{Handle: "dave", Priority: types.PriorityHigh}}
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, cfg.SaveFile(path))

	require.NoError(t, f.app.ReloadConfig(ctx, path))
	assert.Equal(t, "dave", f.app.Config().Interests.Accounts[0].Handle)

	watches, err := f.store.Watches(ctx)
	require.NoError(t, err)
	assert.Len(t, watches, 2, "reload adds watches and keeps existing ones")

	cfg.Filtering.TopNPosts = -1
	require.NoError(t, cfg.SaveFile(path))
	assert.Error(t, f.app.ReloadConfig(ctx, path))
	assert.Equal(t, 10, f.app.Config().Filtering.TopNPosts, "bad config is not applied")
}
