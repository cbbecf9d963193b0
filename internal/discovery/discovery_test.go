package discovery

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibeckermayer/replyscout/internal/types"
)

type fakeSource struct {
	topics   map[string][]types.Post
	failures map[string]error
	searched []string
}

func (f *fakeSource) SearchTopic(_ context.Context, kw string, _ int) ([]types.Post, error) {
	f.searched = append(f.searched, kw)
	if err := f.failures[kw]; err != nil {
		return nil, err
	}
	return f.topics[kw], nil
}

func (f *fakeSource) PollAccount(context.Context, string, int) ([]types.Post, error) {
	return nil, nil
}

func (f *fakeSource) FetchExistingReplies(context.Context, string, int) ([]types.Reply, error) {
	return nil, nil
}

func ids(posts []types.Post) []string {
	out := make([]string, len(posts))
	for i, p := range posts {
		out[i] = p.ID
	}
	return out
}

func TestAggregateDedupsAcrossAndWithinRuns(t *testing.T) {
	topic := []types.Post{{ID: "3"}, {ID: "1"}, {ID: "3"}, {ID: "2"}}
	account := []types.Post{
		{ID: "2", PriorityBoost: 3, Source: types.SourceAccountMonitor},
		{ID: "4", PriorityBoost: 3, Source: types.SourceAccountMonitor},
	}
	seen := map[string]bool{"1": true}

	got := Aggregate(topic, account, seen)
	assert.Equal(t, []string{"3", "2", "4"}, ids(got))
	assert.Equal(t, 3.0, got[2].PriorityBoost)
	assert.Equal(t, types.SourceAccountMonitor, got[2].Source)
}

func TestAggregateSecondRunYieldsNothing(t *testing.T) {
	raw := []types.Post{{ID: "a"}, {ID: "b"}}
	seen := map[string]bool{}

	first := Aggregate(raw, nil, seen)
	require.Len(t, first, 2)
	for _, p := range first {
		seen[p.ID] = true
	}

	assert.Empty(t, Aggregate(raw, nil, seen))
}

func TestSearchTopicsContinuesPastFailures(t *testing.T) {
	src := &fakeSource{
		topics: map[string][]types.Post{
			"rlhf":   {{ID: "1"}, {ID: "2"}},
			"agents": {{ID: "3"}},
		},
		failures: map[string]error{"broken": errors.New("page timeout")},
	}

	got := SearchTopics(context.Background(), src, SearchOptions{
		Keywords:   []string{"rlhf", "broken", "agents"},
		PerKeyword: 20,
	}, map[string]bool{"2": true})

	assert.Equal(t, []string{"rlhf", "broken", "agents"}, src.searched)
	assert.Equal(t, []string{"1", "3"}, ids(got))
	for _, p := range got {
		assert.Equal(t, types.SourceTopicSearch, p.Source)
	}
}

func TestSearchTopicsStopsOnCancel(t *testing.T) {
	src := &fakeSource{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got := SearchTopics(ctx, src, SearchOptions{Keywords: []string{"a", "b"}}, nil)
	assert.Empty(t, got)
	assert.Empty(t, src.searched)
}

func TestSourceErrorUnwraps(t *testing.T) {
	base := errors.New("boom")
	err := &SourceError{Op: "poll", Target: "alice", Err: base}
	assert.ErrorIs(t, err, base)
	assert.Contains(t, err.Error(), "alice")
}
