package ranking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibeckermayer/replyscout/internal/types"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func defaultOptions() Options {
	return Options{MinScore: 8, MinViews: 1000, MinFollowers: 1000, TopN: 10, MaxAge: 24 * time.Hour}
}

func TestScoreEndToEndExample(t *testing.T) {
	p := types.Post{
		ID:              "1",
		Views:           types.Count(12_000),
		AuthorFollowers: types.Count(60_000),
		AuthorVerified:  true,
		CreatedAt:       now.Add(-time.Hour),
	}
	score := Score(p, now)
	assert.GreaterOrEqual(t, score, 15.0)

	got := FilterAndRank([]types.Post{p}, nil, defaultOptions(), now)
	require.Len(t, got, 1)
	assert.Equal(t, score, got[0].Score)
}

func TestScoreTiersAreStrict(t *testing.T) {
	at := func(views int) float64 {
		return Score(types.Post{Views: types.Count(views)}, now)
	}
	assert.Equal(t, 0.0, at(1_000))
	assert.Equal(t, 2.0, at(1_001))
	assert.Equal(t, 2.0, at(5_000))
	// 5001 also earns the first-mover bonus
	assert.Equal(t, 6.0, at(5_001))
	assert.Equal(t, 6.0, at(10_000))
	assert.Equal(t, 8.0, at(10_001))
}

func TestScoreUnknownAgeSkipsAgeTerms(t *testing.T) {
	p := types.Post{Views: types.Count(3_000)}
	assert.Equal(t, 2.0, Score(p, now))

	p.CreatedAt = now.Add(-2 * time.Hour)
	// views 2, velocity 1500/h 4, recency 3
	assert.Equal(t, 9.0, Score(p, now))
}

func TestScoreLexicalSignalsApplyOnce(t *testing.T) {
	plain := Score(types.Post{Text: "a calm note"}, now)
	hot := Score(types.Post{Text: "Hot take: RLHF is OVERHYPED and dead"}, now)
	both := Score(types.Post{Text: "DPO is better than PPO, unpopular opinion"}, now)

	assert.Equal(t, 0.0, plain)
	assert.Equal(t, 2.0, hot)
	assert.Equal(t, 3.0, both)
}

func TestScoreIncludesPriorityBoost(t *testing.T) {
	base := types.Post{Likes: 51}
	boosted := base
	boosted.PriorityBoost = 3
	assert.Equal(t, Score(base, now)+3, Score(boosted, now))
}

func TestScoreMonotonicInViewsAndFollowers(t *testing.T) {
	steps := []int{0, 1, 999, 1_000, 1_001, 4_999, 5_000, 5_001, 9_999, 10_000, 10_001, 50_000, 50_001, 1_000_000}
	for _, created := range []time.Time{{}, now.Add(-30 * time.Minute), now.Add(-20 * time.Hour)} {
		prevViews, prevFollowers := -1.0, -1.0
		for _, n := range steps {
			v := Score(types.Post{Views: types.Count(n), Replies: 5, CreatedAt: created}, now)
			f := Score(types.Post{AuthorFollowers: types.Count(n), Views: types.Count(2_000), CreatedAt: created}, now)
			assert.GreaterOrEqual(t, v, prevViews, "views=%d", n)
			assert.GreaterOrEqual(t, f, prevFollowers, "followers=%d", n)
			prevViews, prevFollowers = v, f
		}
	}
}

func TestFilterThresholdsTreatZeroAsUnknown(t *testing.T) {
	opts := defaultOptions()
	opts.MinScore = 0

	posts := []types.Post{
		{ID: "low", Views: types.Count(500)},
		{ID: "zero", Views: types.Count(0)},
		{ID: "nil"},
		{ID: "fewfollowers", AuthorFollowers: types.Count(10)},
	}
	got := FilterAndRank(posts, nil, opts, now)

	var kept []string
	for _, p := range got {
		kept = append(kept, p.ID)
	}
	assert.ElementsMatch(t, []string{"zero", "nil"}, kept)
}

func TestFilterDropsSeenDuplicatesAndOld(t *testing.T) {
	opts := defaultOptions()
	opts.MinScore = 0

	posts := []types.Post{
		{ID: "a"},
		{ID: "a", Likes: 100},
		{ID: "seen"},
		{ID: "old", CreatedAt: now.Add(-25 * time.Hour)},
		{ID: "undated"},
	}
	got := FilterAndRank(posts, map[string]bool{"seen": true}, opts, now)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, 0, got[0].Likes, "first occurrence wins")
	assert.Equal(t, "undated", got[1].ID)
	assert.Equal(t, types.SourceTopicSearch, got[0].Source)
}

func TestRankOrderStableAndTruncated(t *testing.T) {
	// likes/replies/verified give scores of 12, 5, 9 and a tie at 9
	posts := []types.Post{
		{ID: "twelve", Likes: 51, Replies: 11, AuthorVerified: true, PriorityBoost: 6},
		{ID: "five", Likes: 51, PriorityBoost: 3},
		{ID: "nine-a", Likes: 51, Replies: 11, PriorityBoost: 5},
		{ID: "nine-b", Likes: 51, Replies: 11, PriorityBoost: 5},
	}
	opts := defaultOptions()
	opts.MinScore = 0

	got := FilterAndRank(posts, nil, opts, now)
	require.Len(t, got, 4)
	assert.Equal(t, []float64{12, 9, 9, 5}, []float64{got[0].Score, got[1].Score, got[2].Score, got[3].Score})
	assert.Equal(t, "nine-a", got[1].ID, "ties keep input order")
	assert.Equal(t, "nine-b", got[2].ID)

	opts.TopN = 2
	got = FilterAndRank(posts, nil, opts, now)
	require.Len(t, got, 2)
	assert.Equal(t, "twelve", got[0].ID)

	opts.MinScore = 8
	opts.TopN = 10
	got = FilterAndRank(posts, nil, opts, now)
	assert.Len(t, got, 3, "min score gate")
}

func TestAccountSourceIsKept(t *testing.T) {
	opts := defaultOptions()
	opts.MinScore = 0
	got := FilterAndRank([]types.Post{{ID: "1", Source: types.SourceAccountMonitor}}, nil, opts, now)
	require.Len(t, got, 1)
	assert.Equal(t, types.SourceAccountMonitor, got[0].Source)
}
