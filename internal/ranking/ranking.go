// Package ranking scores discovered posts by reply reach potential.
package ranking

import (
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/ibeckermayer/replyscout/internal/types"
)

// debatable phrases mark hot takes that reward a contrarian reply
var debatable = []string{
	"vs ", " vs", "dying", "dead", "overhyped", "wrong", "actually",
	"controversial", "unpopular opinion", "hot take", "disagree",
	"overrated", "underrated", "nobody talks about", "stop using",
	"replace", "killed", "extinct", "broken",
}

// comparison phrases mark posts that invite a nuanced technical take
var comparison = []string{
	"better than", "worse than", "compared to", "difference between",
}

// Score returns the reach score of p at now. Terms use strict thresholds and
// are summed; age-dependent terms are skipped when the creation time is
// unknown.
func Score(p types.Post, now time.Time) float64 {
	var score float64

	// Author reach
	switch followers := p.FollowerCount(); {
	case followers > 50_000:
		score += 5
	case followers > 10_000:
		score += 3
	case followers > 1_000:
		score += 1
	}

	// Current engagement
	views := p.ViewCount()
	switch {
	case views > 10_000:
		score += 5
	case views > 5_000:
		score += 3
	case views > 1_000:
		score += 2
	}

	age, known := p.Age(now)
	hours := age.Hours()

	// Views per hour since posting
	if known && hours > 0 {
		switch velocity := float64(views) / hours; {
		case velocity > 1_000:
			score += 4
		case velocity > 500:
			score += 2
		}
	}

	if p.AuthorVerified {
		score += 2
	}
	if p.Likes > 50 {
		score += 2
	}
	if p.Replies > 10 {
		score += 2
	}

	// Early replies get seen
	if known {
		switch {
		case hours < 3:
			score += 3
		case hours < 12:
			score += 1
		}
	}

	score += p.PriorityBoost

	// High views and few replies leave room to be the first good reply
	if views > 5_000 && p.Replies < 20 {
		score += 3
	}

	text := strings.ToLower(p.Text)
	if containsAny(text, debatable) {
		score += 2
	}
	if containsAny(text, comparison) {
		score += 1
	}

	return score
}

func containsAny(text string, phrases []string) bool {
	for _, s := range phrases {
		if strings.Contains(text, s) {
			return true
		}
	}
	return false
}

// Options are the filtering thresholds applied before ranking
type Options struct {
	MinScore     float64
	MinViews     int
	MinFollowers int
	TopN         int
	MaxAge       time.Duration
}

// FilterAndRank drops seen posts, in-batch duplicates, posts older than
// MaxAge and posts under the view or follower thresholds, then scores the
// rest and returns those meeting MinScore, best first, at most TopN. A zero
// count is unknown and never fails a threshold.
func FilterAndRank(posts []types.Post, seen map[string]bool, opts Options, now time.Time) []types.Post {
	batch := make(map[string]bool, len(posts))
	var candidates []types.Post

	for _, p := range posts {
		if p.ID == "" || batch[p.ID] {
			continue
		}
		batch[p.ID] = true

		if seen[p.ID] {
			continue
		}
		if age, ok := p.Age(now); ok && opts.MaxAge > 0 && age > opts.MaxAge {
			continue
		}
		if v := p.ViewCount(); v > 0 && v < opts.MinViews {
			continue
		}
		if f := p.FollowerCount(); f > 0 && f < opts.MinFollowers {
			continue
		}

		p.Score = Score(p, now)
		if p.Source == "" {
			p.Source = types.SourceTopicSearch
		}
		if p.Score >= opts.MinScore {
			candidates = append(candidates, p)
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	top := candidates
	if opts.TopN > 0 && len(top) > opts.TopN {
		top = top[:opts.TopN]
	}

	slog.Info("posts ranked",
		"component", "ranking",
		"input", len(posts),
		"candidates", len(candidates),
		"top", len(top))
	return top
}
