package scraper

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/ibeckermayer/replyscout/internal/types"
)

// rawPost represents the raw data extracted from the DOM via JavaScript
type rawPost struct {
	ID           string `json:"id"`
	URL          string `json:"url"`
	AuthorHandle string `json:"authorHandle"`
	AuthorName   string `json:"authorName"`
	Verified     bool   `json:"verified"`
	Content      string `json:"content"`
	Timestamp    string `json:"timestamp"`
	Likes        string `json:"likes"`
	Retweets     string `json:"retweets"`
	Replies      string `json:"replies"`
	Views        string `json:"views"`
}

// extractJS returns every visible tweet article. When skipFirst is true the
// first article (the root post on a thread page) is left out.
const extractJS = `
	(function(skipFirst) {
		const tweets = document.querySelectorAll('article[data-testid="tweet"]');
		const results = [];

		tweets.forEach((el, idx) => {
			if (skipFirst && idx === 0) return;
			try {
				// The permalink is the status link wrapping the timestamp
				const timeEl = el.querySelector('time');
				const statusLink = timeEl?.closest('a[href*="/status/"]') || el.querySelector('a[href*="/status/"]');
				const href = statusLink?.href || '';
				const id = href.match(/status\/(\d+)/)?.[1];
				if (!id) return;

				const userNameEl = el.querySelector('[data-testid="User-Name"]');
				let authorHandle = '';
				let authorName = '';
				if (userNameEl) {
					const handleLink = userNameEl.querySelector('a[href^="/"]');
					if (handleLink) {
						authorHandle = handleLink.getAttribute('href')?.replace('/', '') || '';
					}
					const nameSpan = userNameEl.querySelector('span');
					authorName = nameSpan?.textContent || '';
				}

				const tweetTextEl = el.querySelector('[data-testid="tweetText"]');
				const content = tweetTextEl?.textContent || '';

				// Engagement metrics are displayed as aria-label or text
				const metricOf = (metricEl) => {
					if (!metricEl) return '';
					const ariaLabel = metricEl.getAttribute('aria-label');
					if (ariaLabel) {
						const match = ariaLabel.match(/^([\d,.]+[KkMm]?)/);
						if (match) return match[1];
					}
					return metricEl.textContent?.trim() || '';
				};
				const getMetric = (testId) => metricOf(el.querySelector('[data-testid="' + testId + '"]'));

				results.push({
					id,
					url: href.split('?')[0],
					authorHandle,
					authorName,
					verified: el.querySelector('[data-testid="icon-verified"]') !== null,
					content,
					timestamp: timeEl?.getAttribute('datetime') || '',
					likes: getMetric('like'),
					retweets: getMetric('retweet'),
					replies: getMetric('reply'),
					views: metricOf(el.querySelector('a[href*="/analytics"]'))
				});
			} catch (e) {
				console.error('Error extracting tweet:', e);
			}
		});

		return results;
	})`

func visibleTweets(ctx context.Context, skipFirst bool) ([]rawPost, error) {
	var raw []rawPost
	js := fmt.Sprintf("%s(%t)", extractJS, skipFirst)
	if err := chromedp.Run(ctx, chromedp.Evaluate(js, &raw)); err != nil {
		return nil, fmt.Errorf("failed to extract posts from DOM: %w", err)
	}
	return raw, nil
}

// toPost converts a DOM record. ok is false when the record has no id or no
// text.
func toPost(rp rawPost, now time.Time) (types.Post, bool) {
	text := strings.TrimSpace(rp.Content)
	if rp.ID == "" || text == "" {
		return types.Post{}, false
	}

	var created time.Time
	if rp.Timestamp != "" {
		if parsed, err := time.Parse(time.RFC3339, rp.Timestamp); err == nil {
			created = parsed
		}
	}

	url := rp.URL
	if url == "" && rp.AuthorHandle != "" {
		url = fmt.Sprintf("https://x.com/%s/status/%s", rp.AuthorHandle, rp.ID)
	}

	return types.Post{
		ID:             rp.ID,
		URL:            url,
		AuthorHandle:   strings.TrimPrefix(rp.AuthorHandle, "@"),
		AuthorName:     strings.TrimSpace(rp.AuthorName),
		AuthorVerified: rp.Verified,
		Text:           text,
		Views:          parseOptionalMetric(rp.Views),
		Likes:          parseMetric(rp.Likes),
		Replies:        parseMetric(rp.Replies),
		Retweets:       parseMetric(rp.Retweets),
		CreatedAt:      created,
		DiscoveredAt:   now,
	}, true
}

// MaxReplyChars caps the text kept for an existing reply
const MaxReplyChars = 200

// toReplies keeps replies with text, most liked first, capped at limit.
func toReplies(raw []rawPost, limit int) []types.Reply {
	replies := make([]types.Reply, 0, len(raw))
	for _, rp := range raw {
		text := strings.TrimSpace(rp.Content)
		if text == "" {
			continue
		}
		if r := []rune(text); len(r) > MaxReplyChars {
			text = string(r[:MaxReplyChars])
		}
		replies = append(replies, types.Reply{
			Handle: strings.TrimPrefix(rp.AuthorHandle, "@"),
			Text:   text,
			Likes:  parseMetric(rp.Likes),
		})
	}
	sort.SliceStable(replies, func(i, j int) bool { return replies[i].Likes > replies[j].Likes })
	if limit > 0 && len(replies) > limit {
		replies = replies[:limit]
	}
	return replies
}

// parseMetric converts abbreviated metric strings like "1.2K", "5.7M", or "423" to integers
func parseMetric(s string) int {
	if n := parseOptionalMetric(s); n != nil {
		return *n
	}
	return 0
}

// parseOptionalMetric is parseMetric that reports an unreadable value as nil.
func parseOptionalMetric(s string) *int {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return nil
	}

	multiplier := 1.0
	switch strings.ToUpper(s[len(s)-1:]) {
	case "K":
		multiplier = 1000
		s = s[:len(s)-1]
	case "M":
		multiplier = 1000000
		s = s[:len(s)-1]
	}

	value, err := strconv.ParseFloat(s, 64)
	if err != nil || value < 0 {
		return nil
	}

	return types.Count(int(value*multiplier + 0.5))
}
