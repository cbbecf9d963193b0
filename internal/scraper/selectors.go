package scraper

// X.com DOM selectors used from Go. The extraction script in extract.go
// carries its own copies of the per-tweet selectors.
// Update these when scraping breaks

const (
	PrimaryColumn = `[data-testid="primaryColumn"]`
	TweetArticle  = `article[data-testid="tweet"]`
)

// Common wait conditions
const (
	WaitForTimeline = PrimaryColumn
	WaitForTweets   = TweetArticle
)
