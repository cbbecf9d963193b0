package types

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a discovered post
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusSkipped  Status = "skipped"
	StatusPosted   Status = "posted"
)

// Source tags recorded on posts
const (
	SourceTopicSearch    = "topic_search"
	SourceAccountMonitor = "account_monitor"
	SourceOnDemandPrefix = "on_demand:"
)

// Post represents a discovered X post.
//
// Views and AuthorFollowers are nil when the count was not visible on the
// page. CreatedAt is zero when the timestamp could not be read.
type Post struct {
	ID              string    `json:"id"`
	URL             string    `json:"url"`
	AuthorHandle    string    `json:"author_handle"`
	AuthorName      string    `json:"author_name"`
	AuthorFollowers *int      `json:"author_followers,omitempty"`
	AuthorVerified  bool      `json:"author_verified"`
	Text            string    `json:"text"`
	Views           *int      `json:"views,omitempty"`
	Likes           int       `json:"likes"`
	Replies         int       `json:"replies"`
	Retweets        int       `json:"retweets"`
	CreatedAt       time.Time `json:"created_at"`
	DiscoveredAt    time.Time `json:"discovered_at"`
	Source          string    `json:"source"`
	Score           float64   `json:"score"`
	Status          Status    `json:"status"`

	// PriorityBoost is set by the account watch scheduler and only lives for
	// the duration of a run.
	PriorityBoost float64 `json:"priority_boost,omitempty"`
}

// ViewCount returns the view count, or 0 when unknown.
func (p Post) ViewCount() int {
	if p.Views == nil {
		return 0
	}
	return *p.Views
}

// FollowerCount returns the author follower count, or 0 when unknown.
func (p Post) FollowerCount() int {
	if p.AuthorFollowers == nil {
		return 0
	}
	return *p.AuthorFollowers
}

// Age returns how long ago the post was created. ok is false when the
// creation time is unknown.
func (p Post) Age(now time.Time) (age time.Duration, ok bool) {
	if p.CreatedAt.IsZero() {
		return 0, false
	}
	return now.Sub(p.CreatedAt), true
}

// Count returns a pointer to n, for building optional counts.
func Count(n int) *int {
	return &n
}

// Reply is an existing reply on a post, fetched so generated text can avoid
// repeating established angles.
type Reply struct {
	Handle string `json:"handle"`
	Text   string `json:"text"`
	Likes  int    `json:"likes"`
}

// Tone is one of the fixed reply strategies
type Tone string

const (
	ToneChallenge Tone = "challenge"
	ToneExpand    Tone = "expand"
	ToneNuanced   Tone = "nuanced"
	ToneQuestion  Tone = "question"

	// ToneCustom marks reviewer-written text. It is never generated.
	ToneCustom Tone = "custom"
)

// Tones lists the generated tones in display order.
var Tones = []Tone{ToneChallenge, ToneExpand, ToneNuanced, ToneQuestion}

// ParseTone returns the generated tone named s.
func ParseTone(s string) (Tone, error) {
	for _, t := range Tones {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown tone %q", s)
}

// Label is the human-readable tone name.
func (t Tone) Label() string {
	switch t {
	case ToneChallenge:
		return "Challenge"
	case ToneExpand:
		return "Expand"
	case ToneNuanced:
		return "Nuanced"
	case ToneQuestion:
		return "Question"
	case ToneCustom:
		return "Custom"
	}
	return string(t)
}

// Letter is the single-letter key used on buttons (A-D).
func (t Tone) Letter() string {
	switch t {
	case ToneChallenge:
		return "A"
	case ToneExpand:
		return "B"
	case ToneNuanced:
		return "C"
	case ToneQuestion:
		return "D"
	}
	return "?"
}

// Description is a one-line summary of the tone's strategy.
func (t Tone) Description() string {
	switch t {
	case ToneChallenge:
		return "disputes a core claim with technical backing"
	case ToneExpand:
		return "adds an angle or data point the post missed"
	case ToneNuanced:
		return "validates the insight but adds a key caveat"
	case ToneQuestion:
		return "expert question that invites the author to reply"
	}
	return ""
}

// IssueCode classifies a validation or generation problem
type IssueCode string

const (
	IssueTooShort         IssueCode = "too-short"
	IssueOverLimit        IssueCode = "over-limit"
	IssueGenericOpener    IssueCode = "generic-opener"
	IssueNoDomainTerms    IssueCode = "no-domain-terms"
	IssueGenerationFailed IssueCode = "generation-failed"
)

// Issue is an advisory note attached to a generated comment
type Issue struct {
	Code    IssueCode `json:"code"`
	Message string    `json:"message"`
}

// Comment is one reply variant for a post
type Comment struct {
	ID          int64     `json:"id"`
	PostID      string    `json:"post_id"`
	Tone        Tone      `json:"comment_type"`
	Text        string    `json:"text"`
	Issues      []Issue   `json:"issues"`
	GeneratedAt time.Time `json:"generated_at"`
}

// HasIssue reports whether the comment carries an issue with the given code.
func (c Comment) HasIssue(code IssueCode) bool {
	for _, i := range c.Issues {
		if i.Code == code {
			return true
		}
	}
	return false
}

// Approval records a decision on a post
type Approval struct {
	ID           int64      `json:"id"`
	PostID       string     `json:"post_id"`
	CommentID    int64      `json:"comment_id"`
	OptionChosen string     `json:"option_chosen"`
	CustomText   string     `json:"custom_text,omitempty"`
	ApprovedAt   time.Time  `json:"approved_at"`
	PostedAt     *time.Time `json:"posted_at,omitempty"`
}

// Priority is the watch tier of a monitored account
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Boost is the score bonus given to posts from accounts of this tier.
func (p Priority) Boost() float64 {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 1
	}
	return 0
}

// Default watch settings for accounts added from the control channel
const (
	DefaultWatchPriority   = PriorityMedium
	DefaultCheckEveryHours = 6
)

// AccountWatch is a monitored author and its polling cadence
type AccountWatch struct {
	Handle          string     `json:"handle" toml:"handle"`
	LastCheckedAt   *time.Time `json:"last_checked_at,omitempty" toml:"-"`
	Priority        Priority   `json:"priority" toml:"priority"`
	CheckEveryHours int        `json:"check_every_hours" toml:"check_every_hours"`
}

// Button is one control-channel button. Token is the callback payload.
type Button struct {
	Label string
	Token string
}

// Keyboard is a grid of buttons, one slice per row.
type Keyboard [][]Button
