package telegram

import (
	"fmt"
	"strings"
	"time"

	"github.com/ibeckermayer/replyscout/internal/generator"
	"github.com/ibeckermayer/replyscout/internal/notifier"
	"github.com/ibeckermayer/replyscout/internal/types"
)

const (
	heavyRule = "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"
	lightRule = "─────────────────────────────"

	topReplyChars = 120
)

// FormatCard renders a review card as Telegram HTML. Tones without text are
// left out.
func FormatCard(card notifier.Card, now time.Time) string {
	if len(card.Comments) == 0 {
		return FormatPostOnly(card.Post, now)
	}
	p := card.Post

	lines := []string{
		heavyRule,
		fmt.Sprintf("📊 Score: %.1f  |  %s  |  ⚡ %s ago", p.Score, author(p), ago(p, now)),
		counts(p),
		"",
		"📝 <b>POST:</b>",
		notifier.Escape(p.Text),
		"",
		lightRule,
	}

	byTone := make(map[types.Tone]types.Comment, len(card.Comments))
	for _, c := range card.Comments {
		byTone[c.Tone] = c
	}
	for _, tone := range types.Tones {
		c, ok := byTone[tone]
		if !ok || c.Text == "" {
			continue
		}
		lines = append(lines,
			fmt.Sprintf("<b>%s · %s</b>  <i>%s</i>", tone.Letter(), tone.Label(), tone.Description()),
			"<code>"+notifier.Escape(c.Text)+"</code>",
			"",
		)
	}

	if r := card.TopReply; r != nil {
		lines = append(lines,
			lightRule,
			fmt.Sprintf("🗣 <i>Top reply @%s: \"%s\"</i>", notifier.Escape(r.Handle), notifier.Escape(truncate(r.Text, topReplyChars))),
			"",
		)
	}

	lines = append(lines,
		"🔗 "+notifier.Escape(p.URL),
		"",
		"📋 copy  ·  🚀 auto-post",
		heavyRule,
	)
	return strings.Join(lines, "\n")
}

// FormatPostOnly renders a post without reply options.
func FormatPostOnly(p types.Post, now time.Time) string {
	return strings.Join([]string{
		heavyRule,
		fmt.Sprintf("%s  |  ⚡ %s ago", author(p), ago(p, now)),
		counts(p),
		"",
		notifier.Escape(p.Text),
		"",
		"🔗 " + notifier.Escape(p.URL),
		heavyRule,
	}, "\n")
}

func author(p types.Post) string {
	handle := p.AuthorHandle
	if handle == "" {
		handle = "unknown"
	}
	verified := ""
	if p.AuthorVerified {
		verified = " ✓"
	}
	return fmt.Sprintf("@%s%s (%s)", notifier.Escape(handle), verified, optionalCount(p.AuthorFollowers))
}

func counts(p types.Post) string {
	return fmt.Sprintf("👁 %s views · %s likes · %s replies",
		optionalCount(p.Views), generator.FormatCount(p.Likes), generator.FormatCount(p.Replies))
}

func optionalCount(n *int) string {
	if n == nil {
		return "?"
	}
	return generator.FormatCount(*n)
}

// ago renders minutes under an hour and whole hours beyond.
func ago(p types.Post, now time.Time) string {
	age, ok := p.Age(now)
	if !ok {
		return "?"
	}
	if age < 0 {
		age = 0
	}
	if age < time.Hour {
		return fmt.Sprintf("%dm", int(age.Minutes()))
	}
	return fmt.Sprintf("%dh", int(age.Hours()))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
