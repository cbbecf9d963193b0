package generator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ibeckermayer/replyscout/internal/types"
)

// MaxContextReplies is how many existing replies are shown to the model.
const MaxContextReplies = 3

// DefaultPersona is used when no persona is configured.
const DefaultPersona = "You are an AI engineer specializing in post-training, agentic AI, and ML systems."

// strategies holds the tone-specific instructions
var strategies = map[types.Tone][]string{
	types.ToneChallenge: {
		"Find the most debatable claim or assumption and push back on it with technical evidence",
		"Back it with a specific mechanism, paper finding, or real-world counterexample",
		"End with one sharp provocative question",
	},
	types.ToneExpand: {
		"Identify the most important thing the post left out or didn't consider",
		"Add that insight with technical precision: a new angle, data point, or implication",
		"Don't just agree. Bring something genuinely new",
	},
	types.ToneNuanced: {
		"Validate the core insight and show you understood it deeply",
		"Add an important caveat, edge case, or condition where it breaks down or changes",
		`Format: "True, but only when X. In Y scenario, [different outcome]."`,
	},
	types.ToneQuestion: {
		"Ask the author ONE specific expert question that shows you understand the deep mechanics",
		"The question should be something only someone who works in this area would ask",
		"Keep it directed at the author and make them want to reply",
	},
}

// BuildPrompt constructs the prompt for one tone. Up to MaxContextReplies
// existing replies are included, most liked first, so the model avoids
// repeating their angles.
func BuildPrompt(persona string, tone types.Tone, post types.Post, replies []types.Reply) string {
	if persona == "" {
		persona = DefaultPersona
	}
	handle := post.AuthorHandle
	if handle == "" {
		handle = "unknown"
	}

	var sb strings.Builder
	sb.WriteString(persona)
	sb.WriteString("\n\n")

	fmt.Fprintf(&sb, "POST by @%s (%s followers, %s views, %s likes):\n",
		handle, FormatCount(post.FollowerCount()), FormatCount(post.ViewCount()), FormatCount(post.Likes))
	sb.WriteString(post.Text)
	sb.WriteString("\n")

	if top := topReplies(replies, MaxContextReplies); len(top) > 0 {
		sb.WriteString("\nEXISTING TOP REPLIES (DO NOT repeat these angles):\n")
		for _, r := range top {
			fmt.Fprintf(&sb, "  - @%s: %q (%d likes)\n", r.Handle, truncateRunes(r.Text, 120), r.Likes)
		}
	}

	fmt.Fprintf(&sb, "\nWrite a %s comment. Strategy:\n", strings.ToUpper(string(tone)))
	for i, line := range strategies[tone] {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, line)
	}

	sb.WriteString("\nSTRICT rules: 200-280 characters (use the full space, be dense and specific)")
	if tone == types.ToneQuestion {
		sb.WriteString(" · one question only")
	} else {
		sb.WriteString(" · no generic openers")
	}
	sb.WriteString(` · no "Great post" · no hashtags` + "\n")
	sb.WriteString("Output ONLY the comment text:")

	return sb.String()
}

func topReplies(replies []types.Reply, n int) []types.Reply {
	sorted := make([]types.Reply, 0, len(replies))
	for _, r := range replies {
		if strings.TrimSpace(r.Text) != "" {
			sorted = append(sorted, r)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Likes > sorted[j].Likes
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// FormatCount renders a count the way X does: 950, 1.2K, 3.4M.
func FormatCount(n int) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	}
	return fmt.Sprintf("%d", n)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
