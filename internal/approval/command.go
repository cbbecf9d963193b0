package approval

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ibeckermayer/replyscout/internal/types"
)

// ErrBadToken is returned for a control token that does not parse.
var ErrBadToken = errors.New("malformed control token")

// MaxSearchCount is the largest on-demand result count a reviewer can pick.
const MaxSearchCount = 5

// Command is a reviewer decision. It is one of Manual, Auto, Edit, Skip,
// Watch or SearchCount.
type Command interface {
	command()
}

// Manual approves a tone's reply for the reviewer to post by hand.
type Manual struct{ Tone types.Tone }

// Auto approves a tone's reply and posts it from the browser.
type Auto struct{ Tone types.Tone }

// Edit asks for reviewer-written text.
type Edit struct{}

// Skip passes on the post.
type Skip struct{}

// Watch adds the post's author to the watchlist.
type Watch struct{}

// SearchCount picks how many on-demand search results to return.
type SearchCount struct{ N int }

func (Manual) command()      {}
func (Auto) command()        {}
func (Edit) command()        {}
func (Skip) command()        {}
func (Watch) command()       {}
func (SearchCount) command() {}

// Action is a command aimed at a post. PostID is empty for SearchCount.
type Action struct {
	PostID  string
	Command Command
}

// ParseToken decodes a button payload such as "auto_expand|1234".
func ParseToken(token string) (Action, error) {
	name, arg, ok := strings.Cut(token, "|")
	if !ok || arg == "" || strings.Contains(arg, "|") {
		return Action{}, fmt.Errorf("%w: %q", ErrBadToken, token)
	}

	if name == "scount" {
		n, err := strconv.Atoi(arg)
		if err != nil || n < 1 || n > MaxSearchCount {
			return Action{}, fmt.Errorf("%w: search count %q", ErrBadToken, arg)
		}
		return Action{Command: SearchCount{N: n}}, nil
	}

	var cmd Command
	switch name {
	case "edit":
		cmd = Edit{}
	case "skip":
		cmd = Skip{}
	case "watch":
		cmd = Watch{}
	default:
		mode, toneName, ok := strings.Cut(name, "_")
		if !ok {
			return Action{}, fmt.Errorf("%w: unknown action %q", ErrBadToken, name)
		}
		tone, err := types.ParseTone(toneName)
		if err != nil {
			return Action{}, fmt.Errorf("%w: %v", ErrBadToken, err)
		}
		switch mode {
		case "manual":
			cmd = Manual{Tone: tone}
		case "auto":
			cmd = Auto{Tone: tone}
		default:
			return Action{}, fmt.Errorf("%w: unknown action %q", ErrBadToken, name)
		}
	}
	return Action{PostID: arg, Command: cmd}, nil
}

// Token encodes a as a button payload. It is the inverse of ParseToken.
func Token(a Action) string {
	switch c := a.Command.(type) {
	case SearchCount:
		return "scount|" + strconv.Itoa(c.N)
	case Manual:
		return "manual_" + string(c.Tone) + "|" + a.PostID
	case Auto:
		return "auto_" + string(c.Tone) + "|" + a.PostID
	case Edit:
		return "edit|" + a.PostID
	case Skip:
		return "skip|" + a.PostID
	case Watch:
		return "watch|" + a.PostID
	}
	return ""
}

// Option is the option descriptor recorded on an approval, e.g.
// "manual_challenge".
func Option(tone types.Tone, auto bool) string {
	if auto {
		return "auto_" + string(tone)
	}
	return "manual_" + string(tone)
}
