// Package control runs the reviewer session: it turns button presses,
// commands and free text from the control channel into approval decisions,
// auto-post jobs and on-demand searches.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ibeckermayer/replyscout/internal/approval"
	"github.com/ibeckermayer/replyscout/internal/dispatch"
	"github.com/ibeckermayer/replyscout/internal/notifier"
	"github.com/ibeckermayer/replyscout/internal/report"
	"github.com/ibeckermayer/replyscout/internal/store"
	"github.com/ibeckermayer/replyscout/internal/tasks"
	"github.com/ibeckermayer/replyscout/internal/types"
)

// Channel is the control channel the session talks through
type Channel interface {
	notifier.Notifier
	AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error
}

// Dispatcher accepts auto-post jobs
type Dispatcher interface {
	Submit(job dispatch.Job) bool
}

// Searcher runs an on-demand search reporting into status
type Searcher interface {
	Search(ctx context.Context, topic string, n int, status notifier.MessageRef)
}

// Reporter builds today's report
type Reporter interface {
	Today(ctx context.Context) (*report.Report, error)
}

// Watchlist lists watched accounts
type Watchlist interface {
	Watches(ctx context.Context) ([]types.AccountWatch, error)
}

// Options wires the optional collaborators of a Controller
type Options struct {
	// Dispatcher is nil when auto-posting is disabled.
	Dispatcher Dispatcher
	Searcher   Searcher
	// Searches runs on-demand searches off the event loop.
	Searches *tasks.Pool
	// SearchTimeout bounds one on-demand search.
	SearchTimeout time.Duration
	Reporter      Reporter
	Watchlist     Watchlist
	// OnApproval, if set, is called with the option of every approval.
	OnApproval func(option string)
}

// Controller is the single-reviewer session
type Controller struct {
	machine *approval.Machine
	ch      Channel
	opts    Options
	logger  *slog.Logger

	mu sync.Mutex
	// editing is the post awaiting custom text, or empty.
	editing string
	// pendingTopic is the search topic awaiting a count, or empty.
	pendingTopic string
}

var _ notifier.Handler = (*Controller)(nil)

// New creates a Controller.
func New(machine *approval.Machine, ch Channel, opts Options) *Controller {
	if opts.SearchTimeout <= 0 {
		opts.SearchTimeout = 10 * time.Minute
	}
	return &Controller{
		machine: machine,
		ch:      ch,
		opts:    opts,
		logger:  slog.With("component", "control"),
	}
}

// HandleEvent processes one reviewer interaction.
func (c *Controller) HandleEvent(ctx context.Context, ev notifier.Event) {
	switch ev.Kind {
	case notifier.EventCallback:
		c.handleCallback(ctx, ev)
	case notifier.EventCommand:
		c.handleCommand(ctx, ev)
	case notifier.EventText:
		c.handleText(ctx, ev)
	}
}

func (c *Controller) handleCallback(ctx context.Context, ev notifier.Event) {
	action, err := approval.ParseToken(ev.Data)
	if err != nil {
		c.logger.Warn("ignoring malformed button", "data", ev.Data, "error", err)
		c.answer(ctx, ev, "Unknown button.", true)
		return
	}
	logger := c.logger.With("post", action.PostID)

	switch cmd := action.Command.(type) {
	case approval.SearchCount:
		c.startSearch(ctx, ev, cmd.N)

	case approval.Manual:
		sel, err := c.machine.Select(ctx, action.PostID, cmd.Tone, false)
		if err != nil {
			c.reportError(ctx, ev, action.PostID, err)
			return
		}
		c.answer(ctx, ev, "", false)
		c.approved(sel)
		c.edit(ctx, ev.Message, fmt.Sprintf(
			"✅ <b>📋 %s · %s</b>\n\n🔗 %s\n\n💬 <b>Tap to copy:</b>\n<code>%s</code>\n\n📋 Open link → Reply → Paste → Post",
			cmd.Tone.Letter(), cmd.Tone.Label(), notifier.Escape(sel.Post.URL), notifier.Escape(sel.Comment.Text)))

	case approval.Auto:
		if c.opts.Dispatcher == nil {
			c.answer(ctx, ev, "Auto-post is disabled. Use 📋 and post manually.", true)
			return
		}
		sel, err := c.machine.Select(ctx, action.PostID, cmd.Tone, true)
		if err != nil {
			c.reportError(ctx, ev, action.PostID, err)
			return
		}
		c.answer(ctx, ev, "", false)
		c.approved(sel)
		c.edit(ctx, ev.Message, fmt.Sprintf(
			"🚀 <b>Auto-posting %s...</b>\n\n🔗 %s\n💬 <code>%s</code>\n\n<i>You'll get a confirmation when done.</i>",
			cmd.Tone.Label(), notifier.Escape(sel.Post.URL), notifier.Escape(sel.Comment.Text)))
		c.opts.Dispatcher.Submit(dispatch.Job{
			ApprovalID: sel.Approval.ID,
			PostID:     sel.Post.ID,
			URL:        sel.Post.URL,
			Tone:       cmd.Tone,
			Text:       sel.Comment.Text,
		})

	case approval.Edit:
		post, err := c.machine.Post(ctx, action.PostID)
		if err != nil {
			c.reportError(ctx, ev, action.PostID, err)
			return
		}
		if post.Status != types.StatusPending {
			c.answer(ctx, ev, fmt.Sprintf("This post is already %s.", post.Status), true)
			return
		}
		c.answer(ctx, ev, "", false)
		c.mu.Lock()
		c.editing = post.ID
		c.mu.Unlock()
		c.edit(ctx, ev.Message, fmt.Sprintf("✏️ <b>Edit mode</b>\n\nReply with your comment for:\n%s\n\nOr /cancel", notifier.Escape(post.URL)))

	case approval.Skip:
		post, err := c.machine.Skip(ctx, action.PostID)
		if err != nil {
			c.reportError(ctx, ev, action.PostID, err)
			return
		}
		c.answer(ctx, ev, "", false)
		c.edit(ctx, ev.Message, fmt.Sprintf("🔴 Skipped: <i>%s</i>", notifier.Escape(post.URL)))

	case approval.Watch:
		handle, added, err := c.machine.Watch(ctx, action.PostID)
		if err != nil {
			c.reportError(ctx, ev, action.PostID, err)
			return
		}
		c.answer(ctx, ev, "", false)
		text := fmt.Sprintf("👀 <b>@%s already on watchlist</b>", notifier.Escape(handle))
		if added {
			text = fmt.Sprintf("➕ <b>@%s added to watchlist</b>", notifier.Escape(handle))
		}
		c.prompt(ctx, text, nil)

	default:
		logger.Warn("unhandled command", "command", fmt.Sprintf("%T", cmd))
		c.answer(ctx, ev, "", false)
	}
}

// reportError turns an approval failure into reviewer feedback. Unknown posts
// are reported on the card itself; everything else is an alert.
func (c *Controller) reportError(ctx context.Context, ev notifier.Event, postID string, err error) {
	switch {
	case errors.Is(err, approval.ErrUnknownPost):
		c.answer(ctx, ev, "", false)
		c.edit(ctx, ev.Message, fmt.Sprintf("❌ Post <code>%s</code> not found.", notifier.Escape(postID)))
	case errors.Is(err, approval.ErrNoComment):
		c.answer(ctx, ev, "No reply stored for that option.", true)
	case errors.Is(err, approval.ErrNoHandle):
		c.answer(ctx, ev, "No handle found.", true)
	case errors.Is(err, store.ErrTransition):
		c.answer(ctx, ev, "This post was already handled.", true)
	default:
		c.logger.Error("command failed", "post", postID, "error", err)
		c.answer(ctx, ev, "Something went wrong, check the logs.", true)
	}
}

func (c *Controller) startSearch(ctx context.Context, ev notifier.Event, n int) {
	c.mu.Lock()
	topic := c.pendingTopic
	c.pendingTopic = ""
	c.mu.Unlock()

	if topic == "" {
		c.answer(ctx, ev, "Search expired, type the topic again.", true)
		return
	}
	if c.opts.Searcher == nil || c.opts.Searches == nil {
		c.answer(ctx, ev, "On-demand search is not available.", true)
		return
	}
	c.answer(ctx, ev, "", false)
	c.edit(ctx, ev.Message, fmt.Sprintf("🔍 Searching <b>%s</b>, top %d posts by views...\n\nOpening browser...", notifier.Escape(topic), n))

	status := ev.Message
	accepted := c.opts.Searches.TrySubmit(func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, c.opts.SearchTimeout)
		defer cancel()
		c.opts.Searcher.Search(ctx, topic, n, status)
	})
	if !accepted {
		c.logger.Warn("search queue full", "topic", topic)
		c.edit(ctx, status, "⏳ Too many searches running, try again shortly.")
	}
}

func (c *Controller) handleText(ctx context.Context, ev notifier.Event) {
	c.mu.Lock()
	postID := c.editing
	c.mu.Unlock()

	if postID == "" {
		c.askSearchCount(ctx, ev.Text)
		return
	}

	sel, err := c.machine.Custom(ctx, postID, ev.Text)
	switch {
	case err == nil:
	case errors.Is(err, approval.ErrUnknownPost):
		c.clearEditing()
		c.prompt(ctx, "❌ Post not found.", nil)
		return
	case errors.Is(err, store.ErrTransition):
		c.clearEditing()
		c.prompt(ctx, "This post was already handled.", nil)
		return
	default:
		c.logger.Error("custom approval failed", "post", postID, "error", err)
		c.prompt(ctx, "❌ Could not save that comment: "+notifier.Escape(err.Error()), nil)
		return
	}

	c.clearEditing()
	c.approved(sel)
	c.prompt(ctx, fmt.Sprintf("✅ <b>Custom comment saved</b>\n\n🔗 %s\n\n💬 <code>%s</code>\n\n📋 Open → Reply → Paste → Post",
		notifier.Escape(sel.Post.URL), notifier.Escape(sel.Comment.Text)), nil)
}

func (c *Controller) askSearchCount(ctx context.Context, topic string) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return
	}
	c.mu.Lock()
	c.pendingTopic = topic
	c.mu.Unlock()
	c.prompt(ctx, fmt.Sprintf("🔍 <b>%s</b>\n\nHow many posts? (sorted by highest views)", notifier.Escape(topic)),
		approval.SearchCountKeyboard())
}

func (c *Controller) handleCommand(ctx context.Context, ev notifier.Event) {
	switch ev.Command {
	case "cancel":
		c.mu.Lock()
		c.editing = ""
		c.pendingTopic = ""
		c.mu.Unlock()
		if err := c.ch.SendPlain(ctx, "Cancelled."); err != nil {
			c.logger.Error("failed to send message", "error", err)
		}

	case "report":
		if c.opts.Reporter == nil {
			c.prompt(ctx, "Reports are not available.", nil)
			return
		}
		r, err := c.opts.Reporter.Today(ctx)
		if err != nil {
			c.logger.Error("report failed", "error", err)
			c.prompt(ctx, "❌ "+notifier.Escape(err.Error()), nil)
			return
		}
		c.prompt(ctx, r.Telegram(), nil)

	case "watchlist":
		c.sendWatchlist(ctx)

	case "search":
		if ev.Text == "" {
			c.prompt(ctx, "Just type any topic directly, no command needed.\n\nExample: <code>transformer new architecture</code>", nil)
			return
		}
		c.askSearchCount(ctx, ev.Text)

	default:
		c.prompt(ctx, helpText, nil)
	}
}

const helpText = `<b>replyscout</b>

Tap 📋 to approve a reply and copy it, 🚀 to approve and auto-post, ✏️ to write your own, 🔴 to skip, ➕ to watch the author.

Type any topic to search for posts about it.

/report  today's stats
/watchlist  watched accounts
/search &lt;topic&gt;  search a topic
/cancel  leave edit mode`

func (c *Controller) sendWatchlist(ctx context.Context) {
	if c.opts.Watchlist == nil {
		c.prompt(ctx, "Watchlist is not available.", nil)
		return
	}
	watches, err := c.opts.Watchlist.Watches(ctx)
	if err != nil {
		c.logger.Error("watchlist failed", "error", err)
		c.prompt(ctx, "❌ "+notifier.Escape(err.Error()), nil)
		return
	}
	c.prompt(ctx, FormatWatchlist(watches), nil)
}

// FormatWatchlist groups handles by priority tier.
func FormatWatchlist(watches []types.AccountWatch) string {
	var b strings.Builder
	fmt.Fprintf(&b, "👀 <b>Watchlist (%d accounts)</b>\n", len(watches))

	tiers := []struct {
		p    types.Priority
		icon string
	}{
		{types.PriorityHigh, "🔴"},
		{types.PriorityMedium, "🟡"},
		{types.PriorityLow, "⚪"},
	}
	for _, tier := range tiers {
		var handles []string
		for _, w := range watches {
			if w.Priority == tier.p {
				handles = append(handles, "@"+notifier.Escape(w.Handle))
			}
		}
		if len(handles) == 0 {
			continue
		}
		name := string(tier.p)
		fmt.Fprintf(&b, "\n%s %s: %s\n", tier.icon, strings.ToUpper(name[:1])+name[1:], strings.Join(handles, ", "))
	}
	return b.String()
}

func (c *Controller) clearEditing() {
	c.mu.Lock()
	c.editing = ""
	c.mu.Unlock()
}

func (c *Controller) approved(sel *approval.Selection) {
	if c.opts.OnApproval != nil {
		c.opts.OnApproval(sel.Approval.OptionChosen)
	}
}

func (c *Controller) answer(ctx context.Context, ev notifier.Event, text string, alert bool) {
	if err := c.ch.AnswerCallback(ctx, ev.CallbackID, text, alert); err != nil {
		c.logger.Warn("failed to answer callback", "error", err)
	}
}

func (c *Controller) edit(ctx context.Context, ref notifier.MessageRef, text string) {
	if err := c.ch.EditMessage(ctx, ref, text); err != nil {
		c.logger.Error("failed to edit message", "error", err)
	}
}

func (c *Controller) prompt(ctx context.Context, text string, kb types.Keyboard) {
	if _, err := c.ch.SendPrompt(ctx, text, kb); err != nil {
		c.logger.Error("failed to send message", "error", err)
	}
}
