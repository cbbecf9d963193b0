// Package notifier defines how the agent talks to its reviewer: cards with
// reply options, plain status messages, prompts with buttons, and the email
// channel for daily reports.
package notifier

import (
	"context"
	"fmt"
	"html"

	"github.com/ibeckermayer/replyscout/internal/config"
	"github.com/ibeckermayer/replyscout/internal/notifier/providers"
	"github.com/ibeckermayer/replyscout/internal/types"
)

// MessageRef identifies a sent message so it can be edited later
type MessageRef struct {
	ChatID    int64
	MessageID int
}

// Card is a post presented for review. A card without comments is shown
// post-only.
type Card struct {
	Post     types.Post
	Comments []types.Comment
	TopReply *types.Reply
	Keyboard types.Keyboard
}

// Notifier delivers messages to the reviewer.
//
// SendPlain sends text verbatim. SendPrompt and EditMessage take HTML; callers
// escape user content with Escape.
type Notifier interface {
	SendCard(ctx context.Context, card Card) (MessageRef, error)
	SendPlain(ctx context.Context, text string) error
	SendPrompt(ctx context.Context, text string, keyboard types.Keyboard) (MessageRef, error)
	EditMessage(ctx context.Context, ref MessageRef, text string) error
}

// Escape makes user text safe inside an HTML message.
func Escape(s string) string {
	return html.EscapeString(s)
}

// EventKind classifies an inbound reviewer event
type EventKind int

const (
	EventCallback EventKind = iota
	EventCommand
	EventText
)

// Event is one inbound reviewer interaction
type Event struct {
	Kind EventKind

	// CallbackID and Data are set for button presses. Message is the message
	// that carried the button.
	CallbackID string
	Data       string
	Message    MessageRef

	// Command is the command name without the slash; Text holds its
	// arguments, or the whole message for EventText.
	Command string
	Text    string
}

// Handler consumes inbound events
type Handler interface {
	HandleEvent(ctx context.Context, ev Event)
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(ctx context.Context, ev Event)

func (f HandlerFunc) HandleEvent(ctx context.Context, ev Event) {
	f(ctx, ev)
}

// Sender defines the interface for email sending
type Sender interface {
	Send(to, subject, htmlBody, plainBody string) error
}

// Mailer sends rendered reports by email
type Mailer struct {
	sender Sender
	to     string
}

// NewMailer creates a mailer delivering to toAddr with the given sender
func NewMailer(sender Sender, toAddr string) *Mailer {
	return &Mailer{sender: sender, to: toAddr}
}

// NewMailerFromConfig creates a mailer based on configuration
func NewMailerFromConfig(cfg config.EmailConfig) (*Mailer, error) {
	var sender Sender

	switch cfg.Provider {
	case "smtp":
		sender = providers.NewSMTPSender(
			cfg.SMTPHost,
			cfg.SMTPPort,
			cfg.SMTPUser,
			cfg.SMTPPass,
			cfg.FromAddr,
		)
	default:
		return nil, fmt.Errorf("unknown email provider: %s", cfg.Provider)
	}

	return NewMailer(sender, cfg.ToAddr), nil
}

// Email is a rendered message
type Email struct {
	Subject   string
	HTMLBody  string
	PlainBody string
}

// Send delivers e to the configured address
func (m *Mailer) Send(e Email) error {
	return m.sender.Send(m.to, e.Subject, e.HTMLBody, e.PlainBody)
}
