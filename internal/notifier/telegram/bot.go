// Package telegram is the Telegram control channel: it delivers review cards
// and status messages to one chat and turns that chat's button presses and
// messages into notifier events.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ibeckermayer/replyscout/internal/notifier"
	"github.com/ibeckermayer/replyscout/internal/types"
)

// Bot implements notifier.Notifier for a single reviewer chat
type Bot struct {
	api    *tgbotapi.BotAPI
	chatID int64
	now    func() time.Time
	logger *slog.Logger
}

var _ notifier.Notifier = (*Bot)(nil)

// New connects to the Bot API with token.
func New(token string, chatID int64) (*Bot, error) {
	return NewWithEndpoint(token, chatID, tgbotapi.APIEndpoint)
}

// NewWithEndpoint connects to a Bot API at endpoint, a format string taking
// the token and the method name.
func NewWithEndpoint(token string, chatID int64, endpoint string) (*Bot, error) {
	if token == "" {
		return nil, errors.New("telegram bot token is not set")
	}
	if chatID == 0 {
		return nil, errors.New("telegram chat id is not set")
	}
	api, err := tgbotapi.NewBotAPIWithAPIEndpoint(token, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to telegram: %w", err)
	}
	return &Bot{
		api:    api,
		chatID: chatID,
		now:    time.Now,
		logger: slog.With("component", "telegram", "bot", api.Self.UserName),
	}, nil
}

// SendCard sends a review card with its keyboard.
func (b *Bot) SendCard(_ context.Context, card notifier.Card) (notifier.MessageRef, error) {
	msg := tgbotapi.NewMessage(b.chatID, FormatCard(card, b.now()))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if len(card.Keyboard) > 0 {
		msg.ReplyMarkup = markup(card.Keyboard)
	}
	return b.send(msg)
}

// SendPlain sends text without any parse mode.
func (b *Bot) SendPlain(_ context.Context, text string) error {
	msg := tgbotapi.NewMessage(b.chatID, text)
	msg.DisableWebPagePreview = true
	_, err := b.send(msg)
	return err
}

// SendPrompt sends an HTML message, optionally with buttons.
func (b *Bot) SendPrompt(_ context.Context, text string, keyboard types.Keyboard) (notifier.MessageRef, error) {
	msg := tgbotapi.NewMessage(b.chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if len(keyboard) > 0 {
		msg.ReplyMarkup = markup(keyboard)
	}
	return b.send(msg)
}

// EditMessage replaces the text of a sent message and drops its buttons.
func (b *Bot) EditMessage(_ context.Context, ref notifier.MessageRef, text string) error {
	chatID := ref.ChatID
	if chatID == 0 {
		chatID = b.chatID
	}
	edit := tgbotapi.NewEditMessageText(chatID, ref.MessageID, text)
	edit.ParseMode = tgbotapi.ModeHTML
	edit.DisableWebPagePreview = true
	if _, err := b.api.Request(edit); err != nil {
		// Editing to identical text is rejected by the API and is harmless
		if strings.Contains(err.Error(), "message is not modified") {
			return nil
		}
		return fmt.Errorf("edit message %d: %w", ref.MessageID, err)
	}
	return nil
}

// AnswerCallback acknowledges a button press. With alert set the text is
// shown as a dialog instead of a toast.
func (b *Bot) AnswerCallback(_ context.Context, callbackID, text string, alert bool) error {
	cb := tgbotapi.NewCallback(callbackID, text)
	if alert {
		cb = tgbotapi.NewCallbackWithAlert(callbackID, text)
	}
	if _, err := b.api.Request(cb); err != nil {
		return fmt.Errorf("answer callback: %w", err)
	}
	return nil
}

func (b *Bot) send(c tgbotapi.Chattable) (notifier.MessageRef, error) {
	sent, err := b.api.Send(c)
	if err != nil {
		return notifier.MessageRef{}, fmt.Errorf("telegram send: %w", err)
	}
	return notifier.MessageRef{ChatID: sent.Chat.ID, MessageID: sent.MessageID}, nil
}

func markup(kb types.Keyboard) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(kb))
	for _, row := range kb {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, btn := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(btn.Label, btn.Token))
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(buttons...))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// Run long-polls for updates and passes events from the configured chat to
// h until ctx is done. Updates from other chats are dropped.
func (b *Bot) Run(ctx context.Context, h notifier.Handler) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()

	b.logger.Info("telegram polling started", "chat", b.chatID)
	for {
		select {
		case <-ctx.Done():
			b.logger.Info("telegram polling stopped")
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return errors.New("telegram update channel closed")
			}
			ev, ok := b.toEvent(update)
			if !ok {
				continue
			}
			h.HandleEvent(ctx, ev)
		}
	}
}

// toEvent converts an update. ok is false for updates that are not from the
// reviewer chat or carry nothing actionable.
func (b *Bot) toEvent(update tgbotapi.Update) (notifier.Event, bool) {
	if cb := update.CallbackQuery; cb != nil {
		if cb.Message == nil || cb.Message.Chat == nil || cb.Message.Chat.ID != b.chatID {
			b.logger.Warn("dropping callback from foreign chat")
			return notifier.Event{}, false
		}
		return notifier.Event{
			Kind:       notifier.EventCallback,
			CallbackID: cb.ID,
			Data:       cb.Data,
			Message:    notifier.MessageRef{ChatID: cb.Message.Chat.ID, MessageID: cb.Message.MessageID},
		}, true
	}

	msg := update.Message
	if msg == nil || msg.Chat == nil {
		return notifier.Event{}, false
	}
	if msg.Chat.ID != b.chatID {
		b.logger.Warn("dropping message from foreign chat", "chat", msg.Chat.ID)
		return notifier.Event{}, false
	}
	if msg.IsCommand() {
		return notifier.Event{
			Kind:    notifier.EventCommand,
			Command: msg.Command(),
			Text:    strings.TrimSpace(msg.CommandArguments()),
			Message: notifier.MessageRef{ChatID: msg.Chat.ID, MessageID: msg.MessageID},
		}, true
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return notifier.Event{}, false
	}
	return notifier.Event{
		Kind:    notifier.EventText,
		Text:    text,
		Message: notifier.MessageRef{ChatID: msg.Chat.ID, MessageID: msg.MessageID},
	}, true
}
