package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibeckermayer/replyscout/internal/notifier"
	"github.com/ibeckermayer/replyscout/internal/types"
)

// fakeAPI records Bot API calls and answers like Telegram does
type fakeAPI struct {
	mu    sync.Mutex
	calls map[string][]url.Values
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
	_ = r.ParseForm()

	f.mu.Lock()
	f.calls[method] = append(f.calls[method], r.PostForm)
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch method {
	case "getMe":
		fmt.Fprint(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"scout","username":"scoutbot"}}`)
	case "sendMessage":
		fmt.Fprint(w, `{"ok":true,"result":{"message_id":42,"date":0,"chat":{"id":100,"type":"private"},"text":"ok"}}`)
	case "editMessageText":
		if strings.Contains(r.PostForm.Get("text"), "same") {
			fmt.Fprint(w, `{"ok":false,"error_code":400,"description":"Bad Request: message is not modified"}`)
			return
		}
		fmt.Fprint(w, `{"ok":true,"result":true}`)
	default:
		fmt.Fprint(w, `{"ok":true,"result":true}`)
	}
}

func (f *fakeAPI) last(method string) url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.calls[method]
	if len(c) == 0 {
		return nil
	}
	return c[len(c)-1]
}

func newTestBot(t *testing.T) (*Bot, *fakeAPI) {
	t.Helper()
	api := &fakeAPI{calls: map[string][]url.Values{}}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	b, err := NewWithEndpoint("TOKEN", 100, srv.URL+"/bot%s/%s")
	require.NoError(t, err)
	return b, api
}

func TestNewRequiresCredentials(t *testing.T) {
	_, err := New("", 100)
	assert.Error(t, err)
	_, err = New("token", 0)
	assert.Error(t, err)
}

func TestSendCard(t *testing.T) {
	b, api := newTestBot(t)
	card := notifier.Card{
		Post:     types.Post{ID: "7", URL: "https://x.com/a/status/7", AuthorHandle: "a", Text: "a < b"},
		Comments: []types.Comment{{Tone: types.ToneChallenge, Text: "reply"}},
		Keyboard: types.Keyboard{{{Label: "📋 A", Token: "manual_challenge|7"}}},
	}

	ref, err := b.SendCard(context.Background(), card)
	require.NoError(t, err)
	assert.Equal(t, notifier.MessageRef{ChatID: 100, MessageID: 42}, ref)

	form := api.last("sendMessage")
	require.NotNil(t, form)
	assert.Equal(t, "100", form.Get("chat_id"))
	assert.Equal(t, "HTML", form.Get("parse_mode"))
	assert.Contains(t, form.Get("text"), "a &lt; b")
	assert.Contains(t, form.Get("reply_markup"), "manual_challenge|7")
}

func TestSendPlainHasNoParseMode(t *testing.T) {
	b, api := newTestBot(t)
	require.NoError(t, b.SendPlain(context.Background(), "✅ <done>"))

	form := api.last("sendMessage")
	assert.Equal(t, "", form.Get("parse_mode"))
	assert.Equal(t, "✅ <done>", form.Get("text"))
}

func TestEditMessage(t *testing.T) {
	b, api := newTestBot(t)
	ctx := context.Background()

	require.NoError(t, b.EditMessage(ctx, notifier.MessageRef{MessageID: 42}, "<b>done</b>"))
	form := api.last("editMessageText")
	assert.Equal(t, "100", form.Get("chat_id"), "defaults to the reviewer chat")
	assert.Equal(t, "42", form.Get("message_id"))

	assert.NoError(t, b.EditMessage(ctx, notifier.MessageRef{MessageID: 42}, "same"), "unchanged text is not an error")
}

func TestAnswerCallback(t *testing.T) {
	b, api := newTestBot(t)
	require.NoError(t, b.AnswerCallback(context.Background(), "cb1", "No such reply", true))
	form := api.last("answerCallbackQuery")
	assert.Equal(t, "cb1", form.Get("callback_query_id"))
	assert.Equal(t, "true", form.Get("show_alert"))
}

func TestToEvent(t *testing.T) {
	b := &Bot{chatID: 100, logger: slog.Default()}
	chat := &tgbotapi.Chat{ID: 100}

	ev, ok := b.toEvent(tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb",
		Data:    "skip|9",
		Message: &tgbotapi.Message{MessageID: 5, Chat: chat},
	}})
	require.True(t, ok)
	assert.Equal(t, notifier.EventCallback, ev.Kind)
	assert.Equal(t, "skip|9", ev.Data)
	assert.Equal(t, 5, ev.Message.MessageID)

	ev, ok = b.toEvent(tgbotapi.Update{Message: &tgbotapi.Message{
		Chat:     chat,
		Text:     "/search agent evals",
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: 7}},
	}})
	require.True(t, ok)
	assert.Equal(t, notifier.EventCommand, ev.Kind)
	assert.Equal(t, "search", ev.Command)
	assert.Equal(t, "agent evals", ev.Text)

	ev, ok = b.toEvent(tgbotapi.Update{Message: &tgbotapi.Message{Chat: chat, Text: "  rag pipelines "}})
	require.True(t, ok)
	assert.Equal(t, notifier.EventText, ev.Kind)
	assert.Equal(t, "rag pipelines", ev.Text)

	_, ok = b.toEvent(tgbotapi.Update{Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 666}, Text: "hi"}})
	assert.False(t, ok, "foreign chat")

	_, ok = b.toEvent(tgbotapi.Update{Message: &tgbotapi.Message{Chat: chat, Text: "   "}})
	assert.False(t, ok, "blank text")
}
