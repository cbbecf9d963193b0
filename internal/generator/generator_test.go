package generator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibeckermayer/replyscout/internal/types"
)

const goodReply = "DPO skips the reward model, but the preference dataset still bakes in the labelers' blind spots. " +
	"Offline training cannot recover from that, while PPO at least explores. Have you measured win-rate drift on held-out prompts?"

// scriptedProvider answers per tone, detected from the prompt.
type scriptedProvider struct {
	name string
	fail func(tone types.Tone) error
	text string

	mu    sync.Mutex
	calls []types.Tone
}

func (p *scriptedProvider) Name() string { return p.name }

func (p *scriptedProvider) Complete(_ context.Context, prompt string, _ float64, _ int) (string, error) {
	tone := toneOf(prompt)
	p.mu.Lock()
	p.calls = append(p.calls, tone)
	p.mu.Unlock()
	if p.fail != nil {
		if err := p.fail(tone); err != nil {
			return "", err
		}
	}
	return p.text, nil
}

func toneOf(prompt string) types.Tone {
	for _, t := range types.Tones {
		if strings.Contains(prompt, "Write a "+strings.ToUpper(string(t))+" comment") {
			return t
		}
	}
	return ""
}

func always(err error) func(types.Tone) error {
	return func(types.Tone) error { return err }
}

var samplePost = types.Post{
	ID:              "42",
	AuthorHandle:    "researcher",
	AuthorFollowers: types.Count(52_300),
	Views:           types.Count(1_250_000),
	Likes:           980,
	Text:            "DPO has made PPO obsolete for alignment.",
}

func TestGenerateReturnsFourTonesInOrder(t *testing.T) {
	primary := &scriptedProvider{name: "groq", text: goodReply}
	e := New([]Provider{primary}, Options{})

	results := e.Generate(context.Background(), samplePost, nil)
	require.Len(t, results, 4)
	for i, r := range results {
		assert.Equal(t, types.Tones[i], r.Tone)
		assert.Equal(t, goodReply, r.Text)
		assert.Equal(t, "groq", r.Provider)
		assert.Empty(t, r.Issues)
	}
}

func TestGenerateFallsBackWhenPrimaryFails(t *testing.T) {
	primary := &scriptedProvider{name: "groq", fail: always(errors.New("429 rate limited"))}
	secondary := &scriptedProvider{name: "gemini", text: goodReply}
	e := New([]Provider{primary, secondary}, Options{})
	assert.Equal(t, []string{"groq", "gemini"}, e.ProviderNames())

	results := e.Generate(context.Background(), samplePost, nil)
	for _, r := range results {
		assert.Equal(t, "gemini", r.Provider)
		assert.False(t, r.Failed())
	}
	assert.Len(t, primary.calls, 4)
	assert.Len(t, secondary.calls, 4)
}

func TestGenerateIsolatesToneFailures(t *testing.T) {
	down := func(t types.Tone) error {
		if t == types.ToneNuanced {
			return errors.New("backend down")
		}
		return nil
	}
	primary := &scriptedProvider{name: "groq", fail: down, text: goodReply}
	secondary := &scriptedProvider{name: "gemini", fail: down, text: goodReply}
	e := New([]Provider{primary, secondary}, Options{})

	results := e.Generate(context.Background(), samplePost, nil)
	for _, r := range results {
		if r.Tone == types.ToneNuanced {
			assert.True(t, r.Failed())
			assert.Empty(t, r.Provider)
			require.Len(t, r.Issues, 1)
			assert.Equal(t, types.IssueGenerationFailed, r.Issues[0].Code)
			assert.Contains(t, r.Issues[0].Message, "backend down")
			continue
		}
		assert.Equal(t, goodReply, r.Text, "tone %s", r.Tone)
	}
}

func TestEmptyCompletionCountsAsFailure(t *testing.T) {
	blank := &scriptedProvider{name: "groq", text: "   "}
	backup := &scriptedProvider{name: "openai", text: goodReply}

	var mu sync.Mutex
	observed := map[string][]error{}
	e := New([]Provider{blank, backup}, Options{
		Observe: func(provider string, err error) {
			mu.Lock()
			defer mu.Unlock()
			observed[provider] = append(observed[provider], err)
		},
	})

	results := e.Generate(context.Background(), samplePost, nil)
	for _, r := range results {
		assert.Equal(t, "openai", r.Provider)
	}
	require.Len(t, observed["groq"], 4)
	assert.ErrorIs(t, observed["groq"][0], ErrEmptyCompletion)
	assert.NoError(t, observed["openai"][0])
}

func TestEachCallHasItsOwnTimeout(t *testing.T) {
	slow := &blockingProvider{}
	backup := &scriptedProvider{name: "gemini", text: goodReply}
	e := New([]Provider{slow, backup}, Options{Timeout: 20 * time.Millisecond})

	start := time.Now()
	results := e.Generate(context.Background(), samplePost, nil)
	assert.Less(t, time.Since(start), 5*time.Second)
	for _, r := range results {
		assert.Equal(t, "gemini", r.Provider)
	}
}

type blockingProvider struct{}

func (blockingProvider) Name() string { return "stuck" }

func (blockingProvider) Complete(ctx context.Context, _ string, _ float64, _ int) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestNoProviders(t *testing.T) {
	results := New(nil, Options{}).Generate(context.Background(), samplePost, nil)
	for _, r := range results {
		assert.True(t, r.Failed())
		assert.Equal(t, types.IssueGenerationFailed, r.Issues[0].Code)
	}
}

func TestCleanCompletionStripsQuotes(t *testing.T) {
	assert.Equal(t, "hello", cleanCompletion("  \"hello\"\n"))
	assert.Equal(t, `say "x" now`, cleanCompletion(`say "x" now`))
}
