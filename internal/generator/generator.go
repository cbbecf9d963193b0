// Package generator produces the four candidate replies for a post.
package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ibeckermayer/replyscout/internal/store"
	"github.com/ibeckermayer/replyscout/internal/types"
)

// ErrEmptyCompletion is returned for a provider call that succeeded but
// produced no text.
var ErrEmptyCompletion = errors.New("empty completion")

// Provider defines the interface for text generation backends
type Provider interface {
	Name() string
	Complete(ctx context.Context, prompt string, temperature float64, maxTokens int) (string, error)
}

// Result is the outcome of generating one tone
type Result struct {
	Tone     types.Tone
	Text     string
	Issues   []types.Issue
	Provider string // empty when every provider failed
}

// Failed reports whether no provider produced text.
func (r Result) Failed() bool {
	return r.Text == ""
}

// Comment converts the result into a storable comment for postID.
func (r Result) Comment(postID string, at time.Time) types.Comment {
	return types.Comment{
		PostID:      postID,
		Tone:        r.Tone,
		Text:        r.Text,
		Issues:      r.Issues,
		GeneratedAt: at,
	}
}

// Options configures an Engine
type Options struct {
	Temperature float64
	MaxTokens   int
	// Timeout bounds each provider call.
	Timeout time.Duration
	Persona string
	// CacheExchanges writes every prompt/response pair to the LLM cache dir.
	CacheExchanges bool
	// Observe is called after every provider attempt.
	Observe func(provider string, err error)
}

// Engine generates replies through an ordered list of providers
type Engine struct {
	providers []Provider
	opts      Options
	logger    *slog.Logger
}

// New creates an engine that tries providers in order.
func New(providers []Provider, opts Options) *Engine {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	return &Engine{
		providers: providers,
		opts:      opts,
		logger:    slog.With("component", "generator"),
	}
}

// ProviderNames lists the configured providers in fallback order.
func (e *Engine) ProviderNames() []string {
	names := make([]string, len(e.providers))
	for i, p := range e.providers {
		names[i] = p.Name()
	}
	return names
}

// Generate produces one result per tone, in types.Tones order. Tones are
// generated concurrently and never affect each other: a tone whose providers
// all fail yields empty text with a generation-failed issue.
func (e *Engine) Generate(ctx context.Context, post types.Post, replies []types.Reply) []Result {
	results := make([]Result, len(types.Tones))

	var g errgroup.Group
	for i, tone := range types.Tones {
		prompt := BuildPrompt(e.opts.Persona, tone, post, replies)
		g.Go(func() error {
			results[i] = e.generateTone(ctx, post.ID, tone, prompt)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (e *Engine) generateTone(ctx context.Context, postID string, tone types.Tone, prompt string) Result {
	var errs []error
	for _, p := range e.providers {
		text, err := e.attempt(ctx, p, prompt)
		e.cache(postID, tone, p.Name(), prompt, text, err)
		if e.opts.Observe != nil {
			e.opts.Observe(p.Name(), err)
		}

		if err != nil {
			e.logger.Warn("provider failed", "post", postID, "tone", tone, "provider", p.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
			continue
		}

		issues := Validate(text)
		if len(issues) > 0 {
			e.logger.Info("reply has issues", "post", postID, "tone", tone, "issues", issueCodes(issues))
		}
		e.logger.Debug("reply generated", "post", postID, "tone", tone, "provider", p.Name(), "chars", CharCount(text))
		return Result{Tone: tone, Text: text, Issues: issues, Provider: p.Name()}
	}

	msg := "no providers configured"
	if len(errs) > 0 {
		msg = errors.Join(errs...).Error()
	}
	e.logger.Error("all providers failed", "post", postID, "tone", tone)
	return Result{
		Tone:   tone,
		Issues: []types.Issue{{Code: types.IssueGenerationFailed, Message: "generation failed: " + msg}},
	}
}

func (e *Engine) attempt(ctx context.Context, p Provider, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	text, err := p.Complete(ctx, prompt, e.opts.Temperature, e.opts.MaxTokens)
	if err != nil {
		return "", err
	}
	text = cleanCompletion(text)
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}

func (e *Engine) cache(postID string, tone types.Tone, provider, prompt, response string, err error) {
	if !e.opts.CacheExchanges {
		return
	}
	exchange := store.LLMExchange{
		Timestamp: time.Now(),
		Provider:  provider,
		Tone:      string(tone),
		PostID:    postID,
		Prompt:    prompt,
		Response:  response,
	}
	if err != nil {
		exchange.Error = err.Error()
	}
	if path, cacheErr := store.SaveLLMExchange(exchange); cacheErr != nil {
		e.logger.Warn("failed to cache LLM exchange", "error", cacheErr)
	} else {
		e.logger.Debug("cached LLM exchange", "path", path)
	}
}

// cleanCompletion trims whitespace and the wrapping quotes models sometimes
// add around a reply.
func cleanCompletion(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}

func issueCodes(issues []types.Issue) []string {
	codes := make([]string, len(issues))
	for i, is := range issues {
		codes[i] = string(is.Code)
	}
	return codes
}
