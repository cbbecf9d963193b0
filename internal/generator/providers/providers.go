// Package providers holds the text generation backends.
package providers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ibeckermayer/replyscout/internal/config"
	"github.com/ibeckermayer/replyscout/internal/generator"
)

// FromConfig builds the providers named in generation.providers, in order.
// A provider without an API key is skipped with a warning; it is an error
// when none remain.
func FromConfig(ctx context.Context, cfg *config.Config) ([]generator.Provider, error) {
	gen := cfg.Generation
	secrets := cfg.Secrets

	var out []generator.Provider
	for _, name := range gen.Providers {
		var (
			p   generator.Provider
			key string
		)
		switch name {
		case config.ProviderGroq:
			key = secrets.GroqAPIKey
			if key != "" {
				p = NewGroqProvider(key, gen.GroqModel)
			}
		case config.ProviderOpenAI:
			key = secrets.OpenAIAPIKey
			if key != "" {
				p = NewOpenAIProvider(key, gen.OpenAIModel)
			}
		case config.ProviderAnthropic:
			key = secrets.AnthropicAPIKey
			if key != "" {
				p = NewAnthropicProvider(key, gen.AnthropicModel)
			}
		case config.ProviderGemini:
			key = secrets.GeminiAPIKey
			if key != "" {
				gp, err := NewGeminiProvider(ctx, key, gen.GeminiModel)
				if err != nil {
					return nil, err
				}
				p = gp
			}
		default:
			return nil, fmt.Errorf("unknown provider: %s", name)
		}

		if p == nil {
			slog.Warn("provider has no API key, skipping", "component", "generator", "provider", name)
			continue
		}
		out = append(out, p)
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("no generation provider has an API key (tried %v)", gen.Providers)
	}
	return out, nil
}
