package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibeckermayer/replyscout/internal/config"
)

func TestFromConfigSkipsProvidersWithoutKeys(t *testing.T) {
	cfg := config.Default()
	cfg.Generation.Providers = []string{config.ProviderGroq, config.ProviderOpenAI, config.ProviderAnthropic}
	cfg.Secrets.OpenAIAPIKey = "sk-test"
	cfg.Secrets.AnthropicAPIKey = "ak-test"

	got, err := FromConfig(context.Background(), cfg)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, config.ProviderOpenAI, got[0].Name())
	assert.Equal(t, config.ProviderAnthropic, got[1].Name())
}

func TestFromConfigNeedsOneKey(t *testing.T) {
	cfg := config.Default()
	_, err := FromConfig(context.Background(), cfg)
	assert.Error(t, err)
}

func TestCompatibleProviderComplete(t *testing.T) {
	var req struct {
		Model       string  `json:"model"`
		Temperature float64 `json:"temperature"`
		MaxTokens   int     `json:"max_tokens"`
		Messages    []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer gk", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"a reply"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	p := NewCompatibleProvider(config.ProviderGroq, srv.URL, "gk", "llama-3.3-70b-versatile")
	text, err := p.Complete(context.Background(), "the prompt", 0.5, 200)
	require.NoError(t, err)
	assert.Equal(t, "a reply", text)

	assert.Equal(t, "llama-3.3-70b-versatile", req.Model)
	assert.InDelta(t, 0.5, req.Temperature, 1e-6)
	assert.Equal(t, 200, req.MaxTokens)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, "user", req.Messages[0].Role)
	assert.Equal(t, "the prompt", req.Messages[0].Content)
}

func TestCompatibleProviderSurfacesHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited","type":"rate_limit"}}`))
	}))
	defer srv.Close()

	p := NewCompatibleProvider("groq", srv.URL, "gk", "m")
	_, err := p.Complete(context.Background(), "x", 0.8, 10)
	assert.Error(t, err)
}
