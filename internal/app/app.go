// Package app wires discovery, ranking, generation and the reviewer channel
// into a single pipeline run.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ibeckermayer/replyscout/internal/auth"
	"github.com/ibeckermayer/replyscout/internal/config"
	"github.com/ibeckermayer/replyscout/internal/discovery"
	"github.com/ibeckermayer/replyscout/internal/generator"
	"github.com/ibeckermayer/replyscout/internal/generator/providers"
	"github.com/ibeckermayer/replyscout/internal/metrics"
	"github.com/ibeckermayer/replyscout/internal/notifier"
	"github.com/ibeckermayer/replyscout/internal/scraper"
	"github.com/ibeckermayer/replyscout/internal/store"
	"github.com/ibeckermayer/replyscout/internal/types"
)

// Generator produces reply options for a post
type Generator interface {
	Generate(ctx context.Context, post types.Post, replies []types.Reply) []generator.Result
}

// Components are the parts of the pipeline rebuilt on every config reload
type Components struct {
	Open      discovery.Opener
	Generator Generator
}

// BuildFunc creates Components for cfg
type BuildFunc func(ctx context.Context, cfg *config.Config) (Components, error)

// Deps are the long-lived collaborators of an App
type Deps struct {
	Store    *store.Store
	Notifier notifier.Notifier
	// Metrics may be nil.
	Metrics *metrics.Metrics
	// Build creates the scraper and generator. Use BrowserBuild outside tests.
	Build BuildFunc
}

// App holds the application state.
type App struct {
	mu sync.RWMutex
	// running is held for the duration of a RunOnce.
	running sync.Mutex

	// Immutable after creation.
	store    *store.Store
	notifier notifier.Notifier
	metrics  *metrics.Metrics
	build    BuildFunc
	logger   *slog.Logger

	// Mutable fields - use getSnapshot() for concurrent access.
	config     *config.Config
	components Components
}

// snapshot holds fields that may be replaced by ReloadConfig.
// Use getSnapshot() to obtain a consistent, point-in-time copy.
type snapshot struct {
	config     *config.Config
	components Components
}

// getSnapshot returns a snapshot of mutable fields under read lock.
func (a *App) getSnapshot() snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return snapshot{
		config:     a.config,
		components: a.components,
	}
}

// New creates an App and syncs the configured watchlist into the store.
func New(ctx context.Context, cfg *config.Config, deps Deps) (*App, error) {
	a := &App{
		store:    deps.Store,
		notifier: deps.Notifier,
		metrics:  deps.Metrics,
		build:    deps.Build,
		logger:   slog.With("component", "app"),
	}
	if err := a.apply(ctx, cfg); err != nil {
		return nil, err
	}
	return a, nil
}

// Config returns the current configuration.
func (a *App) Config() *config.Config {
	return a.getSnapshot().config
}

// Open starts a browser session with the current configuration. It
// satisfies discovery.Opener.
func (a *App) Open(ctx context.Context) (discovery.Session, error) {
	return a.getSnapshot().components.Open(ctx)
}

// ReloadConfig reloads the configuration from path, or from the default
// location when path is empty. The running configuration is kept when the
// new one does not load or validate.
func (a *App) ReloadConfig(ctx context.Context, path string) error {
	if path == "" {
		p, err := config.ConfigPath()
		if err != nil {
			return err
		}
		path = p
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		return err
	}
	if err := cfg.LoadSecrets(); err != nil {
		return err
	}
	if err := a.apply(ctx, cfg); err != nil {
		return err
	}
	a.logger.Info("configuration reloaded")
	return nil
}

func (a *App) apply(ctx context.Context, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	components, err := a.build(ctx, cfg)
	if err != nil {
		return err
	}
	for _, w := range cfg.Accounts() {
		if err := a.store.UpsertWatch(ctx, w); err != nil {
			return fmt.Errorf("failed to sync watch @%s: %w", w.Handle, err)
		}
	}

	a.mu.Lock()
	a.config = cfg
	a.components = components
	a.mu.Unlock()
	return nil
}

// BrowserBuild returns the production BuildFunc: a chromedp scraper session
// authenticated with the stored cookies, and the configured providers.
func BrowserBuild(authManager *auth.Manager, m *metrics.Metrics) BuildFunc {
	return func(ctx context.Context, cfg *config.Config) (Components, error) {
		provs, err := providers.FromConfig(ctx, cfg)
		if err != nil {
			return Components{}, err
		}

		opts := generator.Options{
			Temperature:    cfg.Generation.Temperature,
			MaxTokens:      cfg.Generation.MaxTokens,
			Timeout:        time.Duration(cfg.Generation.TimeoutSeconds) * time.Second,
			Persona:        cfg.Generation.Persona,
			CacheExchanges: cfg.Debug.CacheLLM,
		}
		if m != nil {
			opts.Observe = m.ObserveGeneration
		}

		scrapeOpts := scraper.Options{
			Headless: cfg.Scraping.Headless,
			Proxy:    cfg.Secrets.ProxyURL,
			Timeout:  time.Duration(cfg.Scraping.TimeoutSeconds) * time.Second,
		}
		open := func(ctx context.Context) (discovery.Session, error) {
			cookies, err := authManager.Cookies()
			if err != nil {
				return nil, err
			}
			session, err := scraper.Open(ctx, cookies, scrapeOpts)
			if err != nil {
				return nil, err
			}
			return session, nil
		}

		engine := generator.New(provs, opts)
		slog.Info("generation providers", "component", "app", "order", engine.ProviderNames())
		return Components{Open: open, Generator: engine}, nil
	}
}
