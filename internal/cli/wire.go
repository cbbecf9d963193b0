package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ibeckermayer/replyscout/internal/app"
	"github.com/ibeckermayer/replyscout/internal/approval"
	"github.com/ibeckermayer/replyscout/internal/auth"
	"github.com/ibeckermayer/replyscout/internal/autoposter"
	"github.com/ibeckermayer/replyscout/internal/config"
	"github.com/ibeckermayer/replyscout/internal/control"
	"github.com/ibeckermayer/replyscout/internal/dispatch"
	"github.com/ibeckermayer/replyscout/internal/metrics"
	"github.com/ibeckermayer/replyscout/internal/notifier"
	"github.com/ibeckermayer/replyscout/internal/notifier/telegram"
	"github.com/ibeckermayer/replyscout/internal/ondemand"
	"github.com/ibeckermayer/replyscout/internal/report"
	"github.com/ibeckermayer/replyscout/internal/store"
	"github.com/ibeckermayer/replyscout/internal/tasks"
	"github.com/ibeckermayer/replyscout/internal/types"
)

// services are the long-lived parts shared by the commands
type services struct {
	cfg     *config.Config
	store   *store.Store
	auth    *auth.Manager
	metrics *metrics.Metrics
	bot     *telegram.Bot
	app     *app.App
	reports *report.Builder

	closers []func()
}

func (s *services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func newAuthManager(cfg *config.Config) (*auth.Manager, error) {
	path, err := auth.DefaultCookieStorePath()
	if err != nil {
		return nil, fmt.Errorf("failed to get cookie store path: %w", err)
	}
	return auth.NewManager(auth.NewCookieStore(path), cfg.Secrets.ProxyURL), nil
}

// wireOptions selects what a command needs
type wireOptions struct {
	// requireBot makes a missing Telegram token an error; otherwise the bot
	// is left nil.
	requireBot bool
	// pipeline builds the app with its scraper and providers.
	pipeline bool
}

// wire opens the store and builds what opts asks for.
func wire(ctx context.Context, cfg *config.Config, opts wireOptions) (*services, error) {
	s := &services{cfg: cfg, metrics: metrics.New()}

	dbPath, err := config.DatabasePath()
	if err != nil {
		return nil, err
	}
	st, err := store.New(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	s.store = st
	s.closers = append(s.closers, func() { st.Close() })

	if s.auth, err = newAuthManager(cfg); err != nil {
		s.Close()
		return nil, err
	}

	bot, err := telegram.New(cfg.Secrets.TelegramBotToken, cfg.Secrets.TelegramChatID)
	switch {
	case err == nil:
		s.bot = bot
	case opts.requireBot:
		s.Close()
		return nil, err
	default:
		slog.Warn("telegram is not configured, cards will not be sent", "error", err)
	}

	loc, err := time.LoadLocation(cfg.Report.Timezone)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("invalid report timezone: %w", err)
	}
	if s.reports, err = report.New(st, loc); err != nil {
		s.Close()
		return nil, err
	}

	if !opts.pipeline {
		return s, nil
	}

	var out notifier.Notifier = discard{}
	if s.bot != nil {
		out = s.bot
	}
	s.app, err = app.New(ctx, cfg, app.Deps{
		Store:    st,
		Notifier: out,
		Metrics:  s.metrics,
		Build:    app.BrowserBuild(s.auth, s.metrics),
	})
	if err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// controller builds the reviewer session over the bot. It starts the
// auto-post dispatcher and the search pool; both are stopped by s.Close.
func (s *services) controller() *control.Controller {
	cfg := s.cfg
	searches := tasks.NewPool("search", 1, 4)
	s.closers = append(s.closers, searches.Close)

	opts := control.Options{
		Searcher:   ondemand.New(s.app.Open, s.store, s.bot),
		Searches:   searches,
		Reporter:   s.reports,
		Watchlist:  s.store,
		OnApproval: s.metrics.ObserveApproval,
	}
	if cfg.AutoPost.Enabled {
		poster := autoposter.New(s.auth, cfg.AutoPost.Headless, cfg.Secrets.ProxyURL)
		d := dispatch.New(poster, s.store, s.bot, dispatch.Options{
			Workers:   cfg.AutoPost.Workers,
			QueueSize: cfg.AutoPost.QueueSize,
			Timeout:   time.Duration(cfg.AutoPost.TimeoutSeconds) * time.Second,
			OnResult:  s.metrics.ObserveDispatch,
		})
		s.closers = append(s.closers, d.Close)
		opts.Dispatcher = d
	}
	return control.New(approval.NewMachine(s.store), s.bot, opts)
}

// sendReport delivers today's report to Telegram and, when enabled, email.
func (s *services) sendReport(ctx context.Context) error {
	r, err := s.reports.Today(ctx)
	if err != nil {
		return err
	}

	var errs []error
	if s.bot != nil {
		if _, err := s.bot.SendPrompt(ctx, r.Telegram(), nil); err != nil {
			errs = append(errs, fmt.Errorf("telegram: %w", err))
		}
	}
	if s.cfg.Report.Email {
		if err := s.mailReport(r); err != nil {
			errs = append(errs, fmt.Errorf("email: %w", err))
		}
	}
	slog.Info("daily report sent", "component", "report", "discovered", r.Stats.Discovered, "approved", r.Stats.Approved)
	return errors.Join(errs...)
}

func (s *services) mailReport(r *report.Report) error {
	mailer, err := notifier.NewMailerFromConfig(s.cfg.Email)
	if err != nil {
		return err
	}
	e, err := s.reports.Email(r)
	if err != nil {
		return err
	}
	return mailer.Send(e)
}

// serveMetrics exposes counters when [metrics].addr is set.
func (s *services) serveMetrics(ctx context.Context) {
	addr := s.cfg.Metrics.Addr
	if addr == "" {
		return
	}
	go func() {
		if err := s.metrics.Serve(ctx, addr); err != nil {
			slog.Error("metrics server failed", "component", "metrics", "error", err)
		}
	}()
}

// discard is the notifier used when Telegram is not configured
type discard struct{}

func (discard) SendCard(context.Context, notifier.Card) (notifier.MessageRef, error) {
	return notifier.MessageRef{}, nil
}
func (discard) SendPlain(context.Context, string) error { return nil }
func (discard) SendPrompt(context.Context, string, types.Keyboard) (notifier.MessageRef, error) {
	return notifier.MessageRef{}, nil
}
func (discard) EditMessage(context.Context, notifier.MessageRef, string) error { return nil }
