package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ibeckermayer/replyscout/internal/app"
	"github.com/ibeckermayer/replyscout/internal/auth"
	"github.com/ibeckermayer/replyscout/internal/scheduler"
)

func newRunCmd(e *env) *cobra.Command {
	var test bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline once: discover, rank, draft replies and send cards",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := wire(ctx, e.cfg, wireOptions{requireBot: !test, pipeline: true})
			if err != nil {
				return err
			}
			defer s.Close()

			if !s.auth.IsAuthenticated() {
				return fmt.Errorf("not logged in to X, run `replyscout login` or `replyscout cookies import`")
			}
			sum, err := s.app.RunOnce(ctx, app.RunOptions{Test: test})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d discovered, %d ranked, %d drafted, %d sent\n",
				sum.RunID, sum.Discovered, sum.Ranked, sum.Generated, sum.Sent)
			return nil
		},
	}
	cmd.Flags().BoolVar(&test, "test", false, "search three keywords, draft for one post, and log instead of sending")
	return cmd
}

func newServeCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the review bot and the scheduled pipeline and report",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), e, true)
		},
	}
}

func newBotCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "bot",
		Short: "Run only the review bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), e, false)
		},
	}
}

// serve runs the control session until ctx is done. With schedule it also
// runs the pipeline every check interval and the daily report.
func serve(ctx context.Context, e *env, schedule bool) error {
	s, err := wire(ctx, e.cfg, wireOptions{requireBot: true, pipeline: true})
	if err != nil {
		return err
	}
	defer s.Close()

	s.serveMetrics(ctx)
	ctrl := s.controller()
	go reloadOnHangup(ctx, s, e.configPath)

	if schedule {
		sched, err := scheduler.New(e.cfg.Report.Timezone)
		if err != nil {
			return err
		}
		run := func(ctx context.Context) error {
			if !s.auth.IsAuthenticated() {
				return fmt.Errorf("not logged in to X")
			}
			_, err := s.app.RunOnce(ctx, app.RunOptions{})
			return err
		}
		if err := sched.AddRunJob(e.cfg.Scraping.CheckIntervalHours, run); err != nil {
			return err
		}
		if err := sched.AddDailyJob("report", e.cfg.Report.Time, s.sendReport); err != nil {
			return err
		}
		sched.Start()
		defer func() { <-sched.Stop().Done() }()

		go sched.RunNow("run", run)
	}

	slog.Info("replyscout serving", "component", "cli", "schedule", schedule, "autopost", e.cfg.AutoPost.Enabled)
	if err := s.bot.Run(ctx, ctrl); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func newReportCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Send today's report now",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := wire(ctx, e.cfg, wireOptions{requireBot: !e.cfg.Report.Email})
			if err != nil {
				return err
			}
			defer s.Close()
			return s.sendReport(ctx)
		},
	}
}

func newLoginCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Log in to X in a browser window and store the session cookies",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := newAuthManager(e.cfg)
			if err != nil {
				return err
			}
			slog.Info("opening browser for X login", "component", "auth")
			if err := m.Login(cmd.Context()); err != nil {
				return fmt.Errorf("login failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged in, cookies saved.")
			return nil
		},
	}
}

func newLogoutCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Delete the stored X session cookies",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := newAuthManager(e.cfg)
			if err != nil {
				return err
			}
			if err := m.Logout(); err != nil {
				return fmt.Errorf("logout failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Cookies cleared.")
			return nil
		},
	}
}

func newStatusCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the X session and today's activity",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := wire(ctx, e.cfg, wireOptions{})
			if err != nil {
				return err
			}
			defer s.Close()

			out := cmd.OutOrStdout()
			info, err := s.auth.Session()
			if err != nil {
				return err
			}
			switch {
			case !info.Valid && info.Cookies == 0:
				fmt.Fprintf(out, "session: none (%s)\n", info.Path)
			case !info.Valid:
				fmt.Fprintf(out, "session: invalid or expired, captured %s\n", info.CapturedAt.Format(time.DateTime))
			case info.ExpiresAt.IsZero():
				fmt.Fprintf(out, "session: valid, %d cookies, captured %s\n", info.Cookies, info.CapturedAt.Format(time.DateTime))
			default:
				fmt.Fprintf(out, "session: valid, %d cookies, expires %s\n", info.Cookies, info.ExpiresAt.Format(time.DateTime))
			}

			r, err := s.reports.Today(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, r.Plain())
			return nil
		},
	}
}

func newCookiesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cookies",
		Short: "Manage the stored X session",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "import <file>",
		Short: "Import cookies exported from a browser extension (JSON)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := auth.DefaultCookieStorePath()
			if err != nil {
				return err
			}
			n, err := auth.NewCookieStore(path).Import(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d cookies to %s\n", n, path)
			return nil
		},
	})
	return cmd
}

// reloadOnHangup reloads the config on SIGHUP until ctx is done. Components
// built at startup (bot, dispatcher) keep their settings.
func reloadOnHangup(ctx context.Context, s *services, path string) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := s.app.ReloadConfig(ctx, path); err != nil {
				slog.Error("config reload failed", "component", "cli", "error", err)
			}
		}
	}
}
