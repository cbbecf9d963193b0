// Command rsctl is a dev CLI for replyscout maintenance and debugging tasks.
package main

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/chromedp/chromedp"
	"github.com/pkg/browser"
	"github.com/spf13/cobra"

	"github.com/ibeckermayer/replyscout/internal/app"
	browseropts "github.com/ibeckermayer/replyscout/internal/browser"
	"github.com/ibeckermayer/replyscout/internal/config"
	"github.com/ibeckermayer/replyscout/internal/store"
	"github.com/ibeckermayer/replyscout/internal/types"
)

func main() {
	root := &cobra.Command{
		Use:           "rsctl",
		Short:         "Maintenance and debugging helpers for replyscout",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(botTestCmd(), openCmd(), stepCmd())

	if err := root.Execute(); err != nil {
		slog.Error("rsctl failed", "error", err)
		os.Exit(1)
	}
}

func botTestCmd() *cobra.Command {
	var proxy string
	cmd := &cobra.Command{
		Use:   "bot-test",
		Short: "Open bot.sannysoft.com to audit the browser fingerprint",
		RunE: func(cmd *cobra.Command, args []string) error {
			slog.Info("opening bot.sannysoft.com with stealth browser options")

			// Headful so the results page can be inspected.
			ctx, cancel, err := browseropts.Launch(cmd.Context(), false, proxy)
			if err != nil {
				return err
			}
			defer cancel()

			if err := chromedp.Run(ctx,
				chromedp.Navigate("https://bot.sannysoft.com"),
				chromedp.WaitVisible("body", chromedp.ByQuery),
			); err != nil {
				return fmt.Errorf("failed to navigate: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Press Enter to close the browser...")
			_, _ = bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			return nil
		},
	}
	cmd.Flags().StringVar(&proxy, "proxy", os.Getenv("PROXY_URL"), "proxy server for the browser")
	return cmd
}

func openCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "open <config|data|cache>",
		Short:     "Open the config file, data directory or cache directory",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"config", "data", "cache"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				path string
				err  error
			)
			switch args[0] {
			case "config":
				path, err = config.ConfigPath()
			case "data":
				path, err = config.DataDir()
			case "cache":
				path, err = config.CacheDir()
			default:
				return fmt.Errorf("unknown target: %s", args[0])
			}
			if err != nil {
				return fmt.Errorf("failed to get path: %w", err)
			}
			return browser.OpenFile(path)
		},
	}
}

func stepCmd() *cobra.Command {
	var open bool
	cmd := &cobra.Command{
		Use:       "step <discovered|ranked|generated>",
		Short:     "Summarize the latest cached output of a pipeline step",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(store.StepDiscovered), string(store.StepRanked), string(store.StepGenerated)},
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			var path string
			switch step := store.StepName(args[0]); step {
			case store.StepDiscovered, store.StepRanked:
				posts, p, err := store.LoadLatestStepOutput[[]types.Post](step)
				if err != nil {
					return err
				}
				path = p
				summarizePosts(out, posts)
			case store.StepGenerated:
				candidates, p, err := store.LoadLatestStepOutput[[]app.Candidate](step)
				if err != nil {
					return err
				}
				path = p
				summarizeCandidates(out, candidates)
			default:
				return fmt.Errorf("unknown step: %s", args[0])
			}

			fmt.Fprintln(out, path)
			if open {
				return browser.OpenFile(path)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&open, "open", false, "also open the cached file")
	return cmd
}

func summarizePosts(w io.Writer, posts []types.Post) {
	fmt.Fprintf(w, "%d posts\n", len(posts))
	for _, p := range posts {
		fmt.Fprintf(w, "%6.1f  @%-16s %s\n", p.Score, p.AuthorHandle, p.URL)
	}
}

func summarizeCandidates(w io.Writer, candidates []app.Candidate) {
	fmt.Fprintf(w, "%d candidates\n", len(candidates))
	for _, c := range candidates {
		fmt.Fprintf(w, "%6.1f  @%-16s %d/%d options  %s\n",
			c.Post.Score, c.Post.AuthorHandle, len(c.Comments), len(types.Tones), c.Post.URL)
	}
}
