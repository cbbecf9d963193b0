// Package cli is the replyscout command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ibeckermayer/replyscout/internal/config"
	"github.com/ibeckermayer/replyscout/internal/logging"
)

// env is what every command gets after the root pre-run
type env struct {
	configPath string
	cfg        *config.Config
	logCloser  io.Closer
}

// Execute runs the root command until it returns or the process is
// interrupted.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		slog.Error("command failed", "error", err)
		return 1
	}
	return 0
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	e := &env{}

	root := &cobra.Command{
		Use:           "replyscout",
		Short:         "Find X posts worth replying to and draft replies for review",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return e.load()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if e.logCloser != nil {
				return e.logCloser.Close()
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&e.configPath, "config", "", "config file (default is the platform config dir)")

	root.AddCommand(
		newRunCmd(e),
		newServeCmd(e),
		newBotCmd(e),
		newReportCmd(e),
		newLoginCmd(e),
		newLogoutCmd(e),
		newStatusCmd(e),
		newCookiesCmd(),
	)
	return root
}

// load reads the config, creating a default one on first run, then the
// secrets, then installs the logger.
func (e *env) load() error {
	path := e.configPath
	if path == "" {
		p, err := config.ConfigPath()
		if err != nil {
			return err
		}
		path = p
	}

	cfg, err := config.LoadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg = config.Default()
		if err := cfg.SaveFile(path); err != nil {
			slog.Warn("could not save default config", "path", path, "error", err)
		} else {
			slog.Info("created default config", "path", path)
		}
	} else if err != nil {
		return fmt.Errorf("failed to load config %s: %w", path, err)
	}

	if err := cfg.LoadSecrets(); err != nil {
		return err
	}

	closer, err := logging.Setup(cfg.Logging)
	if err != nil {
		return err
	}
	e.cfg = cfg
	e.logCloser = closer
	return nil
}
