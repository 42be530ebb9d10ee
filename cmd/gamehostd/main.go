package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	sddaemon "github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"

	"github.com/modoterra/gamehost/internal/buildinfo"
	"github.com/modoterra/gamehost/pkg/config"
	"github.com/modoterra/gamehost/pkg/daemon"
	"github.com/modoterra/gamehost/pkg/gameproc"
)

// shutdownTimeout bounds how long running games get to die on exit.
const shutdownTimeout = 10 * time.Second

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "gamehostd",
	Short:         "Daemon that launches and supervises game processes",
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(_ *cobra.Command, _ []string) error {
		return run(configPath)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "gamehostd %s (%s) built %s\n", buildinfo.Version, buildinfo.Commit, buildinfo.Date)
	},
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", config.DefaultPath(), "path to gamehost.yaml or gamehost.toml")
	rootCmd.AddCommand(versionCmd)
}

func run(configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "gamehostd:", err)
		return err
	}
	logger := cfg.NewLogger(os.Stderr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := gameproc.NewRegistry(logger)
	d := daemon.New(cfg, registry, logger)
	defer d.Shutdown()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)
	go func() {
		for sig := range sigCh {
			if sig == syscall.SIGHUP {
				reload(d, configPath, logger)
				continue
			}
			logger.Info("shutting down")
			sddaemon.SdNotify(false, sddaemon.SdNotifyStopping)
			cancel()
			return
		}
	}()

	pollLoop := daemon.NewPollLoop(d, cfg.Poll(), logger)
	go pollLoop.Run(ctx)

	logger.Info("starting gamehostd", "version", buildinfo.Version, "socket", cfg.Socket)
	err = d.Run(ctx, func() {
		if _, err := sddaemon.SdNotify(false, sddaemon.SdNotifyReady); err != nil {
			logger.Debug("sd_notify", "err", err)
		}
	})

	stopCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if serr := registry.Shutdown(stopCtx); serr != nil {
		logger.Warn("games still running at exit", "err", serr)
	}
	if err != nil {
		logger.Error("daemon error", "err", err)
		return err
	}
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if errs := config.Validate(cfg); len(errs) > 0 {
		return nil, fmt.Errorf("%s: %w", path, errors.Join(errs...))
	}
	return cfg, nil
}

// reload swaps in a fresh config. The socket and poll interval keep their
// startup values.
func reload(d *daemon.Daemon, path string, logger *slog.Logger) {
	cfg, err := loadConfig(path)
	if err != nil {
		logger.Error("config reload failed", "path", path, "err", err)
		return
	}
	d.SetConfig(cfg)
	logger.Info("config reloaded", "path", path, "games", len(cfg.Games))
}
