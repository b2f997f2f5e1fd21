package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"tools.zach/dev/codecord"
	"tools.zach/dev/codecord/internal/atomicfile"
	"tools.zach/dev/codecord/internal/config"
	"tools.zach/dev/codecord/internal/editor"
	"tools.zach/dev/codecord/internal/langs"
	"tools.zach/dev/codecord/internal/logger"
	"tools.zach/dev/codecord/internal/paths"
	"tools.zach/dev/codecord/internal/presence"
	"tools.zach/dev/codecord/internal/update"
)

// ///////////////////////////////////////////////
// PID Management
// ///////////////////////////////////////////////

// writePID creates or opens the PID file, acquires an advisory lock on it,
// and writes "PID:TOKEN". The returned file must stay open for the daemon's
// lifetime to hold the lock; pass it to [removePID] on shutdown.
func writePID(dirs paths.DataDir, token string) (*os.File, error) {
	f, err := os.OpenFile(dirs.PID(), os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open PID file: %w", err)
	}
	if err := lockFile(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("lock PID file: %w", err)
	}
	if err := f.Truncate(0); err != nil {
		_ = unlockFile(f)
		f.Close()
		return nil, fmt.Errorf("truncate PID file: %w", err)
	}
	if _, err := fmt.Fprintf(f, "%d:%s", os.Getpid(), token); err != nil {
		_ = unlockFile(f)
		f.Close()
		return nil, fmt.Errorf("write PID file: %w", err)
	}
	return f, nil
}

// removePID releases the lock and removes the PID file only if it still
// carries token, so a newer instance's file is left alone.
func removePID(dirs paths.DataDir, token string, f *os.File) {
	if f != nil {
		_ = unlockFile(f)
		f.Close()
	}
	data, err := os.ReadFile(dirs.PID())
	if err != nil {
		return
	}
	parts := strings.SplitN(string(data), ":", 2)
	if len(parts) == 2 && parts[1] == token {
		os.Remove(dirs.PID())
	}
}

// checkStalePID reports whether another daemon holds the PID file lock, and
// its PID when readable. A PID file nobody holds is stale and is removed.
func checkStalePID(dirs paths.DataDir) (alive bool, pid int) {
	f, err := os.OpenFile(dirs.PID(), os.O_RDWR, 0o600)
	if err != nil {
		return false, 0
	}

	if lockErr := lockFile(f); lockErr != nil {
		data, _ := os.ReadFile(dirs.PID())
		f.Close()
		head, _, _ := strings.Cut(string(data), ":")
		if p, convErr := strconv.Atoi(head); convErr == nil {
			return true, p
		}
		return true, 0
	}

	// Lock acquired: the previous instance is gone.
	_ = unlockFile(f)
	f.Close()
	os.Remove(dirs.PID())
	return false, 0
}

// ///////////////////////////////////////////////
// Daemon
// ///////////////////////////////////////////////

// daemonOptions configures [runDaemon].
type daemonOptions struct {
	dataDir string
	// foreground mirrors log lines and user messages to stderr.
	foreground bool
	stderr     io.Writer
	// dial defaults to [presence.DiscordDialer].
	dial presence.Dialer
}

// seedConfig writes the annotated default config when none exists.
func seedConfig(dirs paths.DataDir) error {
	if _, err := os.Stat(dirs.Config()); !errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return atomicfile.Write(dirs.Config(), codecord.DefaultConfigTOML, 0o644)
}

// seconds converts a config value in seconds to a duration.
func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// runDaemon runs the presence session until ctx is done or the process
// receives SIGINT/SIGTERM.
func runDaemon(ctx context.Context, opts daemonOptions) error {
	dirs := paths.DataDir{Root: opts.dataDir}

	if err := os.MkdirAll(dirs.Root, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	if alive, pid := checkStalePID(dirs); alive {
		return fmt.Errorf("daemon already running (pid %d)", pid)
	}
	if err := seedConfig(dirs); err != nil {
		fmt.Fprintf(opts.stderr, "warning: failed to write default config: %v\n", err)
	}

	cfg, err := config.Load(dirs.Root)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logOpts := logger.Options{
		Path:      dirs.Log(),
		Level:     logger.ParseLevel(cfg.Log.Level),
		MaxSizeMB: cfg.Log.MaxSizeMB,
	}
	if opts.foreground {
		logOpts.Mirror = opts.stderr
	}
	log, logCloser, err := logger.NewLogger(logOpts)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logCloser.Close()
	prev := slog.Default()
	slog.SetDefault(log)
	defer slog.SetDefault(prev)

	ver := resolveVersion()
	slog.Info("codecord starting", "version", ver, "data_dir", dirs.Root)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := signalChannel()
	go func() {
		select {
		case <-sigCh:
			slog.Info("received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	if cfg.Behavior.CheckUpdates {
		go func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("update check panic", "error", r)
				}
			}()
			update.Check(ctx, ver)
		}()
	}

	lm, err := langs.Load(langs.SourceConfig{
		Source:    cfg.Languages.Source,
		URL:       cfg.Languages.URL,
		File:      cfg.Languages.File,
		Overrides: cfg.Languages.Overrides,
	}, dirs.Root, codecord.LanguagesJSON)
	if lm == nil {
		return fmt.Errorf("load language map: %w", err)
	}
	if err != nil {
		slog.Warn("language map source failed, using fallback", "source", cfg.Languages.Source, "error", err)
	}
	slog.Info("loaded language map", "extensions", len(lm.Extensions))

	var messages io.Writer
	if opts.foreground {
		messages = opts.stderr
	}
	host, err := editor.NewFileHost(dirs.Root, messages)
	if err != nil {
		return fmt.Errorf("watch data dir: %w", err)
	}
	defer host.Close()
	if host.Polling() {
		slog.Info("using polling mode for file watching")
	}

	// Written once the host is watching, so requests from `codecord toggle`
	// that see the PID file are never discarded as stale.
	token := uuid.NewString()
	pidFile, err := writePID(dirs, token)
	if err != nil {
		logger.Fail(log, "failed to write PID file", "error", err)
		return err
	}
	defer removePID(dirs, token, pidFile)

	mgr := presence.NewManager(presence.Options{
		Host:          host,
		Dial:          opts.dial,
		Settings:      host.Settings,
		Langs:         lm,
		RetryInterval: seconds(cfg.Behavior.ReconnectIntervalSeconds),
		MaxAttempts:   cfg.Behavior.MaxReconnectAttempts,
		LoginTimeout:  seconds(cfg.Behavior.LoginTimeoutSeconds),
	})
	mgrDone := make(chan struct{})
	go func() {
		defer close(mgrDone)
		mgr.Run(ctx)
	}()

	// Requests queue in the watcher until the toggle command is registered.
	select {
	case <-mgr.Started():
		host.Run(ctx)
	case <-ctx.Done():
	}
	<-mgrDone

	slog.Info("codecord stopped")
	return nil
}
