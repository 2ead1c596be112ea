package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"

	"threadrelay/internal/config"
	"threadrelay/internal/daemon"
	"threadrelay/internal/ipc"
	"threadrelay/internal/logging"
	"threadrelay/internal/preflight"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the threadrelay daemon runtime loop. It returns after SIGINT,
// SIGTERM, or a Stop request over IPC.
func Run(cmdCtx context.Context, store *config.Store, opts Options) error {
	if store == nil || store.Current() == nil {
		return errors.New("config is required")
	}
	cfg := store.Current()

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	level := cfg.Logging.Level
	if strings.TrimSpace(opts.LogLevel) != "" {
		level = opts.LogLevel
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", cfg.LogPath()},
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logRelaySnapshot(signalCtx, logger, cfg)

	d, err := daemon.New(daemon.Options{Store: store, Logger: logger})
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	ipcServer, err := ipc.NewServer(signalCtx, cfg.SocketPath(), d, logger, cancel)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	<-signalCtx.Done()
	logger.Info("threadrelay daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}

// logRelaySnapshot records relay reachability once at startup.
func logRelaySnapshot(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	attrs := []any{
		logging.String(logging.FieldEventType, "relay_snapshot"),
		logging.Bool("stream_enabled", cfg.Stream.Enabled),
		logging.Bool("ntfy_topic_present", strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""),
	}
	for _, result := range preflight.RunAll(ctx, cfg) {
		key := strings.ToLower(strings.NewReplacer(" ", "_", "-", "_").Replace(result.Name))
		attrs = append(attrs, logging.Bool(key+"_ready", result.Passed))
		if !result.Passed {
			attrs = append(attrs, logging.String(key+"_detail", result.Detail))
		}
	}
	logger.Info("relay snapshot", attrs...)
}
