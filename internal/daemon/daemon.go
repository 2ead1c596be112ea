package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"threadrelay/internal/archive"
	"threadrelay/internal/config"
	"threadrelay/internal/engine"
	"threadrelay/internal/logging"
	"threadrelay/internal/notifications"
	"threadrelay/internal/preflight"
	"threadrelay/internal/services"
	"threadrelay/internal/signals"
)

const signalCapacity = 512

// Options wires the daemon's collaborators. Store is required.
type Options struct {
	Store  *config.Store
	Logger *slog.Logger

	// NewAccessor opens the feed for a thread URL. It defaults to the
	// mebuki page accessor.
	NewAccessor AccessorFactory
	// Engine relay seams; nil uses the configured HTTP clients.
	NewSpeaker       func(*config.Config) engine.Speaker
	NewCommentSender func(*config.Config) engine.CommentSender
	// Checks runs the readiness checks reported by Status. It defaults to
	// preflight.RunAll.
	Checks func(context.Context, *config.Config) []preflight.Result
}

// Daemon coordinates the open thread session and enforces single-instance execution.
type Daemon struct {
	store       *config.Store
	logger      *slog.Logger
	hub         *signals.Hub
	newAccessor AccessorFactory
	newSpeaker  func(*config.Config) engine.Speaker
	newSender   func(*config.Config) engine.CommentSender
	checks      func(context.Context, *config.Config) []preflight.Result

	lockPath string
	pidPath  string
	lock     *flock.Flock

	ledger    *archive.Ledger
	requester *archive.Requester

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc

	// openMu serializes OpenThread and CloseThread so a session swap is
	// never interleaved with another.
	openMu  sync.Mutex
	mu      sync.Mutex
	session *Session
}

// Status represents daemon runtime information.
type Status struct {
	Running    bool
	PID        int
	LockPath   string
	SocketPath string
	LedgerPath string
	ConfigPath string
	Session    *SessionInfo
	Checks     []preflight.Result
}

// New constructs a daemon with initialized dependencies.
func New(opts Options) (*Daemon, error) {
	if opts.Store == nil {
		return nil, errors.New("daemon requires a config store")
	}
	cfg := opts.Store.Current()
	newAccessor := opts.NewAccessor
	if newAccessor == nil {
		newAccessor = mebukiAccessor
	}
	checks := opts.Checks
	if checks == nil {
		checks = preflight.RunAll
	}
	return &Daemon{
		store:       opts.Store,
		logger:      logging.NewComponentLogger(opts.Logger, "daemon"),
		hub:         signals.NewHub(signalCapacity),
		newAccessor: newAccessor,
		newSpeaker:  opts.NewSpeaker,
		newSender:   opts.NewCommentSender,
		checks:      checks,
		lockPath:    cfg.LockPath(),
		pidPath:     cfg.PIDPath(),
		lock:        flock.New(cfg.LockPath()),
	}, nil
}

// Start acquires the daemon lock and opens the archive ledger.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	cfg := d.store.Current()
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another threadrelay daemon instance is already running")
	}

	ledger, err := archive.OpenLedger(cfg.LedgerPath())
	if err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("open archive ledger: %w", err)
	}
	d.ledger = ledger
	d.requester = archive.NewRequester(archive.RequesterOptions{
		Ledger:    ledger,
		Logger:    d.logger,
		Timeout:   cfg.Archive.Timeout(),
		UserAgent: cfg.Feed.UserAgent,
	})

	if err := os.WriteFile(d.pidPath, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644); err != nil {
		d.logger.Warn("pid file not written",
			logging.Error(err),
			logging.String(logging.FieldEventType, "pid_write_failed"),
			logging.String(logging.FieldErrorHint, "check paths.state_dir permissions"),
			logging.String(logging.FieldImpact, "stop fallbacks cannot find the daemon process"),
		)
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	d.store.OnChange(d.applyConfig)
	d.running.Store(true)
	d.logger.Info("threadrelay daemon started",
		logging.String(logging.FieldEventType, "daemon_start"),
		logging.String("lock", d.lockPath),
		logging.String("ledger", ledger.Path()),
	)
	return nil
}

// Stop closes the session, drains downloads, and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if err := d.CloseThread(context.Background()); err != nil && !errors.Is(err, services.ErrNotFound) {
		d.logger.Warn("session close failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "session_close_failed"),
			logging.String(logging.FieldImpact, "pending relay work was dropped"),
		)
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.requester != nil {
		d.requester.Wait()
	}
	_ = os.Remove(d.pidPath)
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock",
			logging.Error(err),
			logging.String(logging.FieldEventType, "lock_release_failed"),
			logging.String(logging.FieldImpact, "next start may report another instance"),
		)
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("threadrelay daemon stopped", logging.String(logging.FieldEventType, "daemon_stop"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.ledger != nil {
		err := d.ledger.Close()
		d.ledger = nil
		return err
	}
	return nil
}

// Running reports whether Start succeeded and Stop has not run.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// Signals returns the outbound signal hub.
func (d *Daemon) Signals() *signals.Hub {
	return d.hub
}

// Config returns the active configuration snapshot.
func (d *Daemon) Config() *config.Config {
	return d.store.Current()
}

// Settings is a partial configuration update. Nil fields are left unchanged.
type Settings struct {
	SpeechPort       *int
	OverlayServiceID *string
	StreamEnabled    *bool
}

// UpdateSettings applies a validated partial update and persists it when the
// store has a backing file. A rejected update keeps the previous values.
func (d *Daemon) UpdateSettings(settings Settings) error {
	if err := d.checkSettingsUnlocked(settings); err != nil {
		return err
	}
	err := d.store.Update(func(cfg *config.Config) {
		if settings.SpeechPort != nil {
			cfg.Speech.Port = *settings.SpeechPort
		}
		if settings.OverlayServiceID != nil {
			cfg.Overlay.ServiceID = strings.TrimSpace(*settings.OverlayServiceID)
		}
		if settings.StreamEnabled != nil {
			cfg.Stream.Enabled = *settings.StreamEnabled
		}
	})
	if err != nil {
		return services.Wrap(services.ErrValidation, "daemon", "update settings", err.Error(), nil)
	}
	if d.store.Path() == "" {
		return nil
	}
	if err := d.store.Save(); err != nil {
		return services.Wrap(services.ErrConfiguration, "daemon", "save settings", "settings applied but not saved", err)
	}
	return nil
}

// checkSettingsUnlocked rejects relay endpoint changes while that relay is
// enabled on the open session. Resending the current value is allowed.
func (d *Daemon) checkSettingsUnlocked(settings Settings) error {
	d.mu.Lock()
	session := d.session
	d.mu.Unlock()
	if session == nil {
		return nil
	}
	st := session.Engine.State()
	cfg := d.store.Current()
	if settings.SpeechPort != nil && *settings.SpeechPort != cfg.Speech.Port && st.SpeechEnabled {
		return services.Wrap(services.ErrValidation, "daemon", "update settings", "speech.port is locked while speech is enabled", nil)
	}
	if settings.OverlayServiceID != nil && strings.TrimSpace(*settings.OverlayServiceID) != cfg.Overlay.ServiceID && st.OverlayEnabled {
		return services.Wrap(services.ErrValidation, "daemon", "update settings", "overlay.service_id is locked while the overlay is enabled", nil)
	}
	return nil
}

// ReloadConfig re-reads the configuration file.
func (d *Daemon) ReloadConfig() error {
	if err := d.store.Reload(); err != nil {
		return services.Wrap(services.ErrConfiguration, "daemon", "reload config", "configuration rejected", err)
	}
	d.logger.Info("configuration reloaded", logging.String(logging.FieldEventType, "config_reloaded"))
	return nil
}

// History lists archived files, newest first. An empty threadID lists every thread.
func (d *Daemon) History(ctx context.Context, threadID string, limit int) ([]archive.Entry, error) {
	if d.ledger == nil {
		return nil, services.Wrap(services.ErrNotFound, "daemon", "history", "archive ledger unavailable", nil)
	}
	return d.ledger.List(ctx, threadID, limit)
}

// Status returns the current daemon status including readiness checks.
func (d *Daemon) Status(ctx context.Context) Status {
	cfg := d.store.Current()
	status := Status{
		Running:    d.running.Load(),
		PID:        os.Getpid(),
		LockPath:   d.lockPath,
		SocketPath: cfg.SocketPath(),
		ConfigPath: d.store.Path(),
		Checks:     d.checks(ctx, cfg),
	}
	if d.ledger != nil {
		status.LedgerPath = d.ledger.Path()
	}
	if info, err := d.SessionInfo(); err == nil {
		status.Session = &info
	}
	return status
}

func (d *Daemon) applyConfig(cfg *config.Config) {
	d.mu.Lock()
	session := d.session
	d.mu.Unlock()
	if session != nil {
		session.Engine.ApplyConfig(cfg)
	}
}

// livePresenter resolves the notice backend from the current snapshot so a
// changed ntfy topic applies without reopening the thread.
type livePresenter struct {
	store  *config.Store
	logger *slog.Logger
}

func (p livePresenter) Show(ctx context.Context, title, body string) error {
	return notifications.NewPresenter(p.store.Current(), p.logger).Show(ctx, title, body)
}

func (p livePresenter) Alert(ctx context.Context, title, body string) error {
	return notifications.NewPresenter(p.store.Current(), p.logger).Alert(ctx, title, body)
}
