package daemon

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"threadrelay/internal/config"
	"threadrelay/internal/engine"
	"threadrelay/internal/feed"
	"threadrelay/internal/feed/mebuki"
	"threadrelay/internal/logging"
	"threadrelay/internal/services"
	"threadrelay/internal/signals"
)

// AccessorFactory opens the feed for a thread URL and reports its thread id.
type AccessorFactory func(threadURL string, cfg *config.Config, logger *slog.Logger) (feed.Accessor, string, error)

func mebukiAccessor(threadURL string, cfg *config.Config, logger *slog.Logger) (feed.Accessor, string, error) {
	accessor, err := mebuki.New(mebuki.Options{
		URL:          threadURL,
		PollInterval: cfg.Feed.PollDuration(),
		Timeout:      cfg.Feed.Timeout(),
		UserAgent:    cfg.Feed.UserAgent,
		Logger:       logger,
	})
	if err != nil {
		return nil, "", err
	}
	return accessor, accessor.ThreadID(), nil
}

// ResolveThreadURL accepts a full thread URL or a bare thread id, which is
// joined onto base.
func ResolveThreadURL(base, input string) string {
	input = strings.TrimSpace(input)
	if input == "" {
		return ""
	}
	if parsed, err := url.Parse(input); err == nil && parsed.Scheme != "" {
		return input
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(input, "/")
}

// Session is the engine bound to the currently open thread.
type Session struct {
	ID       string
	URL      string
	ThreadID string
	OpenedAt time.Time
	Engine   *engine.Engine
}

// SessionInfo is a point-in-time view of the open session.
type SessionInfo struct {
	ID       string       `json:"id"`
	URL      string       `json:"url"`
	ThreadID string       `json:"thread_id"`
	Title    string       `json:"title"`
	OpenedAt time.Time    `json:"opened_at"`
	State    engine.State `json:"state"`
}

func (s *Session) info() SessionInfo {
	return SessionInfo{
		ID:       s.ID,
		URL:      s.URL,
		ThreadID: s.ThreadID,
		Title:    s.Engine.Title(),
		OpenedAt: s.OpenedAt,
		State:    s.Engine.State(),
	}
}

// OpenThread binds a fresh session to the thread. Any session already open
// is closed first, so opening a thread always starts idle. Capabilities whose
// auto-start keywords match are then enabled; their failures are logged and
// alerted but do not fail the open.
func (d *Daemon) OpenThread(ctx context.Context, input string) (SessionInfo, error) {
	if !d.running.Load() {
		return SessionInfo{}, services.Wrap(services.ErrValidation, "daemon", "open thread", "daemon is not running", nil)
	}
	cfg := d.store.Current()
	threadURL := ResolveThreadURL(cfg.Feed.BaseURL, input)
	if threadURL == "" {
		return SessionInfo{}, services.Wrap(services.ErrValidation, "daemon", "open thread", "thread url is required", nil)
	}
	accessor, threadID, err := d.newAccessor(threadURL, cfg, d.logger)
	if err != nil {
		return SessionInfo{}, err
	}

	d.openMu.Lock()
	if err := d.closeSession(); err != nil && !errors.Is(err, services.ErrNotFound) {
		d.openMu.Unlock()
		return SessionInfo{}, err
	}

	eng := engine.New(engine.Options{
		ThreadID:         threadID,
		Accessor:         accessor,
		Config:           d.store.Current,
		NewSpeaker:       d.newSpeaker,
		NewCommentSender: d.newSender,
		Archiver:         d.requester,
		Presenter:        livePresenter{store: d.store, logger: d.logger},
		Signals:          d.hub,
		Logger:           d.logger,
	})
	if err := eng.Start(d.ctx); err != nil {
		d.openMu.Unlock()
		return SessionInfo{}, err
	}
	session := &Session{
		ID:       uuid.NewString(),
		URL:      threadURL,
		ThreadID: threadID,
		OpenedAt: time.Now(),
		Engine:   eng,
	}
	d.mu.Lock()
	d.session = session
	d.mu.Unlock()
	d.openMu.Unlock()

	ctx = services.WithThreadID(ctx, threadID)
	logger := logging.WithContext(ctx, d.logger)
	logger.Info("thread opened",
		logging.String(logging.FieldEventType, "thread_opened"),
		logging.String("url", threadURL),
		logging.String("session_id", session.ID),
	)
	d.hub.Publish(signals.Signal{Kind: signals.KindThreadOpened, ThreadID: threadID, Message: threadURL})

	if err := eng.AutoStart(ctx); err != nil {
		logging.WarnWithContext(logger, "auto-start incomplete", "auto_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the relays are running, then enable the capability manually"),
			logging.String(logging.FieldImpact, "some matching capabilities stayed off"),
		)
	}
	return session.info(), nil
}

// CloseThread stops the open session. It returns ErrNotFound when no thread is open.
func (d *Daemon) CloseThread(_ context.Context) error {
	d.openMu.Lock()
	defer d.openMu.Unlock()
	return d.closeSession()
}

func (d *Daemon) closeSession() error {
	d.mu.Lock()
	session := d.session
	d.session = nil
	d.mu.Unlock()
	if session == nil {
		return services.Wrap(services.ErrNotFound, "daemon", "close thread", "no thread is open", nil)
	}
	err := session.Engine.Close()
	d.logger.Info("thread closed by operator",
		logging.String(logging.FieldEventType, "thread_session_closed"),
		logging.ThreadID(session.ThreadID),
		logging.String("session_id", session.ID),
	)
	return err
}

// Engine returns the open session's engine.
func (d *Daemon) Engine() (*engine.Engine, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.session == nil {
		return nil, services.Wrap(services.ErrNotFound, "daemon", "engine", "no thread is open", nil)
	}
	return d.session.Engine, nil
}

// SessionInfo describes the open session.
func (d *Daemon) SessionInfo() (SessionInfo, error) {
	d.mu.Lock()
	session := d.session
	d.mu.Unlock()
	if session == nil {
		return SessionInfo{}, services.Wrap(services.ErrNotFound, "daemon", "session", "no thread is open", nil)
	}
	return session.info(), nil
}
