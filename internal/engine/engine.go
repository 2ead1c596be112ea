package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"threadrelay/internal/archive"
	"threadrelay/internal/config"
	"threadrelay/internal/feed"
	"threadrelay/internal/logging"
	"threadrelay/internal/notifications"
	"threadrelay/internal/services"
	"threadrelay/internal/services/bouyomi"
	"threadrelay/internal/services/onecomme"
	"threadrelay/internal/signals"
)

// Speaker relays text to the speech engine.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// CommentSender relays comments to the chat overlay.
type CommentSender interface {
	Send(ctx context.Context, comment onecomme.Comment) error
}

// Archiver stores attachments and small text files.
type Archiver interface {
	Request(ctx context.Context, req archive.Request) error
	WriteText(ctx context.Context, dest, text string) error
}

// Options wires an Engine's collaborators. Config and Accessor are required.
type Options struct {
	ThreadID string
	Accessor feed.Accessor
	// Config returns the current configuration snapshot.
	Config func() *config.Config

	// NewSpeaker and NewCommentSender build relay clients from a snapshot.
	// They default to the Bouyomi-chan and OneComme HTTP clients.
	NewSpeaker       func(*config.Config) Speaker
	NewCommentSender func(*config.Config) CommentSender

	Archiver  Archiver
	Presenter notifications.Presenter
	Signals   signals.Publisher
	Logger    *slog.Logger

	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// Engine dispatches one thread's posts to the enabled sinks.
type Engine struct {
	threadID string
	accessor feed.Accessor
	config   func() *config.Config

	newSpeaker       func(*config.Config) Speaker
	newCommentSender func(*config.Config) CommentSender
	archiver         Archiver
	presenter        notifications.Presenter
	signals          signals.Publisher
	logger           *slog.Logger
	now              func() time.Time
	sleepFn          func(ctx context.Context, d time.Duration) error

	mu        sync.Mutex
	state     State
	watermark int
	title     string
	watcher   *feed.Watcher

	ids             identityGenerator
	lastOverlaySend time.Time

	tasks   chan task
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	closed  bool

	monitorMu  sync.Mutex
	downloadMu sync.Mutex
}

type task struct {
	name string
	run  func(ctx context.Context)
}

// ErrClosed is returned by operations on a closed engine.
var ErrClosed = errors.New("engine closed")

// New constructs an Engine in the idle state.
func New(opts Options) *Engine {
	logger := logging.NewComponentLogger(opts.Logger, "engine")
	if opts.ThreadID != "" {
		logger = logger.With(logging.ThreadID(opts.ThreadID))
	}
	e := &Engine{
		threadID:         opts.ThreadID,
		accessor:         opts.Accessor,
		config:           opts.Config,
		newSpeaker:       opts.NewSpeaker,
		newCommentSender: opts.NewCommentSender,
		archiver:         opts.Archiver,
		presenter:        opts.Presenter,
		signals:          opts.Signals,
		logger:           logger,
		now:              opts.Now,
		sleepFn:          opts.Sleep,
		state:            State{StartPosition: PositionNewest},
		tasks:            make(chan task, 256),
	}
	if e.config == nil {
		def := config.Default()
		e.config = func() *config.Config { return &def }
	}
	if e.newSpeaker == nil {
		e.newSpeaker = func(cfg *config.Config) Speaker { return bouyomi.NewConfiguredClient(cfg.Speech) }
	}
	if e.newCommentSender == nil {
		e.newCommentSender = func(cfg *config.Config) CommentSender { return onecomme.NewConfiguredClient(cfg.Overlay) }
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.sleepFn == nil {
		e.sleepFn = sleepContext
	}
	e.ids = identityGenerator{now: e.now, sleep: e.sleepFn}
	if cfg := e.config(); cfg != nil {
		if pos, err := ParseStartPosition(cfg.Speech.StartPosition); err == nil && pos != PositionReply {
			e.state.StartPosition = pos
		}
	}
	return e
}

// Start launches the worker. Calling it again is a no-op.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	if e.started {
		return nil
	}
	e.ctx, e.cancel = context.WithCancel(services.WithThreadID(context.WithoutCancel(ctx), e.threadID))
	e.started = true
	e.wg.Add(1)
	go e.worker()
	return nil
}

// Close stops the watcher, cancels in-flight work, and waits for the worker.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	watcher := e.watcher
	e.watcher = nil
	cancel := e.cancel
	e.mu.Unlock()

	if watcher != nil {
		watcher.Stop()
	}
	if cancel != nil {
		cancel()
	}
	e.wg.Wait()
	return nil
}

// ThreadID returns the session's thread id.
func (e *Engine) ThreadID() string { return e.threadID }

// State returns a snapshot of the session state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Title returns the last observed thread title.
func (e *Engine) Title() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.title
}

// ApplyConfig reacts to a configuration change. Disabling stream support
// forces the overlay off.
func (e *Engine) ApplyConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	before := e.State()
	after, _ := e.apply(transition{kind: streamDisabled, streamEnabled: cfg.Stream.Enabled})
	if before.OverlayEnabled && !after.OverlayEnabled {
		e.logger.Info("overlay disabled because stream support was turned off",
			logging.String(logging.FieldEventType, "overlay_stream_disabled"),
		)
		if ctx := e.runContext(); ctx != nil {
			_ = e.ensureMonitoring(ctx)
		}
	}
}

func (e *Engine) runContext() context.Context {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ctx
}

func (e *Engine) apply(t transition) (State, outcome) {
	e.mu.Lock()
	next, out := reduce(e.state, t)
	e.state = next
	e.mu.Unlock()
	if out.changed {
		e.publish(signals.Signal{Kind: signals.KindStateChanged})
	}
	return next, out
}

func (e *Engine) worker() {
	defer e.wg.Done()
	for {
		select {
		case <-e.ctx.Done():
			return
		case t := <-e.tasks:
			e.runTask(t)
		}
	}
}

func (e *Engine) runTask(t task) {
	defer func() {
		if r := recover(); r != nil {
			logging.ErrorWithContext(e.logger, "engine task panicked", "engine_task_panic",
				logging.String("task", t.name),
				logging.Any("panic", r),
			)
		}
	}()
	t.run(e.ctx)
}

// enqueue schedules fn on the worker without waiting.
func (e *Engine) enqueue(name string, fn func(ctx context.Context)) error {
	e.mu.Lock()
	started, closed := e.started, e.closed
	e.mu.Unlock()
	if closed || !started {
		return ErrClosed
	}
	select {
	case e.tasks <- task{name: name, run: fn}:
		return nil
	case <-e.ctx.Done():
		return ErrClosed
	}
}

// do schedules fn on the worker and waits until it calls done or the caller's
// context ends. fn may keep running after calling done.
func (e *Engine) do(ctx context.Context, name string, fn func(ctx context.Context, done func(error))) error {
	result := make(chan error, 1)
	var once sync.Once
	done := func(err error) { once.Do(func() { result <- err }) }
	err := e.enqueue(name, func(taskCtx context.Context) {
		defer done(nil)
		if reqID, ok := services.RequestIDFromContext(ctx); ok {
			taskCtx = services.WithRequestID(taskCtx, reqID)
		}
		fn(taskCtx, done)
	})
	if err != nil {
		return err
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-e.ctx.Done():
		return ErrClosed
	}
}

func (e *Engine) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	return e.sleepFn(ctx, d)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) publish(sig signals.Signal) {
	if e.signals == nil {
		return
	}
	if sig.ThreadID == "" {
		sig.ThreadID = e.threadID
	}
	e.signals.Publish(sig)
}

func (e *Engine) snapshot() *config.Config {
	if cfg := e.config(); cfg != nil {
		return cfg
	}
	def := config.Default()
	return &def
}

// ensureMonitoring starts or stops the feed watcher to match the state.
func (e *Engine) ensureMonitoring(ctx context.Context) error {
	e.monitorMu.Lock()
	defer e.monitorMu.Unlock()

	e.mu.Lock()
	st := e.state
	running := e.watcher != nil
	e.mu.Unlock()

	want := st.Active() && !st.Closed
	switch {
	case want && !running:
		return e.startWatcher(ctx)
	case !want && running:
		e.stopWatcher()
	}
	return nil
}

func (e *Engine) startWatcher(ctx context.Context) error {
	if e.accessor == nil {
		return services.Wrap(services.ErrFeedUnavailable, "engine", "monitor", "no feed accessor", nil)
	}
	watcher := feed.NewWatcher(e.accessor, e.logger)
	events, err := watcher.Start(ctx)
	if err != nil {
		return err
	}
	if title, titleErr := e.accessor.Title(ctx); titleErr == nil {
		e.mu.Lock()
		e.title = title
		e.mu.Unlock()
	}
	e.mu.Lock()
	e.watcher = watcher
	e.mu.Unlock()
	if !e.goTracked(func(context.Context) { e.pump(watcher, events) }) {
		e.mu.Lock()
		e.watcher = nil
		e.mu.Unlock()
		watcher.Stop()
		return ErrClosed
	}
	e.apply(transition{kind: monitoringChanged, enabled: true})
	return nil
}

// goTracked runs fn in a goroutine Close waits for. It reports false once the
// engine is closed or before it has started.
func (e *Engine) goTracked(fn func(ctx context.Context)) bool {
	e.mu.Lock()
	if e.closed || !e.started {
		e.mu.Unlock()
		return false
	}
	ctx := e.ctx
	e.wg.Add(1)
	e.mu.Unlock()
	go func() {
		defer e.wg.Done()
		fn(ctx)
	}()
	return true
}

func (e *Engine) stopWatcher() {
	e.mu.Lock()
	watcher := e.watcher
	e.watcher = nil
	e.mu.Unlock()
	if watcher == nil {
		return
	}
	watcher.Stop()
	e.apply(transition{kind: monitoringChanged, enabled: false})
	e.logger.Info("monitoring stopped", logging.String(logging.FieldEventType, "monitoring_stopped"))
}

// pump forwards watcher events onto the task queue.
func (e *Engine) pump(watcher *feed.Watcher, events <-chan feed.Event) {
	for ev := range events {
		ev := ev
		var err error
		switch ev.Kind {
		case feed.PostArrived:
			err = e.enqueue("post", func(ctx context.Context) { e.handlePost(ctx, ev.Post) })
		case feed.ThreadClosed:
			err = e.enqueue("thread closed", func(ctx context.Context) { e.handleThreadClosed(ctx, watcher) })
		}
		if err != nil {
			return
		}
	}
}

// newCorrelationID tags log lines for one operation.
func newCorrelationID() string {
	return uuid.NewString()
}
