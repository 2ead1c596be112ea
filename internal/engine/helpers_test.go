package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"threadrelay/internal/archive"
	"threadrelay/internal/config"
	"threadrelay/internal/content"
	"threadrelay/internal/engine"
	"threadrelay/internal/feed"
	"threadrelay/internal/services/onecomme"
	"threadrelay/internal/signals"
)

type fakeAccessor struct {
	mu        sync.Mutex
	title     string
	posts     []content.Post
	changes   chan feed.Change
	locateErr error
}

func newFakeAccessor(posts ...content.Post) *fakeAccessor {
	return &fakeAccessor{title: "テストスレ", posts: posts, changes: make(chan feed.Change, 16)}
}

func (f *fakeAccessor) Locate(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.locateErr
}

func (f *fakeAccessor) setLocateErr(err error) {
	f.mu.Lock()
	f.locateErr = err
	f.mu.Unlock()
}

func (f *fakeAccessor) Title(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.title, nil
}

func (f *fakeAccessor) Posts(context.Context) ([]content.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]content.Post(nil), f.posts...), nil
}

func (f *fakeAccessor) Subscribe(context.Context) (<-chan feed.Change, error) {
	return f.changes, nil
}

// insert appends posts to the backlog and reports them as a change.
func (f *fakeAccessor) insert(posts ...content.Post) {
	f.mu.Lock()
	f.posts = append(f.posts, posts...)
	f.mu.Unlock()
	f.changes <- feed.Change{Inserted: posts}
}

type fakeSpeaker struct {
	mu      sync.Mutex
	calls   []string
	fail    bool
	hold    chan struct{}
	entered chan string
}

// Speak records text. While held, it blocks until released or ctx ends.
func (f *fakeSpeaker) Speak(ctx context.Context, text string) error {
	f.mu.Lock()
	f.calls = append(f.calls, text)
	fail, hold, entered := f.fail, f.hold, f.entered
	f.mu.Unlock()
	if hold != nil {
		select {
		case entered <- text:
		default:
		}
		select {
		case <-hold:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if fail {
		return errors.New("connection refused")
	}
	return nil
}

// holdCalls makes later Speak calls block. entered receives each held text;
// release unblocks current and future calls.
func (f *fakeSpeaker) holdCalls() (entered <-chan string, release func()) {
	hold := make(chan struct{})
	ch := make(chan string, 16)
	f.mu.Lock()
	f.hold, f.entered = hold, ch
	f.mu.Unlock()
	var once sync.Once
	return ch, func() { once.Do(func() { close(hold) }) }
}

func (f *fakeSpeaker) setFail(v bool) {
	f.mu.Lock()
	f.fail = v
	f.mu.Unlock()
}

func (f *fakeSpeaker) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeSender struct {
	mu       sync.Mutex
	comments []onecomme.Comment
	fail     bool
}

func (f *fakeSender) Send(_ context.Context, c onecomme.Comment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.comments = append(f.comments, c)
	if f.fail {
		return errors.New("status 500")
	}
	return nil
}

func (f *fakeSender) setFail(v bool) {
	f.mu.Lock()
	f.fail = v
	f.mu.Unlock()
}

func (f *fakeSender) sent() []onecomme.Comment {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]onecomme.Comment(nil), f.comments...)
}

type fakePresenter struct {
	mu     sync.Mutex
	shows  []string
	alerts []string
}

func (f *fakePresenter) Show(_ context.Context, _, body string) error {
	f.mu.Lock()
	f.shows = append(f.shows, body)
	f.mu.Unlock()
	return nil
}

func (f *fakePresenter) Alert(_ context.Context, _, body string) error {
	f.mu.Lock()
	f.alerts = append(f.alerts, body)
	f.mu.Unlock()
	return nil
}

func (f *fakePresenter) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.shows), len(f.alerts)
}

type fakeArchiver struct {
	mu       sync.Mutex
	requests []archive.Request
	files    map[string]string
}

func (f *fakeArchiver) Request(_ context.Context, req archive.Request) error {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	return nil
}

func (f *fakeArchiver) WriteText(_ context.Context, dest, text string) error {
	f.mu.Lock()
	if f.files == nil {
		f.files = map[string]string{}
	}
	f.files[dest] = text
	f.mu.Unlock()
	return nil
}

func (f *fakeArchiver) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type harness struct {
	engine    *engine.Engine
	accessor  *fakeAccessor
	speaker   *fakeSpeaker
	sender    *fakeSender
	presenter *fakePresenter
	archiver  *fakeArchiver
	hub       *signals.Hub
	cfg       *config.Config
}

func newHarness(t *testing.T, mutate func(*config.Config), posts ...content.Post) *harness {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.ArchiveDir = t.TempDir()
	if mutate != nil {
		mutate(&cfg)
	}
	h := &harness{
		accessor:  newFakeAccessor(posts...),
		speaker:   &fakeSpeaker{},
		sender:    &fakeSender{},
		presenter: &fakePresenter{},
		archiver:  &fakeArchiver{},
		hub:       signals.NewHub(1024),
		cfg:       &cfg,
	}
	h.engine = engine.New(engine.Options{
		ThreadID:         "abc",
		Accessor:         h.accessor,
		Config:           func() *config.Config { return h.cfg },
		NewSpeaker:       func(*config.Config) engine.Speaker { return h.speaker },
		NewCommentSender: func(*config.Config) engine.CommentSender { return h.sender },
		Archiver:         h.archiver,
		Presenter:        h.presenter,
		Signals:          h.hub,
		Sleep:            func(ctx context.Context, _ time.Duration) error { return ctx.Err() },
	})
	if err := h.engine.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = h.engine.Close() })
	return h
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitSignal(t *testing.T, hub *signals.Hub, kind signals.Kind) signals.Signal {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	var since uint64
	for {
		batch, next, err := hub.Fetch(ctx, since, 0, true)
		if err != nil {
			t.Fatalf("waiting for %s signal: %v", kind, err)
		}
		for _, sig := range batch {
			if sig.Kind == kind {
				return sig
			}
		}
		since = next
	}
}

func waitEntered(t *testing.T, entered <-chan string) string {
	t.Helper()
	select {
	case text := <-entered:
		return text
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for a held speech call")
		return ""
	}
}

func textPost(n int, text string) content.Post {
	return content.Post{Number: n, Body: content.Tree{content.Text{Value: text}}}
}
