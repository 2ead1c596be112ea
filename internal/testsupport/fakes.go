package testsupport

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"

	"threadrelay/internal/config"
	"threadrelay/internal/content"
	"threadrelay/internal/feed"
)

// StubAccessor is a feed.Accessor with a fixed title and post list whose
// subscription stays open until the context ends.
type StubAccessor struct {
	TitleText string
	PostList  []content.Post

	live *atomic.Int32
}

func (s *StubAccessor) Locate(context.Context) error { return nil }

func (s *StubAccessor) Title(context.Context) (string, error) { return s.TitleText, nil }

func (s *StubAccessor) Posts(context.Context) ([]content.Post, error) { return s.PostList, nil }

func (s *StubAccessor) Subscribe(ctx context.Context) (<-chan feed.Change, error) {
	ch := make(chan feed.Change)
	if s.live != nil {
		s.live.Add(1)
	}
	go func() {
		<-ctx.Done()
		if s.live != nil {
			s.live.Add(-1)
		}
		close(ch)
	}()
	return ch, nil
}

// StubAccessorFactory opens a StubAccessor titled by title(threadID) and uses
// the last URL path segment as the thread id.
func StubAccessorFactory(title func(threadID string) string) func(string, *config.Config, *slog.Logger) (feed.Accessor, string, error) {
	return func(threadURL string, _ *config.Config, _ *slog.Logger) (feed.Accessor, string, error) {
		id := filepath.Base(threadURL)
		return &StubAccessor{TitleText: title(id)}, id, nil
	}
}

// AccessorTracker hands out StubAccessors and counts their open subscriptions,
// which is how many sessions are still watching a thread.
type AccessorTracker struct {
	live atomic.Int32
}

func (t *AccessorTracker) Factory(title func(threadID string) string) func(string, *config.Config, *slog.Logger) (feed.Accessor, string, error) {
	return func(threadURL string, _ *config.Config, _ *slog.Logger) (feed.Accessor, string, error) {
		id := filepath.Base(threadURL)
		return &StubAccessor{TitleText: title(id), live: &t.live}, id, nil
	}
}

// Live returns the number of subscriptions not yet cancelled.
func (t *AccessorTracker) Live() int { return int(t.live.Load()) }

// RecordingSpeaker records every text passed to Speak.
type RecordingSpeaker struct {
	mu    sync.Mutex
	texts []string
}

func (r *RecordingSpeaker) Speak(_ context.Context, text string) error {
	r.mu.Lock()
	r.texts = append(r.texts, text)
	r.mu.Unlock()
	return nil
}

// Count returns the number of Speak calls.
func (r *RecordingSpeaker) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.texts)
}

// Texts returns a copy of the spoken texts.
func (r *RecordingSpeaker) Texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.texts...)
}
