package feed

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"threadrelay/internal/logging"
	"threadrelay/internal/services"
)

// Watcher turns accessor changes into ordered post and close events.
// A Watcher is started at most once.
type Watcher struct {
	accessor Accessor
	logger   *slog.Logger

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewWatcher constructs a watcher over accessor.
func NewWatcher(accessor Accessor, logger *slog.Logger) *Watcher {
	return &Watcher{
		accessor: accessor,
		logger:   logging.NewComponentLogger(logger, "feed"),
	}
}

// Start locates the feed, records the current posts as the baseline, and
// begins emitting events for later insertions.
func (w *Watcher) Start(ctx context.Context) (<-chan Event, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil, services.Wrap(services.ErrValidation, "feed", "start", "watcher already started", nil)
	}
	if w.accessor == nil {
		return nil, services.Wrap(services.ErrFeedUnavailable, "feed", "start", "no accessor", nil)
	}
	if err := w.accessor.Locate(ctx); err != nil {
		return nil, services.Wrap(services.ErrFeedUnavailable, "feed", "locate", "thread region not found", err)
	}
	baseline, err := w.accessor.Posts(ctx)
	if err != nil {
		return nil, services.Wrap(services.ErrFeedUnavailable, "feed", "baseline", "read posts", err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	changes, err := w.accessor.Subscribe(runCtx)
	if err != nil {
		cancel()
		return nil, services.Wrap(services.ErrFeedUnavailable, "feed", "subscribe", "watch thread", err)
	}

	seen := make(map[int]struct{}, len(baseline))
	for _, post := range baseline {
		seen[post.Number] = struct{}{}
	}

	out := make(chan Event)
	w.started = true
	w.cancel = cancel
	w.done = make(chan struct{})
	go w.run(runCtx, changes, seen, out)

	w.logger.Info("feed watcher started",
		logging.String(logging.FieldEventType, "feed_watch_started"),
		logging.Int("baseline_posts", len(baseline)),
	)
	return out, nil
}

func (w *Watcher) run(ctx context.Context, changes <-chan Change, seen map[int]struct{}, out chan<- Event) {
	defer close(w.done)
	defer close(out)
	defer w.cancel()

	emit := func(ev Event) bool {
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-changes:
			if !ok {
				return
			}
			posts := append(change.Inserted[:0:0], change.Inserted...)
			sort.SliceStable(posts, func(i, j int) bool { return posts[i].Number < posts[j].Number })
			for _, post := range posts {
				if _, dup := seen[post.Number]; dup {
					continue
				}
				seen[post.Number] = struct{}{}
				if !emit(Event{Kind: PostArrived, Post: post}) {
					return
				}
			}
			for _, status := range change.Status {
				if !strings.Contains(status, ClosedMarker) {
					continue
				}
				w.logger.Info("thread closed",
					logging.String(logging.FieldEventType, "feed_thread_closed"),
				)
				emit(Event{Kind: ThreadClosed})
				return
			}
		}
	}
}

// Stop ends the watcher and waits for the event channel to close. It is safe
// to call more than once.
func (w *Watcher) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	done := w.done
	w.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Done is closed once the watcher has stopped emitting events.
func (w *Watcher) Done() <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return w.done
}
