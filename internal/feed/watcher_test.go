package feed_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"threadrelay/internal/content"
	"threadrelay/internal/feed"
	"threadrelay/internal/services"
)

type fakeAccessor struct {
	locateErr error
	posts     []content.Post
	changes   chan feed.Change
}

func (f *fakeAccessor) Locate(context.Context) error { return f.locateErr }

func (f *fakeAccessor) Title(context.Context) (string, error) { return "thread", nil }

func (f *fakeAccessor) Posts(context.Context) ([]content.Post, error) { return f.posts, nil }

func (f *fakeAccessor) Subscribe(context.Context) (<-chan feed.Change, error) { return f.changes, nil }

func post(n int) content.Post {
	return content.Post{Number: n, Body: content.Tree{content.Text{Value: "x"}}}
}

func next(t *testing.T, events <-chan feed.Event) (feed.Event, bool) {
	t.Helper()
	select {
	case ev, ok := <-events:
		return ev, ok
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return feed.Event{}, false
}

func TestWatcherStartFailsWhenFeedMissing(t *testing.T) {
	w := feed.NewWatcher(&fakeAccessor{locateErr: errors.New("no region")}, nil)
	if _, err := w.Start(context.Background()); !errors.Is(err, services.ErrFeedUnavailable) {
		t.Fatalf("expected ErrFeedUnavailable, got %v", err)
	}
	w.Stop()
}

func TestWatcherEmitsSortedUniqueInsertions(t *testing.T) {
	acc := &fakeAccessor{posts: []content.Post{post(1), post(2)}, changes: make(chan feed.Change, 4)}
	w := feed.NewWatcher(acc, nil)
	events, err := w.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	acc.changes <- feed.Change{Inserted: []content.Post{post(5), post(2), post(3), post(4)}}
	acc.changes <- feed.Change{Inserted: []content.Post{post(4), post(6)}}

	var got []int
	for len(got) < 4 {
		ev, ok := next(t, events)
		if !ok {
			t.Fatal("channel closed early")
		}
		if ev.Kind != feed.PostArrived {
			t.Fatalf("unexpected event kind %v", ev.Kind)
		}
		got = append(got, ev.Post.Number)
	}
	want := []int{3, 4, 5, 6}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestWatcherStopsAfterThreadClosed(t *testing.T) {
	acc := &fakeAccessor{changes: make(chan feed.Change, 4)}
	w := feed.NewWatcher(acc, nil)
	events, err := w.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	acc.changes <- feed.Change{Status: []string{"お知らせ"}}
	acc.changes <- feed.Change{Status: []string{"このスレはもう書き込みできません。"}}
	acc.changes <- feed.Change{Inserted: []content.Post{post(9)}}

	ev, ok := next(t, events)
	if !ok || ev.Kind != feed.ThreadClosed {
		t.Fatalf("expected ThreadClosed, got %+v ok=%v", ev, ok)
	}
	if _, ok := next(t, events); ok {
		t.Fatal("expected channel closed after ThreadClosed")
	}
	select {
	case <-w.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
	w.Stop()
}

func TestWatcherStopIsIdempotent(t *testing.T) {
	acc := &fakeAccessor{changes: make(chan feed.Change)}
	w := feed.NewWatcher(acc, nil)
	events, err := w.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	w.Stop()
	w.Stop()
	if _, ok := <-events; ok {
		t.Fatal("expected closed channel")
	}
	if _, err := w.Start(context.Background()); err == nil {
		t.Fatal("expected restart to be rejected")
	}
}
