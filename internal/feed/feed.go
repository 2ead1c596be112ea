package feed

import (
	"context"

	"threadrelay/internal/content"
)

// ClosedMarker is the status text the site shows once a thread stops
// accepting replies.
const ClosedMarker = "このスレはもう書き込みできません"

// Change is one batch of feed mutations observed by an accessor.
type Change struct {
	Inserted []content.Post
	Status   []string
}

// Accessor reads a thread from its source.
type Accessor interface {
	// Locate verifies the thread region is reachable.
	Locate(ctx context.Context) error
	Title(ctx context.Context) (string, error)
	// Posts returns the current backlog in feed order.
	Posts(ctx context.Context) ([]content.Post, error)
	// Subscribe streams changes until ctx is cancelled. The channel is closed
	// when the subscription ends.
	Subscribe(ctx context.Context) (<-chan Change, error)
}

// EventKind distinguishes watcher events.
type EventKind int

const (
	PostArrived EventKind = iota + 1
	ThreadClosed
)

func (k EventKind) String() string {
	switch k {
	case PostArrived:
		return "post_arrived"
	case ThreadClosed:
		return "thread_closed"
	default:
		return "unknown"
	}
}

// Event is emitted by the Watcher.
type Event struct {
	Kind EventKind
	Post content.Post
}
