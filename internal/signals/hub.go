// Package signals buffers the outbound events a session emits (monitoring
// stopped, bulk download finished, state changes, alerts) so control clients
// can follow them with sequence-numbered, optionally blocking fetches.
package signals

import (
	"context"
	"sync"
	"time"
)

// Kind names an outbound signal.
type Kind string

const (
	KindMonitoringStopped   Kind = "monitoring_stopped"
	KindDownloadAllComplete Kind = "download_all_complete"
	KindStateChanged        Kind = "state_changed"
	KindThreadOpened        Kind = "thread_opened"
	KindAlert               Kind = "alert"
	KindNotice              Kind = "notice"
)

// Signal is one published event.
type Signal struct {
	Sequence  uint64    `json:"seq"`
	Timestamp time.Time `json:"ts"`
	Kind      Kind      `json:"kind"`
	ThreadID  string    `json:"thread_id,omitempty"`
	Message   string    `json:"message,omitempty"`
	Count     int       `json:"count,omitempty"`
}

// Publisher accepts signals. *Hub implements it.
type Publisher interface {
	Publish(Signal)
}

// Hub stores recent signals and wakes waiters when new signals arrive.
type Hub struct {
	mu       sync.Mutex
	cond     *sync.Cond
	capacity int
	buffer   []Signal
	nextSeq  uint64
}

// NewHub constructs a bounded in-memory signal buffer.
func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = 256
	}
	h := &Hub{capacity: capacity}
	h.cond = sync.NewCond(&h.mu)
	return h
}

// Publish appends a signal, assigning its sequence number.
func (h *Hub) Publish(sig Signal) {
	if h == nil {
		return
	}
	h.mu.Lock()
	h.nextSeq++
	sig.Sequence = h.nextSeq
	if sig.Timestamp.IsZero() {
		sig.Timestamp = time.Now().UTC()
	}
	if len(h.buffer) == h.capacity {
		copy(h.buffer, h.buffer[1:])
		h.buffer = h.buffer[:h.capacity-1]
	}
	h.buffer = append(h.buffer, sig)
	h.cond.Broadcast()
	h.mu.Unlock()
}

// Fetch returns signals with sequence greater than since. When wait is true,
// Fetch blocks until at least one signal is available or the context ends.
func (h *Hub) Fetch(ctx context.Context, since uint64, limit int, wait bool) ([]Signal, uint64, error) {
	if h == nil {
		return nil, since, nil
	}
	if limit <= 0 || limit > h.capacity {
		limit = h.capacity
	}

	cancelWait := make(chan struct{})
	if wait && ctx != nil && ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				h.mu.Lock()
				h.cond.Broadcast()
				h.mu.Unlock()
			case <-cancelWait:
			}
		}()
	}
	defer close(cancelWait)

	h.mu.Lock()
	defer h.mu.Unlock()

	for {
		out, next := h.snapshotLocked(since, limit)
		if len(out) > 0 || !wait {
			return out, next, nil
		}
		if err := contextError(ctx); err != nil {
			return nil, next, err
		}
		h.cond.Wait()
		if err := contextError(ctx); err != nil {
			return nil, h.nextSeq, err
		}
	}
}

// Tail returns the most recent limit signals without blocking.
func (h *Hub) Tail(limit int) ([]Signal, uint64) {
	if h == nil {
		return nil, 0
	}
	if limit <= 0 || limit > h.capacity {
		limit = h.capacity
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	start := len(h.buffer) - limit
	if start < 0 {
		start = 0
	}
	out := make([]Signal, len(h.buffer)-start)
	copy(out, h.buffer[start:])
	return out, h.nextSeq
}

func (h *Hub) snapshotLocked(since uint64, limit int) ([]Signal, uint64) {
	startIdx := len(h.buffer)
	for i, sig := range h.buffer {
		if sig.Sequence > since {
			startIdx = i
			break
		}
	}
	end := startIdx + limit
	if end > len(h.buffer) {
		end = len(h.buffer)
	}
	if startIdx >= end {
		return nil, h.nextSeq
	}
	out := make([]Signal, end-startIdx)
	copy(out, h.buffer[startIdx:end])
	return out, out[len(out)-1].Sequence
}

func contextError(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	return ctx.Err()
}
