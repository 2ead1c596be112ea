package engine

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// SystemIDPrefix prefixes overlay message ids for engine-generated messages.
const SystemIDPrefix = "mebuki"

// identityGenerator produces {prefix}_{YYYYMMDDhhmmssSSS} ids. Two calls in
// the same millisecond never return the same id; the second waits 1ms.
type identityGenerator struct {
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	mu   sync.Mutex
	last string
}

func (g *identityGenerator) next(ctx context.Context, prefix string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for {
		id := systemMessageID(prefix, g.now())
		if id != g.last {
			g.last = id
			return id, nil
		}
		if err := g.sleep(ctx, time.Millisecond); err != nil {
			return "", err
		}
	}
}

func systemMessageID(prefix string, t time.Time) string {
	return fmt.Sprintf("%s_%s%03d", prefix, t.Format("20060102150405"), t.Nanosecond()/int(time.Millisecond))
}

// PostMessageID is the overlay id for a thread post.
func PostMessageID(threadID string, replyNumber int) string {
	if threadID == "" {
		threadID = "unknown_thread"
	}
	return threadID + "_" + strconv.Itoa(replyNumber)
}
