package mebuki

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"threadrelay/internal/content"
	"threadrelay/internal/feed"
	"threadrelay/internal/logging"
	"threadrelay/internal/services"
)

const maxPageBytes = 8 << 20

var threadIDPattern = regexp.MustCompile(`app/t/([^/?#]+)`)

// ThreadID extracts the thread id from a thread URL.
func ThreadID(rawURL string) (string, bool) {
	match := threadIDPattern.FindStringSubmatch(rawURL)
	if len(match) < 2 || match[1] == "" {
		return "", false
	}
	return match[1], true
}

// HTTPDoer matches http.Client's Do method.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// Options configures an Accessor.
type Options struct {
	URL          string
	Client       HTTPDoer
	PollInterval time.Duration
	Timeout      time.Duration
	UserAgent    string
	Logger       *slog.Logger
}

// Accessor polls a thread page and reports differences between polls.
type Accessor struct {
	url          string
	threadID     string
	client       HTTPDoer
	pollInterval time.Duration
	userAgent    string
	logger       *slog.Logger

	mu   sync.Mutex
	last *Page
}

var _ feed.Accessor = (*Accessor)(nil)

// New validates the thread URL and constructs an Accessor.
func New(opts Options) (*Accessor, error) {
	parsed, err := url.Parse(strings.TrimSpace(opts.URL))
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, services.Wrap(services.ErrValidation, "mebuki", "open", fmt.Sprintf("invalid thread url %q", opts.URL), err)
	}
	threadID, ok := ThreadID(parsed.String())
	if !ok {
		return nil, services.Wrap(services.ErrValidation, "mebuki", "open", fmt.Sprintf("url %q is not a thread page", opts.URL), nil)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	interval := opts.PollInterval
	if interval <= 0 {
		interval = 3 * time.Second
	}
	return &Accessor{
		url:          parsed.String(),
		threadID:     threadID,
		client:       client,
		pollInterval: interval,
		userAgent:    opts.UserAgent,
		logger: logging.NewComponentLogger(opts.Logger, "mebuki").With(
			logging.ThreadID(threadID),
		),
	}, nil
}

// URL returns the normalized thread URL.
func (a *Accessor) URL() string { return a.url }

// ThreadID returns the id parsed from the URL.
func (a *Accessor) ThreadID() string { return a.threadID }

// Locate fetches the page and checks the message region exists.
func (a *Accessor) Locate(ctx context.Context) error {
	page, err := a.fetch(ctx)
	if err != nil {
		return err
	}
	if !page.Found {
		return services.Wrap(services.ErrFeedUnavailable, "mebuki", "locate", "thread message region missing", nil)
	}
	return nil
}

// Title returns the thread title, fetching the page when nothing is cached.
func (a *Accessor) Title(ctx context.Context) (string, error) {
	a.mu.Lock()
	last := a.last
	a.mu.Unlock()
	if last == nil {
		page, err := a.fetch(ctx)
		if err != nil {
			return "", err
		}
		last = page
	}
	return last.Title, nil
}

// Posts fetches the page and returns its posts in feed order.
func (a *Accessor) Posts(ctx context.Context) ([]content.Post, error) {
	page, err := a.fetch(ctx)
	if err != nil {
		return nil, err
	}
	return page.Posts, nil
}

// Subscribe polls the page until ctx is cancelled. Each subscription keeps
// its own record of what it has reported, starting empty, so the first
// successful poll reports every post and status on the page. Callers filter
// posts against the baseline they read. The shared page cache is not
// consulted.
func (a *Accessor) Subscribe(ctx context.Context) (<-chan feed.Change, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make(chan feed.Change)
	go func() {
		defer close(out)
		known := make(map[int]struct{})
		statuses := make(map[string]struct{})

		ticker := time.NewTicker(a.pollInterval)
		defer ticker.Stop()
		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			page, err := a.fetch(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				failures++
				if failures == 1 || failures%20 == 0 {
					logging.WarnWithContext(a.logger, "thread poll failed", "feed_poll_failed",
						logging.Error(err),
						logging.Int("consecutive_failures", failures),
						logging.String(logging.FieldErrorHint, "check network access to the thread site"),
						logging.String(logging.FieldImpact, "new posts are delayed until polling recovers"),
					)
				}
				continue
			}
			failures = 0

			var change feed.Change
			for _, post := range page.Posts {
				if _, ok := known[post.Number]; ok {
					continue
				}
				known[post.Number] = struct{}{}
				change.Inserted = append(change.Inserted, post)
			}
			for _, status := range page.Status {
				if _, ok := statuses[status]; ok {
					continue
				}
				statuses[status] = struct{}{}
				change.Status = append(change.Status, status)
			}
			if len(change.Inserted) == 0 && len(change.Status) == 0 {
				continue
			}
			select {
			case out <- change:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (a *Accessor) fetch(ctx context.Context) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.url, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrFeedUnavailable, "mebuki", "fetch", "build request", err)
	}
	req.Header.Set("Accept", "text/html")
	if a.userAgent != "" {
		req.Header.Set("User-Agent", a.userAgent)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrFeedUnavailable, "mebuki", "fetch", "request failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, services.Wrap(services.ErrFeedUnavailable, "mebuki", "fetch", "thread not found", nil)
	}
	if resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, services.Wrap(services.ErrFeedUnavailable, "mebuki", "fetch", fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}
	page, err := Parse(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, services.Wrap(services.ErrFeedUnavailable, "mebuki", "fetch", "parse page", err)
	}
	a.mu.Lock()
	a.last = page
	a.mu.Unlock()
	return page, nil
}
