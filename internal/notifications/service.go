package notifications

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"threadrelay/internal/config"
	"threadrelay/internal/logging"
)

const userAgent = "threadrelay/0.1.0"

// Presenter surfaces user-visible notices. Delivery is best-effort; callers
// log returned errors and carry on.
type Presenter interface {
	// Show presents a new-post or status notice.
	Show(ctx context.Context, title, body string) error
	// Alert presents a failure that needs the operator's attention.
	Alert(ctx context.Context, title, body string) error
}

// NewPresenter builds a presenter backed by ntfy when a topic is configured.
// Without a topic, notices are written to the log only.
func NewPresenter(cfg *config.Config, logger *slog.Logger) Presenter {
	logger = logging.NewComponentLogger(logger, "notifications")
	if cfg == nil || strings.TrimSpace(cfg.Notifications.NtfyTopic) == "" {
		return logPresenter{logger: logger}
	}
	return &ntfyPresenter{
		endpoint: strings.TrimSpace(cfg.Notifications.NtfyTopic),
		client:   &http.Client{Timeout: cfg.Notifications.Timeout()},
		logger:   logger,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyPresenter struct {
	endpoint string
	client   *http.Client
	logger   *slog.Logger
}

func (n *ntfyPresenter) Show(ctx context.Context, title, body string) error {
	return n.send(ctx, payload{
		title:   strings.TrimSpace(title),
		message: strings.TrimSpace(body),
		tags:    []string{"threadrelay", "post"},
	})
}

func (n *ntfyPresenter) Alert(ctx context.Context, title, body string) error {
	return n.send(ctx, payload{
		title:    strings.TrimSpace(title),
		message:  strings.TrimSpace(body),
		tags:     []string{"threadrelay", "error", "alert"},
		priority: "high",
	})
}

func (n *ntfyPresenter) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil || data.message == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		// ntfy decodes RFC 2047 encoded titles.
		req.Header.Set("Title", mime.BEncoding.Encode("utf-8", data.title))
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	n.logger.Debug("notice delivered", logging.String("title", data.title))
	return nil
}

type logPresenter struct {
	logger *slog.Logger
}

func (p logPresenter) Show(_ context.Context, title, body string) error {
	p.logger.Info("notice", logging.String("title", title), logging.String("body", body))
	return nil
}

func (p logPresenter) Alert(_ context.Context, title, body string) error {
	p.logger.Warn("alert",
		logging.String("title", title),
		logging.Alert(body),
		logging.String(logging.FieldEventType, "user_alert"),
	)
	return nil
}
