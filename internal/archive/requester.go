package archive

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"threadrelay/internal/config"
	"threadrelay/internal/fileutil"
	"threadrelay/internal/logging"
	"threadrelay/internal/services"
	"threadrelay/internal/textutil"
)

// ThreadIDPlaceholder is replaced with the thread id in path templates.
const ThreadIDPlaceholder = "${thread_id}"

// HTTPDoer matches http.Client's Do method.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// Filter decides which attachments are archived.
type Filter struct {
	JPG      bool
	GIF      bool
	PNG      bool
	WebP     bool
	Spoilers bool
}

// FilterFromConfig builds a Filter from the archive section.
func FilterFromConfig(cfg config.Archive) Filter {
	return Filter{
		JPG:      cfg.SaveJPG,
		GIF:      cfg.SaveGIF,
		PNG:      cfg.SavePNG,
		WebP:     cfg.SaveWebP,
		Spoilers: cfg.SaveSpoilerImages,
	}
}

// Accepts reports whether an attachment should be downloaded.
func (f Filter) Accepts(rawURL string, spoilered bool) bool {
	if spoilered && !f.Spoilers {
		return false
	}
	switch Extension(rawURL) {
	case "jpg", "jpeg", "jfif", "pjpeg":
		return f.JPG
	case "gif":
		return f.GIF
	case "png":
		return f.PNG
	case "webp":
		return f.WebP
	default:
		return false
	}
}

// Extension returns the lower-cased extension of the URL with its query removed.
func Extension(rawURL string) string {
	trimmed := rawURL
	if idx := strings.IndexAny(trimmed, "?#"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	idx := strings.LastIndex(trimmed, ".")
	if idx < 0 || strings.Contains(trimmed[idx:], "/") {
		return ""
	}
	return strings.ToLower(trimmed[idx+1:])
}

// FileName returns the decoded basename of the URL path, sanitized for disk.
func FileName(rawURL string) string {
	name := ""
	if parsed, err := url.Parse(rawURL); err == nil {
		name = path.Base(parsed.Path)
		if decoded, err := url.PathUnescape(name); err == nil {
			name = decoded
		}
	} else {
		trimmed := rawURL
		if idx := strings.IndexAny(trimmed, "?#"); idx >= 0 {
			trimmed = trimmed[:idx]
		}
		name = trimmed[strings.LastIndex(trimmed, "/")+1:]
	}
	name = textutil.SanitizeFileName(name)
	if name == "" || name == "." || name == "/" {
		return "file"
	}
	return name
}

// Directory resolves the per-thread archive directory.
func Directory(archiveDir, template, threadID string) string {
	if strings.TrimSpace(threadID) == "" {
		threadID = "unknown_thread"
	}
	rel := strings.ReplaceAll(template, ThreadIDPlaceholder, textutil.SanitizeFileName(threadID))
	return filepath.Join(archiveDir, filepath.FromSlash(rel))
}

// Request describes one attachment download.
type Request struct {
	URL         string
	ThreadID    string
	ReplyNumber int
	Directory   string
}

// Destination returns the file path the request writes to.
func (r Request) Destination() string {
	return filepath.Join(r.Directory, FileName(r.URL))
}

// RequesterOptions configures a Requester.
type RequesterOptions struct {
	Client    HTTPDoer
	Ledger    *Ledger
	Logger    *slog.Logger
	Timeout   time.Duration
	UserAgent string
}

// Requester downloads attachments in the background.
type Requester struct {
	client    HTTPDoer
	ledger    *Ledger
	logger    *slog.Logger
	timeout   time.Duration
	userAgent string
	wg        sync.WaitGroup
}

// NewRequester constructs a Requester.
func NewRequester(opts RequesterOptions) *Requester {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Requester{
		client:    client,
		ledger:    opts.Ledger,
		logger:    logger.With(logging.String(logging.FieldComponent, "archive")),
		timeout:   timeout,
		userAgent: opts.UserAgent,
	}
}

// Request schedules a download and returns immediately.
func (r *Requester) Request(ctx context.Context, req Request) error {
	if strings.TrimSpace(req.URL) == "" {
		return services.Wrap(services.ErrValidation, "archive", "request", "attachment url is empty", nil)
	}
	if strings.TrimSpace(req.Directory) == "" {
		return services.Wrap(services.ErrConfiguration, "archive", "request", "archive directory is empty", nil)
	}
	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer cancel()
		r.download(jobCtx, req)
	}()
	return nil
}

// Wait blocks until every scheduled download has finished.
func (r *Requester) Wait() {
	r.wg.Wait()
}

func (r *Requester) download(ctx context.Context, req Request) {
	dest := req.Destination()
	logger := r.logger.With(
		logging.ThreadID(req.ThreadID),
		logging.ReplyNumber(req.ReplyNumber),
	)
	size, err := r.fetch(ctx, req.URL, dest)
	entry := Entry{
		ThreadID:    req.ThreadID,
		ReplyNumber: req.ReplyNumber,
		URL:         req.URL,
		Path:        dest,
		Status:      StatusSaved,
		SizeBytes:   size,
	}
	if err != nil {
		entry.Status = StatusFailed
		entry.Error = err.Error()
		logging.WarnWithContext(logger, "attachment download failed", "archive_download_failed",
			logging.String("url", req.URL),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check network access and the archive directory permissions"),
			logging.String(logging.FieldImpact, "attachment was not archived"),
		)
	} else {
		logger.Info("attachment archived",
			logging.String(logging.FieldEventType, "archive_saved"),
			logging.String("path", dest),
			logging.Int64("size_bytes", size),
		)
	}
	if r.ledger != nil {
		if recErr := r.ledger.Record(context.WithoutCancel(ctx), entry); recErr != nil {
			logger.Warn("archive ledger write failed",
				logging.String(logging.FieldEventType, "archive_ledger_failed"),
				logging.Error(recErr),
				logging.String(logging.FieldErrorHint, "check the state directory is writable"),
				logging.String(logging.FieldImpact, "history will miss this attachment"),
			)
		}
	}
}

func (r *Requester) fetch(ctx context.Context, rawURL, dest string) (int64, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	if r.userAgent != "" {
		httpReq.Header.Set("User-Agent", r.userAgent)
	}
	resp, err := r.client.Do(httpReq)
	if err != nil {
		return 0, services.Wrap(services.ErrTransient, "archive", "download", "request failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return 0, services.Wrap(services.ErrTransient, "archive", "download", fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}

	size, err := fileutil.WriteAtomic(dest, resp.Body, 0o644)
	if err != nil {
		return 0, fmt.Errorf("save attachment: %w", err)
	}
	return size, nil
}

// WriteText writes text to a file, creating parent directories.
func (r *Requester) WriteText(_ context.Context, dest, text string) error {
	if strings.TrimSpace(dest) == "" {
		return services.Wrap(services.ErrConfiguration, "archive", "write text", "destination is empty", nil)
	}
	return fileutil.WriteFileAtomic(dest, []byte(text), 0o644)
}
