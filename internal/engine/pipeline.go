package engine

import (
	"context"
	"strings"

	"threadrelay/internal/archive"
	"threadrelay/internal/blocklist"
	"threadrelay/internal/config"
	"threadrelay/internal/content"
	"threadrelay/internal/feed"
	"threadrelay/internal/logging"
	"threadrelay/internal/services"
	"threadrelay/internal/signals"
	"threadrelay/internal/textutil"
	"threadrelay/internal/transform"
)

// SpeechRules builds the speech sink's rule set.
func SpeechRules(cfg config.Speech) transform.RuleSet {
	return transform.RuleSet{
		IgnoreLineBreaks:    cfg.IgnoreLineBreaks,
		RevealSpoilers:      cfg.RevealSpoilers,
		SuppressExclamation: cfg.SuppressExclamation,
		Emoji:               transform.AltTextOnly,
		OmitBareLinks:       true,
	}
}

// OverlayRules builds the overlay sink's rule set.
func OverlayRules(cfg config.Overlay) transform.RuleSet {
	return transform.RuleSet{
		IgnoreLineBreaks:    cfg.IgnoreLineBreaks,
		RevealSpoilers:      cfg.RevealSpoilers,
		SuppressExclamation: cfg.SuppressExclamation,
		Emoji:               transform.PlaceholderRoundTrip,
		OmitBareLinks:       true,
	}
}

// handlePost runs the live pipeline for one post: archive, notices, relays,
// then the user notice.
func (e *Engine) handlePost(ctx context.Context, post content.Post) {
	ctx = services.WithReplyNumber(services.WithRequestID(ctx, newCorrelationID()), post.Number)
	st := e.State()
	if st.Closed || st.ReplayInProgress || !st.Active() {
		return
	}
	e.mu.Lock()
	watermark := e.watermark
	e.mu.Unlock()
	if post.Number <= watermark {
		return
	}

	cfg := e.snapshot()
	logger := logging.WithContext(ctx, e.logger)
	logger.Debug("post arrived", logging.String(logging.FieldEventType, "post_arrived"))

	saved, imageFlag := e.archivePost(ctx, cfg, post, st.ArchiveEnabled)

	if st.SpeechEnabled || st.OverlayEnabled {
		if imageFlag {
			e.relayNotice(ctx, cfg, ImagePostedText)
		}
		if saved > 0 {
			e.relayNotice(ctx, cfg, cfg.Archive.SavedText)
		}
	}

	if e.blocked(cfg, post) {
		logger.Info("post suppressed by blocklist", logging.String(logging.FieldEventType, "post_blocked"))
	} else {
		e.relayPost(ctx, cfg, post)
		if e.State().NotificationEnabled {
			e.notifyPost(ctx, cfg, post, noticeText(cfg, saved, imageFlag))
		}
	}

	_ = e.sleep(ctx, cfg.Speech.PostInterval())
}

func noticeText(cfg *config.Config, saved int, imageFlag bool) string {
	switch {
	case saved > 0:
		return cfg.Archive.SavedText
	case imageFlag:
		return ImagePostedText
	default:
		return ""
	}
}

// relayPost sends the body to speech line by line, then to the overlay.
// Each sink re-checks its flag so a disable mid-post stops delivery.
func (e *Engine) relayPost(ctx context.Context, cfg *config.Config, post content.Post) {
	if e.State().SpeechEnabled {
		for _, line := range transform.Lines(post.Body, SpeechRules(cfg.Speech)) {
			if !e.speakLive(ctx, cfg, line) {
				break
			}
		}
	}
	st := e.State()
	if st.OverlayEnabled && !st.ReplayInProgress {
		text := transform.Transform(post.Body, OverlayRules(cfg.Overlay))
		e.sendPostLive(ctx, cfg, post.Number, text)
	}
}

func (e *Engine) notifyPost(ctx context.Context, cfg *config.Config, post content.Post, prefix string) {
	body := transform.Transform(post.Body, transform.NotificationRules())
	if prefix != "" {
		body = strings.TrimSpace(prefix + "\n" + body)
	}
	if body == "" {
		return
	}
	title := e.Title()
	if title == "" {
		title = AppName
	}
	e.notice(ctx, title, body)
}

// blocked evaluates the blocklist against the plain-text projection.
func (e *Engine) blocked(cfg *config.Config, post content.Post) bool {
	if !cfg.Blocklist.Enabled || len(cfg.Blocklist.Entries) == 0 {
		return false
	}
	entries := make([]blocklist.Entry, 0, len(cfg.Blocklist.Entries))
	for _, entry := range cfg.Blocklist.Entries {
		entries = append(entries, blocklist.Entry{Pattern: entry.Pattern, Mode: blocklist.ParseMode(entry.Mode)})
	}
	filter := blocklist.Filter{Logger: e.logger, FoldWidth: cfg.Blocklist.FoldWidth}
	return filter.IsBlocked(transform.PlainText(post.Body), entries)
}

// archivePost requests downloads for accepted attachments. imageFlag reports
// an attachment that was present but not saved.
func (e *Engine) archivePost(ctx context.Context, cfg *config.Config, post content.Post, enabled bool) (saved int, imageFlag bool) {
	images := post.Images()
	if len(images) == 0 {
		return 0, false
	}
	if !enabled || e.archiver == nil {
		return 0, true
	}
	filter := archive.FilterFromConfig(cfg.Archive)
	dir := archive.Directory(cfg.Paths.ArchiveDir, cfg.Archive.PathTemplate, e.threadID)
	for _, img := range images {
		if !filter.Accepts(img.URL, img.Spoilered) {
			imageFlag = true
			continue
		}
		req := archive.Request{URL: img.URL, ThreadID: e.threadID, ReplyNumber: post.Number, Directory: dir}
		if err := e.archiver.Request(ctx, req); err != nil {
			logging.WarnWithContext(logging.WithContext(ctx, e.logger), "archive request rejected", "archive_request_failed",
				logging.Error(err),
				logging.String("url", img.URL),
				logging.String(logging.FieldErrorHint, "check paths.archive_dir and archive.path_template"),
				logging.String(logging.FieldImpact, "attachment was not archived"),
			)
			imageFlag = true
			continue
		}
		saved++
	}
	return saved, imageFlag
}

// handleThreadClosed announces the close, turns speech and archive off, and
// stops watching.
func (e *Engine) handleThreadClosed(ctx context.Context, watcher *feed.Watcher) {
	st := e.State()
	if st.Closed {
		return
	}
	cfg := e.snapshot()
	if st.SpeechEnabled {
		e.speakLive(ctx, cfg, cfg.Speech.ThreadClosedText)
	}
	if st.OverlayEnabled {
		e.sendSystemLive(ctx, cfg, cfg.Overlay.ThreadClosedText)
	}
	e.apply(transition{kind: threadClosed})

	e.monitorMu.Lock()
	e.mu.Lock()
	current := e.watcher
	e.watcher = nil
	e.mu.Unlock()
	e.monitorMu.Unlock()
	if current != nil {
		current.Stop()
	} else if watcher != nil {
		watcher.Stop()
	}

	e.logger.Info("thread closed; monitoring stopped",
		logging.String(logging.FieldEventType, "thread_closed"),
	)
	e.publish(signals.Signal{Kind: signals.KindMonitoringStopped, Message: "thread closed"})
}

func transformPlain(post content.Post) string {
	return transform.PlainText(post.Body)
}

// keywordMatch reports whether a non-empty keyword occurs in the title or
// body. Width variants match each other.
func keywordMatch(title, body, titleKeyword, bodyKeyword string) bool {
	if kw := strings.TrimSpace(titleKeyword); kw != "" && textutil.ContainsFolded(title, kw) {
		return true
	}
	if kw := strings.TrimSpace(bodyKeyword); kw != "" && textutil.ContainsFolded(body, kw) {
		return true
	}
	return false
}
