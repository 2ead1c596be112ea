package engine

import (
	"context"
	"strconv"

	"threadrelay/internal/logging"
	"threadrelay/internal/services"
	"threadrelay/internal/signals"
)

// DownloadAll archives every attachment in the backlog regardless of the
// archive flag. It runs beside the worker so live posts keep flowing, and
// returns immediately; completion is reported with a notice and a
// DownloadAllComplete signal. Only one run is allowed at a time.
func (e *Engine) DownloadAll(ctx context.Context) error {
	if e.accessor == nil {
		return services.Wrap(services.ErrNotFound, "engine", "download all", "no thread is open", nil)
	}
	if !e.downloadMu.TryLock() {
		return services.Wrap(services.ErrValidation, "engine", "download all", "a bulk download is already running", nil)
	}
	e.apply(transition{kind: downloadAllChanged, enabled: true})

	reqID, _ := services.RequestIDFromContext(ctx)
	started := e.goTracked(func(run context.Context) {
		defer e.downloadMu.Unlock()
		defer e.apply(transition{kind: downloadAllChanged, enabled: false})
		if reqID != "" {
			run = services.WithRequestID(run, reqID)
		}
		e.downloadAll(run)
	})
	if !started {
		e.apply(transition{kind: downloadAllChanged, enabled: false})
		e.downloadMu.Unlock()
		return ErrClosed
	}
	return nil
}

func (e *Engine) downloadAll(ctx context.Context) {
	logger := logging.WithContext(ctx, e.logger)
	cfg := e.snapshot()
	posts, err := e.accessor.Posts(ctx)
	if err != nil || len(posts) == 0 {
		msg := "レスの検出に失敗しました。"
		if err != nil {
			msg = feedMissingAlert
		}
		logging.WarnWithContext(logger, "bulk download found nothing to save", "download_all_empty",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the thread is still reachable"),
			logging.String(logging.FieldImpact, "no attachments were archived"),
		)
		e.alert(ctx, msg)
		e.publish(signals.Signal{Kind: signals.KindDownloadAllComplete})
		return
	}

	total := 0
	for _, post := range posts {
		if ctx.Err() != nil {
			return
		}
		saved, _ := e.archivePost(services.WithReplyNumber(ctx, post.Number), cfg, post, true)
		total += saved
		if saved > 0 {
			if err := e.sleep(ctx, cfg.Archive.DownloadAllInterval()); err != nil {
				return
			}
		}
	}
	logger.Info("bulk download complete",
		logging.String(logging.FieldEventType, "download_all_complete"),
		logging.Int("saved", total),
	)
	e.notice(ctx, AppName, DownloadAllCompleteText+strconv.Itoa(total))
	e.publish(signals.Signal{Kind: signals.KindDownloadAllComplete, Count: total})
}
