package engine

import (
	"context"
	"strings"

	"threadrelay/internal/config"
	"threadrelay/internal/logging"
	"threadrelay/internal/services"
	"threadrelay/internal/services/onecomme"
	"threadrelay/internal/signals"
)

const (
	// AppName titles notices that are not about a specific thread.
	AppName = "threadrelay"
	// ImagePostedText announces an attachment that was not archived.
	ImagePostedText = "(画像が投稿されました)"
	// DownloadAllCompleteText prefixes the saved count after a bulk download.
	DownloadAllCompleteText = "スレ内の画像保存が完了しました。保存件数 = "

	alertTitle         = AppName + " - エラー"
	speechFailedAlert  = "棒読みちゃんとの連携に失敗しました。"
	overlayFailedAlert = "わんコメとの連携に失敗しました。"
	feedMissingAlert   = "スレッドが見つかりません。"
)

func failureAlert(sink Sink) string {
	if sink == SinkOverlay {
		return overlayFailedAlert
	}
	return speechFailedAlert
}

// speakLive relays text while speech is enabled. It returns false when speech
// is off or the call failed; a failure disables speech.
func (e *Engine) speakLive(ctx context.Context, cfg *config.Config, text string) bool {
	if strings.TrimSpace(text) == "" {
		return true
	}
	if !e.State().SpeechEnabled {
		return false
	}
	if err := e.newSpeaker(cfg).Speak(ctx, text); err != nil {
		if ctx.Err() == nil {
			e.relayFailure(ctx, SinkSpeech, err)
		}
		return false
	}
	return true
}

// sendSystemLive relays an engine-generated overlay message.
func (e *Engine) sendSystemLive(ctx context.Context, cfg *config.Config, text string) bool {
	if strings.TrimSpace(text) == "" {
		return true
	}
	if !e.State().OverlayEnabled {
		return false
	}
	if err := e.sendSystem(ctx, cfg, text); err != nil {
		if ctx.Err() == nil {
			e.relayFailure(ctx, SinkOverlay, err)
		}
		return false
	}
	return true
}

// sendSystem sends a system message without consulting the overlay flag.
func (e *Engine) sendSystem(ctx context.Context, cfg *config.Config, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	id, err := e.ids.next(ctx, SystemIDPrefix)
	if err != nil {
		return err
	}
	return e.sendComment(ctx, cfg, onecomme.Comment{
		ID:           id,
		UserID:       cfg.Overlay.SystemUserID,
		ProfileImage: cfg.Overlay.ProfileImage,
		Name:         cfg.Overlay.SystemName,
		Text:         text,
	})
}

// sendPostLive relays a post body as the configured overlay user.
func (e *Engine) sendPostLive(ctx context.Context, cfg *config.Config, replyNumber int, text string) bool {
	if strings.TrimSpace(text) == "" {
		return true
	}
	if !e.State().OverlayEnabled {
		return false
	}
	err := e.sendComment(ctx, cfg, onecomme.Comment{
		ID:           PostMessageID(e.threadID, replyNumber),
		UserID:       cfg.Overlay.UserID,
		ProfileImage: cfg.Overlay.ProfileImage,
		Name:         cfg.Overlay.Name,
		Text:         text,
	})
	if err != nil {
		if ctx.Err() == nil {
			e.relayFailure(ctx, SinkOverlay, err)
		}
		return false
	}
	return true
}

// sendComment keeps overlay.send_interval between consecutive sends.
func (e *Engine) sendComment(ctx context.Context, cfg *config.Config, comment onecomme.Comment) error {
	e.mu.Lock()
	last := e.lastOverlaySend
	e.mu.Unlock()
	if !last.IsZero() {
		if wait := cfg.Overlay.SendInterval() - e.now().Sub(last); wait > 0 {
			if err := e.sleep(ctx, wait); err != nil {
				return err
			}
		}
	}
	err := e.newCommentSender(cfg).Send(ctx, comment)
	e.mu.Lock()
	e.lastOverlaySend = e.now()
	e.mu.Unlock()
	return err
}

// relayNotice sends text through every active relay.
func (e *Engine) relayNotice(ctx context.Context, cfg *config.Config, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	st := e.State()
	if st.SpeechEnabled {
		e.speakLive(ctx, cfg, text)
	}
	if st.OverlayEnabled {
		e.sendSystemLive(ctx, cfg, text)
	}
}

// relayFailure disables the failing capability. Only the failure that
// actually disabled it raises an alert.
func (e *Engine) relayFailure(ctx context.Context, sink Sink, err error) {
	_, out := e.apply(transition{kind: relayFailed, sink: sink})
	logger := logging.WithContext(ctx, e.logger).With(logging.Sink(string(sink)))
	if !out.alert {
		logger.Debug("relay failure after capability was disabled", logging.Error(err))
		return
	}
	logging.WarnWithContext(logger, "relay failed; capability disabled", "relay_failed",
		logging.Error(err),
		logging.Alert("relay_disabled"),
		logging.String(logging.FieldErrorHint, "check that the relay application is running and the port or service id is correct"),
		logging.String(logging.FieldImpact, string(sink)+" relay stays off until re-enabled"),
	)
	e.alert(ctx, failureAlert(sink))
	_ = e.ensureMonitoring(ctx)
}

// alert shows a failure notice and publishes it as a signal.
func (e *Engine) alert(ctx context.Context, body string) {
	if e.presenter != nil {
		if err := e.presenter.Alert(context.WithoutCancel(ctx), alertTitle, body); err != nil {
			e.logger.Warn("alert delivery failed",
				logging.String(logging.FieldEventType, "alert_delivery_failed"),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
				logging.String(logging.FieldImpact, "alert only recorded in logs and events"),
			)
		}
	}
	e.publish(signals.Signal{Kind: signals.KindAlert, Message: body})
}

// notice shows an informational notice and publishes it as a signal.
func (e *Engine) notice(ctx context.Context, title, body string) {
	if e.presenter != nil {
		if err := e.presenter.Show(context.WithoutCancel(ctx), title, body); err != nil {
			e.logger.Warn("notice delivery failed",
				logging.String(logging.FieldEventType, "notice_delivery_failed"),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
				logging.String(logging.FieldImpact, "notice only recorded in logs and events"),
			)
		}
	}
	e.publish(signals.Signal{Kind: signals.KindNotice, Message: body})
}

func relayError(sink Sink, op string, err error) error {
	return services.Wrap(services.ErrRelayFailed, "engine", op, string(sink)+" relay failed", err)
}
