package engine

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"threadrelay/internal/config"
	"threadrelay/internal/logging"
	"threadrelay/internal/services"
)

// SetNotification toggles new-post notices.
func (e *Engine) SetNotification(ctx context.Context, on bool) error {
	if _, out := e.apply(transition{kind: setNotification, enabled: on}); out.err != nil {
		return out.err
	}
	if err := e.ensureMonitoring(e.taskContext(ctx)); err != nil {
		e.apply(transition{kind: setNotification, enabled: false})
		e.alert(ctx, feedMissingAlert)
		return err
	}
	return nil
}

// SetSpeech enables or disables the speech relay. Enabling speaks the start
// text first and only turns speech on when that succeeds; a start position
// other than newest then replays the backlog. SetSpeech returns once the
// start text has been handled; replay continues on the worker.
func (e *Engine) SetSpeech(ctx context.Context, on bool, pos StartPosition, reply int) error {
	if !on {
		return e.disableSpeech(ctx)
	}
	st := e.State()
	if st.SpeechEnabled {
		return nil
	}
	if st.Closed {
		return rejected("set speech", "thread is closed").err
	}
	if _, _, err := resolveStart(pos, reply); err != nil {
		return err
	}
	epoch := st.speechEpoch
	return e.do(ctx, "enable speech", func(ctx context.Context, done func(error)) {
		if cur := e.State(); cur.SpeechEnabled || cur.speechEpoch != epoch {
			return
		}
		cfg := e.snapshot()
		logger := logging.WithContext(ctx, e.logger)
		if err := e.newSpeaker(cfg).Speak(ctx, cfg.Speech.StartText); err != nil {
			logging.WarnWithContext(logger, "speech start announcement failed", "speech_start_failed",
				logging.Error(err),
				logging.Sink(string(SinkSpeech)),
				logging.String(logging.FieldErrorHint, "start Bouyomi-chan and check speech.port"),
				logging.String(logging.FieldImpact, "speech relay stays off"),
			)
			if ctx.Err() == nil {
				e.alert(ctx, speechFailedAlert)
			}
			done(relayError(SinkSpeech, "enable speech", err))
			return
		}
		next, out := e.apply(transition{kind: setSpeech, enabled: true, position: pos, replyNumber: reply, epoch: epoch})
		if out.superseded {
			logger.Info("speech disabled during start announcement", logging.String(logging.FieldEventType, "speech_enable_superseded"))
			e.speakEndText(ctx)
			done(nil)
			return
		}
		if out.err != nil {
			done(out.err)
			return
		}
		if err := e.ensureMonitoring(ctx); err != nil {
			e.apply(transition{kind: setSpeech, enabled: false})
			e.alert(ctx, feedMissingAlert)
			done(err)
			return
		}
		e.saveThreadID(ctx, cfg)
		logger.Info("speech relay enabled",
			logging.String(logging.FieldEventType, "speech_enabled"),
			logging.String("start_position", string(next.StartPosition)),
			logging.Int("start_reply_number", next.StartReplyNumber),
		)
		if next.StartPosition == PositionNewest {
			done(nil)
			return
		}
		e.apply(transition{kind: replayBegin})
		done(nil)
		e.replay(ctx, cfg, next)
	})
}

func (e *Engine) disableSpeech(ctx context.Context) error {
	before := e.State()
	e.apply(transition{kind: setSpeech, enabled: false})
	_ = e.ensureMonitoring(e.taskContext(ctx))
	if !before.SpeechEnabled {
		return nil
	}
	return e.enqueue("speech end", e.speakEndText)
}

func (e *Engine) speakEndText(ctx context.Context) {
	cfg := e.snapshot()
	if err := e.newSpeaker(cfg).Speak(ctx, cfg.Speech.EndText); err != nil && ctx.Err() == nil {
		logging.WarnWithContext(e.logger, "speech end announcement failed", "speech_end_failed",
			logging.Error(err),
			logging.Sink(string(SinkSpeech)),
			logging.String(logging.FieldImpact, "speech relay already disabled"),
		)
		e.alert(ctx, speechFailedAlert)
	}
}

// SetOverlay enables or disables the overlay relay. Stream support must be
// on to enable it.
func (e *Engine) SetOverlay(ctx context.Context, on bool) error {
	if !on {
		return e.disableOverlay(ctx)
	}
	st := e.State()
	if st.OverlayEnabled {
		return nil
	}
	if st.Closed {
		return rejected("set overlay", "thread is closed").err
	}
	if !e.snapshot().Stream.Enabled {
		return rejected("set overlay", "stream support is disabled").err
	}
	epoch := st.overlayEpoch
	return e.do(ctx, "enable overlay", func(ctx context.Context, done func(error)) {
		if cur := e.State(); cur.OverlayEnabled || cur.overlayEpoch != epoch {
			return
		}
		cfg := e.snapshot()
		logger := logging.WithContext(ctx, e.logger)
		if err := e.sendSystem(ctx, cfg, cfg.Overlay.StartText); err != nil {
			logging.WarnWithContext(logger, "overlay start announcement failed", "overlay_start_failed",
				logging.Error(err),
				logging.Sink(string(SinkOverlay)),
				logging.String(logging.FieldErrorHint, "start OneComme and check overlay.service_id"),
				logging.String(logging.FieldImpact, "overlay relay stays off"),
			)
			if ctx.Err() == nil {
				e.alert(ctx, overlayFailedAlert)
			}
			done(relayError(SinkOverlay, "enable overlay", err))
			return
		}
		_, out := e.apply(transition{kind: setOverlay, enabled: true, streamEnabled: cfg.Stream.Enabled, epoch: epoch})
		if out.superseded {
			logger.Info("overlay disabled during start announcement", logging.String(logging.FieldEventType, "overlay_enable_superseded"))
			e.sendEndText(ctx)
			done(nil)
			return
		}
		if out.err != nil {
			done(out.err)
			return
		}
		if err := e.ensureMonitoring(ctx); err != nil {
			e.apply(transition{kind: setOverlay, enabled: false})
			e.alert(ctx, feedMissingAlert)
			done(err)
			return
		}
		e.saveThreadID(ctx, cfg)
		logger.Info("overlay relay enabled", logging.String(logging.FieldEventType, "overlay_enabled"))
		done(nil)
	})
}

func (e *Engine) disableOverlay(ctx context.Context) error {
	before := e.State()
	e.apply(transition{kind: setOverlay, enabled: false})
	_ = e.ensureMonitoring(e.taskContext(ctx))
	if !before.OverlayEnabled {
		return nil
	}
	return e.enqueue("overlay end", e.sendEndText)
}

func (e *Engine) sendEndText(ctx context.Context) {
	cfg := e.snapshot()
	if err := e.sendSystem(ctx, cfg, cfg.Overlay.EndText); err != nil && ctx.Err() == nil {
		logging.WarnWithContext(e.logger, "overlay end announcement failed", "overlay_end_failed",
			logging.Error(err),
			logging.Sink(string(SinkOverlay)),
			logging.String(logging.FieldImpact, "overlay relay already disabled"),
		)
		e.alert(ctx, overlayFailedAlert)
	}
}

// SetArchive toggles attachment archiving and announces the change through
// the active relays.
func (e *Engine) SetArchive(ctx context.Context, on bool) error {
	before := e.State()
	if _, out := e.apply(transition{kind: setArchive, enabled: on}); out.err != nil {
		return out.err
	}
	if err := e.ensureMonitoring(e.taskContext(ctx)); err != nil {
		e.apply(transition{kind: setArchive, enabled: false})
		e.alert(ctx, feedMissingAlert)
		return err
	}
	if before.ArchiveEnabled == on {
		return nil
	}
	return e.enqueue("archive announcement", func(ctx context.Context) {
		cfg := e.snapshot()
		text := cfg.Archive.EndText
		if on {
			text = cfg.Archive.StartText
		}
		e.relayNotice(ctx, cfg, text)
	})
}

// SetSpeechOptions changes the start position used by the next enable.
func (e *Engine) SetSpeechOptions(_ context.Context, pos StartPosition, reply int) error {
	_, out := e.apply(transition{kind: setStartOptions, position: pos, replyNumber: reply})
	return out.err
}

// SetStartReplyNumber selects replay from reply n.
func (e *Engine) SetStartReplyNumber(_ context.Context, n int) error {
	_, out := e.apply(transition{kind: setStartReply, replyNumber: n})
	return out.err
}

// Speak relays text through the speech relay. A failure disables speech.
func (e *Engine) Speak(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return services.Wrap(services.ErrValidation, "engine", "speak", "text is empty", nil)
	}
	if !e.State().SpeechEnabled {
		return rejected("speak", "speech relay is disabled").err
	}
	return e.do(ctx, "speak", func(ctx context.Context, done func(error)) {
		if !e.speakLive(ctx, e.snapshot(), text) {
			done(services.Wrap(services.ErrRelayFailed, "engine", "speak", "speech relay unavailable", nil))
		}
	})
}

// SendOverlay relays text to the overlay as a system message.
func (e *Engine) SendOverlay(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return services.Wrap(services.ErrValidation, "engine", "send overlay", "text is empty", nil)
	}
	if !e.State().OverlayEnabled {
		return rejected("send overlay", "overlay relay is disabled").err
	}
	return e.do(ctx, "send overlay", func(ctx context.Context, done func(error)) {
		if !e.sendSystemLive(ctx, e.snapshot(), text) {
			done(services.Wrap(services.ErrRelayFailed, "engine", "send overlay", "overlay relay unavailable", nil))
		}
	})
}

// AutoStart enables each capability whose keywords match the thread title or
// the first post. It is called once when a session opens.
func (e *Engine) AutoStart(ctx context.Context) error {
	if e.accessor == nil {
		return nil
	}
	cfg := e.snapshot()
	title, err := e.accessor.Title(ctx)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.title = title
	e.mu.Unlock()
	body := ""
	if posts, err := e.accessor.Posts(ctx); err == nil && len(posts) > 0 {
		body = transformPlain(posts[0])
	}

	logger := logging.WithContext(ctx, e.logger)
	var errs []error
	if keywordMatch(title, body, cfg.Speech.AutoStartTitleKeyword, cfg.Speech.AutoStartBodyKeyword) {
		pos, parseErr := ParseStartPosition(cfg.Speech.StartPosition)
		if parseErr != nil || pos == PositionReply {
			pos = PositionNewest
		}
		logger.Info("auto-starting speech relay", logging.String(logging.FieldEventType, "auto_start_speech"))
		if err := e.SetSpeech(ctx, true, pos, 0); err != nil {
			errs = append(errs, err)
		}
	}
	if cfg.Stream.Enabled && keywordMatch(title, body, cfg.Overlay.AutoStartTitleKeyword, cfg.Overlay.AutoStartBodyKeyword) {
		logger.Info("auto-starting overlay relay", logging.String(logging.FieldEventType, "auto_start_overlay"))
		if err := e.SetOverlay(ctx, true); err != nil {
			errs = append(errs, err)
		}
	}
	if keywordMatch(title, body, cfg.Archive.AutoStartTitleKeyword, cfg.Archive.AutoStartBodyKeyword) {
		logger.Info("auto-starting archive", logging.String(logging.FieldEventType, "auto_start_archive"))
		if err := e.SetArchive(ctx, true); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// saveThreadID writes the thread id file used by streaming overlays.
func (e *Engine) saveThreadID(ctx context.Context, cfg *config.Config) {
	if !cfg.Stream.Enabled || !cfg.Stream.SaveThreadID || e.archiver == nil || e.threadID == "" {
		return
	}
	dest := filepath.Join(cfg.Paths.ArchiveDir, cfg.Stream.ThreadIDFile)
	if err := e.archiver.WriteText(ctx, dest, e.threadID); err != nil {
		logging.WarnWithContext(e.logger, "thread id file not written", "thread_id_save_failed",
			logging.Error(err),
			logging.String("path", dest),
			logging.String(logging.FieldErrorHint, "check paths.archive_dir is writable"),
			logging.String(logging.FieldImpact, "stream overlays will not see the current thread id"),
		)
	}
}

// taskContext derives a context for monitoring changes made outside the
// worker. The watcher outlives the caller's request.
func (e *Engine) taskContext(ctx context.Context) context.Context {
	if run := e.runContext(); run != nil {
		return run
	}
	return context.WithoutCancel(ctx)
}
