package engine

import (
	"context"

	"threadrelay/internal/config"
	"threadrelay/internal/content"
	"threadrelay/internal/logging"
	"threadrelay/internal/services"
	"threadrelay/internal/transform"
)

// replay speaks the backlog from the resolved start point. The overlay is
// never used. Posts that arrive while replaying are picked up by re-reading
// the backlog until it stops growing; the watermark keeps the live pipeline
// from repeating them.
func (e *Engine) replay(ctx context.Context, cfg *config.Config, st State) {
	defer e.apply(transition{kind: replayEnd})
	logger := logging.WithContext(ctx, e.logger)

	posts, err := e.accessor.Posts(ctx)
	if err != nil {
		logging.WarnWithContext(logger, "backlog unavailable; replay skipped", "replay_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the thread is still reachable"),
			logging.String(logging.FieldImpact, "only new posts will be read"),
		)
		return
	}
	start := replayStart(posts, st.StartPosition, st.StartReplyNumber)
	if start < 0 {
		logger.Info("start reply not found; nothing to replay",
			logging.String(logging.FieldEventType, "replay_start_missing"),
			logging.Int("start_reply_number", st.StartReplyNumber),
		)
		e.raiseWatermark(posts)
		return
	}

	spoken := 0
	batch := posts[start:]
	for len(batch) > 0 {
		e.raiseWatermark(batch)
		for _, post := range batch {
			if !e.replayPost(services.WithReplyNumber(ctx, post.Number), cfg, post) {
				logger.Info("replay stopped", logging.String(logging.FieldEventType, "replay_stopped"), logging.Int("posts_spoken", spoken))
				return
			}
			spoken++
		}
		more, err := e.accessor.Posts(ctx)
		if err != nil {
			break
		}
		batch = postsAfter(more, batch[len(batch)-1].Number)
	}
	logger.Info("replay complete",
		logging.String(logging.FieldEventType, "replay_complete"),
		logging.Int("posts_spoken", spoken),
	)
}

// replayPost speaks one backlog post. It returns false when speech was
// disabled or the relay failed.
func (e *Engine) replayPost(ctx context.Context, cfg *config.Config, post content.Post) bool {
	if !e.State().SpeechEnabled || ctx.Err() != nil {
		return false
	}
	if e.blocked(cfg, post) {
		return true
	}
	for _, line := range transform.Lines(post.Body, SpeechRules(cfg.Speech)) {
		if !e.speakLive(ctx, cfg, line) {
			return false
		}
	}
	return e.State().SpeechEnabled
}

// replayStart resolves the index of the first post to replay, or -1.
func replayStart(posts []content.Post, pos StartPosition, reply int) int {
	switch pos {
	case PositionBeginning:
		if len(posts) == 0 {
			return -1
		}
		return 0
	case PositionReply:
		for i, post := range posts {
			if post.Number == reply {
				return i
			}
		}
	}
	return -1
}

func postsAfter(posts []content.Post, number int) []content.Post {
	var out []content.Post
	for _, post := range posts {
		if post.Number > number {
			out = append(out, post)
		}
	}
	return out
}

func (e *Engine) raiseWatermark(posts []content.Post) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, post := range posts {
		if post.Number > e.watermark {
			e.watermark = post.Number
		}
	}
}
