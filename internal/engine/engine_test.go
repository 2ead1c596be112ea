package engine_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"threadrelay/internal/config"
	"threadrelay/internal/content"
	"threadrelay/internal/engine"
	"threadrelay/internal/feed"
	"threadrelay/internal/services"
	"threadrelay/internal/signals"
)

func TestReplayFromReplyNumberSpeaksOnlyLaterPosts(t *testing.T) {
	var posts []content.Post
	for i := 1; i <= 10; i++ {
		posts = append(posts, textPost(i, fmt.Sprintf("post %d", i)))
	}
	h := newHarness(t, func(c *config.Config) { c.Stream.Enabled = true }, posts...)
	ctx := context.Background()

	if err := h.engine.SetOverlay(ctx, true); err != nil {
		t.Fatalf("SetOverlay: %v", err)
	}
	overlayBefore := len(h.sender.sent())

	if err := h.engine.SetSpeech(ctx, true, engine.PositionReply, 5); err != nil {
		t.Fatalf("SetSpeech: %v", err)
	}
	waitFor(t, "replay to finish", func() bool { return !h.engine.State().ReplayInProgress })

	got := h.speaker.texts()
	want := []string{h.cfg.Speech.StartText, "post 5", "post 6", "post 7", "post 8", "post 9", "post 10"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("unexpected speech calls\n got: %q\nwant: %q", got, want)
	}
	if n := len(h.sender.sent()); n != overlayBefore {
		t.Fatalf("overlay invoked during replay: %d sends", n-overlayBefore)
	}
	st := h.engine.State()
	if !st.SpeechEnabled || st.StartPosition != engine.PositionReply || st.StartReplyNumber != 5 {
		t.Fatalf("unexpected state %+v", st)
	}
}

func TestLivePostsAfterReplayAreNotRepeated(t *testing.T) {
	h := newHarness(t, nil, textPost(1, "one"), textPost(2, "two"))
	ctx := context.Background()
	if err := h.engine.SetSpeech(ctx, true, engine.PositionBeginning, 0); err != nil {
		t.Fatalf("SetSpeech: %v", err)
	}
	waitFor(t, "replay to finish", func() bool { return !h.engine.State().ReplayInProgress })

	h.accessor.insert(textPost(3, "three"))
	waitFor(t, "live post", func() bool { return len(h.speaker.texts()) == 4 })

	got := strings.Join(h.speaker.texts(), "|")
	want := strings.Join([]string{h.cfg.Speech.StartText, "one", "two", "three"}, "|")
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestSpeechSendsOneCallPerLine(t *testing.T) {
	h := newHarness(t, func(c *config.Config) {
		c.Speech.IgnoreLineBreaks = false
		c.Speech.RevealSpoilers = false
	})
	ctx := context.Background()
	if err := h.engine.SetSpeech(ctx, true, engine.PositionNewest, 0); err != nil {
		t.Fatalf("SetSpeech: %v", err)
	}
	h.accessor.insert(content.Post{Number: 1, Body: content.Tree{
		content.Text{Value: "hi"},
		content.LineBreak{},
		content.Spoiler{Children: content.Tree{content.Text{Value: "secret"}}},
	}})
	waitFor(t, "post lines", func() bool { return len(h.speaker.texts()) == 3 })

	got := h.speaker.texts()[1:]
	if got[0] != "hi" || got[1] != "*****" {
		t.Fatalf("unexpected speech calls %q", got)
	}
}

func TestOverlayFailureBurstRaisesOneAlert(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.Stream.Enabled = true })
	ctx := context.Background()
	if err := h.engine.SetNotification(ctx, true); err != nil {
		t.Fatalf("SetNotification: %v", err)
	}
	if err := h.engine.SetOverlay(ctx, true); err != nil {
		t.Fatalf("SetOverlay: %v", err)
	}
	h.sender.setFail(true)

	h.accessor.insert(textPost(1, "a"), textPost(2, "b"), textPost(3, "c"))
	waitFor(t, "three notices", func() bool {
		shows, _ := h.presenter.counts()
		return shows == 3
	})

	if _, alerts := h.presenter.counts(); alerts != 1 {
		t.Fatalf("expected exactly one alert, got %d", alerts)
	}
	st := h.engine.State()
	if st.OverlayEnabled || st.OverlayErrorFlag {
		t.Fatalf("expected overlay disabled with flag cleared, got %+v", st)
	}
	// Start message plus the first failing post.
	if n := len(h.sender.sent()); n != 2 {
		t.Fatalf("expected 2 overlay sends, got %d", n)
	}
}

func TestThreadClosedStopsProcessing(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	if err := h.engine.SetNotification(ctx, true); err != nil {
		t.Fatalf("SetNotification: %v", err)
	}
	if err := h.engine.SetSpeech(ctx, true, engine.PositionNewest, 0); err != nil {
		t.Fatalf("SetSpeech: %v", err)
	}
	if err := h.engine.SetArchive(ctx, true); err != nil {
		t.Fatalf("SetArchive: %v", err)
	}

	h.accessor.changes <- feed.Change{Status: []string{feed.ClosedMarker}}
	waitSignal(t, h.hub, signals.KindMonitoringStopped)

	st := h.engine.State()
	if !st.Closed || st.SpeechEnabled || st.ArchiveEnabled || st.Monitoring {
		t.Fatalf("unexpected state after close %+v", st)
	}
	texts := h.speaker.texts()
	if texts[len(texts)-1] != h.cfg.Speech.ThreadClosedText {
		t.Fatalf("expected closed announcement last, got %q", texts)
	}

	h.accessor.changes <- feed.Change{Inserted: []content.Post{textPost(50, "late")}}
	time.Sleep(50 * time.Millisecond)
	if shows, _ := h.presenter.counts(); shows != 0 {
		t.Fatalf("expected no notices after close, got %d", shows)
	}
	if err := h.engine.SetSpeech(ctx, true, engine.PositionNewest, 0); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected enable after close to be rejected, got %v", err)
	}
}

func TestEnableSpeechFailureLeavesCapabilityOff(t *testing.T) {
	h := newHarness(t, nil)
	h.speaker.setFail(true)
	err := h.engine.SetSpeech(context.Background(), true, engine.PositionNewest, 0)
	if !errors.Is(err, services.ErrRelayFailed) {
		t.Fatalf("expected ErrRelayFailed, got %v", err)
	}
	if st := h.engine.State(); st.SpeechEnabled || st.Monitoring {
		t.Fatalf("expected speech off and no monitoring, got %+v", st)
	}
	if _, alerts := h.presenter.counts(); alerts != 1 {
		t.Fatalf("expected one alert, got %d", alerts)
	}
}

func TestDisableSpeechIsImmediate(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	if err := h.engine.SetSpeech(ctx, true, engine.PositionNewest, 0); err != nil {
		t.Fatalf("SetSpeech: %v", err)
	}
	h.speaker.setFail(true)
	if err := h.engine.SetSpeech(ctx, false, "", 0); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if h.engine.State().SpeechEnabled {
		t.Fatal("expected speech disabled immediately")
	}
	waitFor(t, "end announcement", func() bool { return len(h.speaker.texts()) == 2 })
}

func TestSetOverlayRequiresStreamSupport(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.engine.SetOverlay(context.Background(), true); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if len(h.sender.sent()) != 0 {
		t.Fatal("expected no overlay traffic")
	}
}

func TestStreamDisabledForcesOverlayOff(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.Stream.Enabled = true })
	if err := h.engine.SetOverlay(context.Background(), true); err != nil {
		t.Fatalf("SetOverlay: %v", err)
	}
	next := *h.cfg
	next.Stream.Enabled = false
	h.engine.ApplyConfig(&next)
	if h.engine.State().OverlayEnabled {
		t.Fatal("expected overlay disabled")
	}
}

func TestBlocklistSuppressesRelaysAndNotice(t *testing.T) {
	h := newHarness(t, func(c *config.Config) {
		c.Blocklist.Entries = []config.BlocklistEntry{{Pattern: "spam", Mode: "substring"}}
	})
	ctx := context.Background()
	if err := h.engine.SetNotification(ctx, true); err != nil {
		t.Fatalf("SetNotification: %v", err)
	}
	if err := h.engine.SetSpeech(ctx, true, engine.PositionNewest, 0); err != nil {
		t.Fatalf("SetSpeech: %v", err)
	}
	h.accessor.insert(textPost(1, "buy spam now"), textPost(2, "hello"))
	waitFor(t, "notice for clean post", func() bool {
		shows, _ := h.presenter.counts()
		return shows == 1
	})

	texts := h.speaker.texts()
	if len(texts) != 2 || texts[1] != "hello" {
		t.Fatalf("expected only the clean post spoken, got %q", texts)
	}
}

func TestArchivedPostAnnouncesSavedText(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.Archive.SaveGIF = false })
	ctx := context.Background()
	if err := h.engine.SetSpeech(ctx, true, engine.PositionNewest, 0); err != nil {
		t.Fatalf("SetSpeech: %v", err)
	}
	if err := h.engine.SetArchive(ctx, true); err != nil {
		t.Fatalf("SetArchive: %v", err)
	}
	h.accessor.insert(content.Post{Number: 7, Body: content.Tree{
		content.Text{Value: "look"},
		content.Image{URL: "https://cdn.example/a.png"},
		content.Image{URL: "https://cdn.example/b.gif"},
	}})
	waitFor(t, "post body", func() bool {
		texts := h.speaker.texts()
		return len(texts) > 0 && texts[len(texts)-1] == "look"
	})

	if h.archiver.count() != 1 {
		t.Fatalf("expected one archive request, got %d", h.archiver.count())
	}
	got := strings.Join(h.speaker.texts(), "|")
	want := strings.Join([]string{
		h.cfg.Speech.StartText,
		h.cfg.Archive.StartText,
		engine.ImagePostedText,
		h.cfg.Archive.SavedText,
		"look",
	}, "|")
	if got != want {
		t.Fatalf("unexpected speech sequence\n got: %s\nwant: %s", got, want)
	}
	req := h.archiver.requests[0]
	if req.ReplyNumber != 7 || req.Directory != filepath.Join(h.cfg.Paths.ArchiveDir, "files", "abc") {
		t.Fatalf("unexpected request %+v", req)
	}
}

func TestOverlayPostIdentityAndSpacing(t *testing.T) {
	h := newHarness(t, func(c *config.Config) {
		c.Stream.Enabled = true
		c.Stream.SaveThreadID = true
	})
	ctx := context.Background()
	if err := h.engine.SetOverlay(ctx, true); err != nil {
		t.Fatalf("SetOverlay: %v", err)
	}
	h.accessor.insert(textPost(4, "hello"))
	waitFor(t, "overlay post", func() bool { return len(h.sender.sent()) == 2 })

	sent := h.sender.sent()
	if !strings.HasPrefix(sent[0].ID, engine.SystemIDPrefix+"_") || sent[0].UserID != h.cfg.Overlay.SystemUserID {
		t.Fatalf("unexpected system message %+v", sent[0])
	}
	if sent[1].ID != "abc_4" || sent[1].Name != h.cfg.Overlay.Name || sent[1].Text != "hello" {
		t.Fatalf("unexpected post message %+v", sent[1])
	}
	dest := filepath.Join(h.cfg.Paths.ArchiveDir, h.cfg.Stream.ThreadIDFile)
	if h.archiver.files[dest] != "abc" {
		t.Fatalf("expected thread id file written, got %+v", h.archiver.files)
	}
}

func TestStartOptionsLockedWhileSpeaking(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	if err := h.engine.SetStartReplyNumber(ctx, 1001); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected range error, got %v", err)
	}
	if err := h.engine.SetSpeechOptions(ctx, engine.PositionReply, 0); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected missing reply error, got %v", err)
	}
	if err := h.engine.SetStartReplyNumber(ctx, 12); err != nil {
		t.Fatalf("SetStartReplyNumber: %v", err)
	}
	if err := h.engine.SetSpeech(ctx, true, engine.PositionNewest, 0); err != nil {
		t.Fatalf("SetSpeech: %v", err)
	}
	if err := h.engine.SetSpeechOptions(ctx, engine.PositionBeginning, 0); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected locked error, got %v", err)
	}
}

func TestDownloadAllArchivesBacklog(t *testing.T) {
	img := func(n int) content.Post {
		return content.Post{Number: n, Body: content.Tree{content.Image{URL: fmt.Sprintf("https://cdn.example/%d.jpg", n)}}}
	}
	h := newHarness(t, nil, img(1), textPost(2, "no image"), img(3))
	if err := h.engine.DownloadAll(context.Background()); err != nil {
		t.Fatalf("DownloadAll: %v", err)
	}
	sig := waitSignal(t, h.hub, signals.KindDownloadAllComplete)
	if sig.Count != 2 || h.archiver.count() != 2 {
		t.Fatalf("expected 2 saved, signal=%+v requests=%d", sig, h.archiver.count())
	}
	if h.engine.State().ArchiveEnabled {
		t.Fatal("download all must not enable archiving")
	}
	waitFor(t, "download flag cleared", func() bool { return !h.engine.State().DownloadAllActive })
}

func TestAutoStartMatchesKeywords(t *testing.T) {
	h := newHarness(t, func(c *config.Config) {
		c.Speech.AutoStartTitleKeyword = "テスト"
		c.Speech.StartPosition = "reply"
		c.Archive.AutoStartBodyKeyword = "ｓａｖｅ"
	}, textPost(1, "please save everything"))
	if err := h.engine.AutoStart(context.Background()); err != nil {
		t.Fatalf("AutoStart: %v", err)
	}
	st := h.engine.State()
	if !st.SpeechEnabled || st.StartPosition != engine.PositionNewest {
		t.Fatalf("expected speech auto-started from newest, got %+v", st)
	}
	if !st.ArchiveEnabled {
		t.Fatal("expected full-width body keyword to start archiving")
	}
	if st.OverlayEnabled {
		t.Fatal("overlay must not auto-start without stream support")
	}
}

func TestDisableDuringStartAnnouncementWins(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	entered, release := h.speaker.holdCalls()
	defer release()

	enabled := make(chan error, 1)
	go func() { enabled <- h.engine.SetSpeech(ctx, true, engine.PositionNewest, 0) }()
	if got := waitEntered(t, entered); got != h.cfg.Speech.StartText {
		t.Fatalf("expected start text first, got %q", got)
	}
	if err := h.engine.SetSpeech(ctx, false, "", 0); err != nil {
		t.Fatalf("disable: %v", err)
	}
	release()

	if err := <-enabled; err != nil {
		t.Fatalf("enable: %v", err)
	}
	if st := h.engine.State(); st.SpeechEnabled || st.Monitoring {
		t.Fatalf("disable issued mid-announcement was lost: %+v", st)
	}
	waitFor(t, "end announcement", func() bool {
		texts := h.speaker.texts()
		return len(texts) == 2 && texts[1] == h.cfg.Speech.EndText
	})
}

func TestCloseDuringSpeechRaisesNoAlert(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.engine.SetSpeech(context.Background(), true, engine.PositionNewest, 0); err != nil {
		t.Fatalf("SetSpeech: %v", err)
	}
	entered, release := h.speaker.holdCalls()
	defer release()

	h.accessor.insert(textPost(1, "こんにちは"))
	if got := waitEntered(t, entered); got != "こんにちは" {
		t.Fatalf("unexpected held text %q", got)
	}
	if err := h.engine.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if _, alerts := h.presenter.counts(); alerts != 0 {
		t.Fatalf("shutdown raised %d relay-failure alerts", alerts)
	}
	batch, _, err := h.hub.Fetch(context.Background(), 0, 0, false)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	for _, sig := range batch {
		if sig.Kind == signals.KindAlert {
			t.Fatalf("unexpected alert signal %+v", sig)
		}
	}
}

func TestEnableAgainstMissingThreadRevertsAndAlertsOnce(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name   string
		enable func(*engine.Engine) error
		on     func(engine.State) bool
	}{
		{
			name:   "notification",
			enable: func(e *engine.Engine) error { return e.SetNotification(ctx, true) },
			on:     func(s engine.State) bool { return s.NotificationEnabled },
		},
		{
			name:   "speech",
			enable: func(e *engine.Engine) error { return e.SetSpeech(ctx, true, engine.PositionNewest, 0) },
			on:     func(s engine.State) bool { return s.SpeechEnabled },
		},
		{
			name:   "archive",
			enable: func(e *engine.Engine) error { return e.SetArchive(ctx, true) },
			on:     func(s engine.State) bool { return s.ArchiveEnabled },
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, nil)
			h.accessor.setLocateErr(errors.New("thread region not found"))

			if err := tc.enable(h.engine); !errors.Is(err, services.ErrFeedUnavailable) {
				t.Fatalf("expected ErrFeedUnavailable, got %v", err)
			}
			st := h.engine.State()
			if tc.on(st) || st.Monitoring {
				t.Fatalf("expected capability off and no monitoring, got %+v", st)
			}
			if _, alerts := h.presenter.counts(); alerts != 1 {
				t.Fatalf("expected exactly one alert, got %d", alerts)
			}
		})
	}
}
