package main

import (
	"fmt"
	"io"
	"strings"
	"testing"

	"threadrelay/internal/daemonctl"
	"threadrelay/internal/engine"
)

func TestRenderStatusLineNoColor(t *testing.T) {
	got := renderStatusLine("threadrelay", statusError, "Not running", false)
	want := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, "threadrelay:", "[ERROR] Not running")
	if got != want {
		t.Fatalf("renderStatusLine mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestRenderStatusLineWithColor(t *testing.T) {
	got := renderStatusLine("threadrelay", statusOK, "Running", true)
	if !strings.HasPrefix(got, ansiGreen) {
		t.Fatalf("expected green prefix, got %q", got)
	}
	if !strings.HasSuffix(got, ansiReset) {
		t.Fatalf("expected reset suffix, got %q", got)
	}
}

func TestStatusLinesMapSeverity(t *testing.T) {
	lines := statusLines([]daemonctl.StatusLine{
		{Label: "OneComme", Severity: "error", Detail: "missing service_id"},
		{Label: "Stream Support", Severity: "info", Detail: "Disabled"},
	}, false)
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], "[ERROR] missing service_id") {
		t.Fatalf("unexpected first line %q", lines[0])
	}
	if !strings.Contains(lines[1], "[INFO] Disabled") {
		t.Fatalf("unexpected second line %q", lines[1])
	}
}

func TestRenderStateShowsReplyStartAndErrors(t *testing.T) {
	out := renderState(engine.State{
		SpeechEnabled:    true,
		OverlayErrorFlag: true,
		StartPosition:    engine.PositionReply,
		StartReplyNumber: 12,
		Closed:           true,
	})
	for _, want := range []string{"on (from reply #12)", "relay failed", "closed"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in\n%s", want, out)
		}
	}
}

func TestShouldColorizeNonFile(t *testing.T) {
	if shouldColorize(io.Discard) {
		t.Fatalf("expected non-file writer to disable color")
	}
}
