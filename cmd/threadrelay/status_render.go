package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"threadrelay/internal/daemonctl"
	"threadrelay/internal/engine"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const (
	statusLabelWidth = 20
	statusIndent     = "  "
)

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	statusText := statusKindLabel(kind)
	if message != "" {
		statusText = fmt.Sprintf("[%s] %s", statusText, message)
	} else {
		statusText = fmt.Sprintf("[%s]", statusText)
	}
	base := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", statusText)
	if colorize {
		if color := statusKindColor(kind); color != "" {
			return color + base + ansiReset
		}
	}
	return base
}

func statusLines(lines []daemonctl.StatusLine, colorize bool) []string {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		out = append(out, renderStatusLine(line.Label, statusKindFromSeverity(line.Severity), line.Detail, colorize))
	}
	return out
}

func statusKindFromSeverity(severity string) statusKind {
	switch strings.ToLower(strings.TrimSpace(severity)) {
	case "ok":
		return statusOK
	case "warn":
		return statusWarn
	case "error":
		return statusError
	default:
		return statusInfo
	}
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func statusKindColor(kind statusKind) string {
	switch kind {
	case statusOK:
		return ansiGreen
	case statusWarn:
		return ansiYellow
	case statusError:
		return ansiRed
	case statusInfo:
		return ansiBlue
	default:
		return ""
	}
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		line = ansiBlue + line + ansiReset
		rule = ansiBlue + rule + ansiReset
	}
	return []string{line, rule}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// renderState tabulates the capability toggles of a session.
func renderState(state engine.State) string {
	speech := onOff(state.SpeechEnabled)
	if state.SpeechEnabled {
		speech = fmt.Sprintf("on (from %s)", startLabel(state))
	}
	rows := [][]string{
		{"Notification", onOff(state.NotificationEnabled), ""},
		{"Speech", speech, errorMark(state.SpeechErrorFlag)},
		{"Overlay", onOff(state.OverlayEnabled), errorMark(state.OverlayErrorFlag)},
		{"Archive", onOff(state.ArchiveEnabled), ""},
		{"Monitoring", onOff(state.Monitoring), ""},
	}
	if state.ReplayInProgress {
		rows = append(rows, []string{"Replay", "in progress", ""})
	}
	if state.DownloadAllActive {
		rows = append(rows, []string{"Download All", "in progress", ""})
	}
	if state.Closed {
		rows = append(rows, []string{"Thread", "closed", ""})
	}
	return renderTable([]string{"Capability", "State", "Error"}, rows, nil) + "\n"
}

func startLabel(state engine.State) string {
	if state.StartPosition == engine.PositionReply {
		return fmt.Sprintf("reply #%d", state.StartReplyNumber)
	}
	if state.StartPosition == "" {
		return string(engine.PositionNewest)
	}
	return string(state.StartPosition)
}

func errorMark(flag bool) string {
	if flag {
		return "relay failed"
	}
	return ""
}
