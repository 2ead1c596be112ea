package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"threadrelay/internal/config"
	"threadrelay/internal/ipc"
	"threadrelay/internal/preflight"
)

// Snapshot is daemon status plus display lines for the CLI.
type Snapshot struct {
	Status       *ipc.StatusResponse
	SystemChecks []StatusLine
	RelayChecks  []StatusLine
}

// StatusLine is one labelled row of status output.
type StatusLine struct {
	Label    string `json:"label"`
	Severity string `json:"severity"`
	Detail   string `json:"detail"`
}

// BuildStatusSnapshot collects daemon status, falling back to local
// readiness checks when the daemon is offline.
func BuildStatusSnapshot(ctx context.Context, socketPath string, cfg *config.Config) (*Snapshot, error) {
	if cfg == nil {
		return nil, errors.New("configuration not available")
	}
	status := &ipc.StatusResponse{}

	client, err := ipc.Dial(socketPath)
	if err == nil {
		defer client.Close()
		if resp, statusErr := client.Status(); statusErr == nil {
			status = resp
		}
	}
	if !status.Running || len(status.Checks) == 0 {
		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		status.Checks = preflight.RunAll(checkCtx, cfg)
	}

	return &Snapshot{
		Status:       status,
		SystemChecks: BuildSystemChecks(cfg, status),
		RelayChecks:  BuildRelayChecks(status.Checks),
	}, nil
}

// BuildSystemChecks resolves status lines that combine runtime state and config.
func BuildSystemChecks(cfg *config.Config, status *ipc.StatusResponse) []StatusLine {
	lines := make([]StatusLine, 0, 5)
	if status != nil && status.Running {
		lines = append(lines, StatusLine{Label: "threadrelay", Severity: "ok", Detail: fmt.Sprintf("Running (pid %d)", status.PID)})
	} else {
		lines = append(lines, StatusLine{Label: "threadrelay", Severity: "warn", Detail: "Not running (run `threadrelay start`)"})
	}

	switch {
	case status == nil || status.Session == nil:
		lines = append(lines, StatusLine{Label: "Thread", Severity: "info", Detail: "No thread open"})
	case status.Session.State.Closed:
		lines = append(lines, StatusLine{Label: "Thread", Severity: "warn", Detail: fmt.Sprintf("%s (closed)", threadLabel(status.Session))})
	default:
		lines = append(lines, StatusLine{Label: "Thread", Severity: "ok", Detail: threadLabel(status.Session)})
	}

	if cfg.Stream.Enabled {
		lines = append(lines, StatusLine{Label: "Stream Support", Severity: "ok", Detail: "Enabled"})
	} else {
		lines = append(lines, StatusLine{Label: "Stream Support", Severity: "info", Detail: "Disabled"})
	}

	if strings.TrimSpace(cfg.Notifications.NtfyTopic) != "" {
		lines = append(lines, StatusLine{Label: "Notifications", Severity: "ok", Detail: "ntfy configured"})
	} else {
		lines = append(lines, StatusLine{Label: "Notifications", Severity: "info", Detail: "Log only (no ntfy topic)"})
	}

	if cfg.Blocklist.Enabled {
		lines = append(lines, StatusLine{Label: "Blocklist", Severity: "ok", Detail: fmt.Sprintf("%d entries", len(cfg.Blocklist.Entries))})
	} else {
		lines = append(lines, StatusLine{Label: "Blocklist", Severity: "info", Detail: "Disabled"})
	}
	return lines
}

// BuildRelayChecks maps readiness results to status lines.
func BuildRelayChecks(results []preflight.Result) []StatusLine {
	lines := make([]StatusLine, 0, len(results))
	for _, result := range results {
		severity := "error"
		if result.Passed {
			severity = "ok"
		}
		lines = append(lines, StatusLine{Label: result.Name, Severity: severity, Detail: result.Detail})
	}
	return lines
}

func threadLabel(info *ipc.SessionInfo) string {
	if strings.TrimSpace(info.Title) == "" {
		return info.ThreadID
	}
	return fmt.Sprintf("%s %s", info.ThreadID, info.Title)
}
