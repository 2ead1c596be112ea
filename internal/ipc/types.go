package ipc

import (
	"time"

	"threadrelay/internal/daemon"
	"threadrelay/internal/preflight"
	"threadrelay/internal/signals"
)

// SessionInfo describes the open thread session.
type SessionInfo = daemon.SessionInfo

// CheckResult is one readiness check.
type CheckResult = preflight.Result

// Signal is one outbound event.
type Signal = signals.Signal

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse represents combined daemon and session status information.
type StatusResponse struct {
	Running    bool          `json:"running"`
	PID        int           `json:"pid"`
	LockPath   string        `json:"lock_path"`
	SocketPath string        `json:"socket_path"`
	LedgerPath string        `json:"ledger_path"`
	ConfigPath string        `json:"config_path"`
	Session    *SessionInfo  `json:"session"`
	Checks     []CheckResult `json:"checks"`
}

// OpenThreadRequest opens a thread by URL or bare thread id.
type OpenThreadRequest struct {
	URL string `json:"url"`
}

// CloseThreadRequest closes the open thread.
type CloseThreadRequest struct{}

// CloseThreadResponse reports whether a session was closed.
type CloseThreadResponse struct {
	Closed bool `json:"closed"`
}

// StateRequest fetches the open session's state.
type StateRequest struct{}

// StateResponse carries the session after a state query or change.
type StateResponse struct {
	Session SessionInfo `json:"session"`
}

// ToggleRequest switches a capability on or off.
type ToggleRequest struct {
	Enabled bool `json:"enabled"`
}

// SetSpeechRequest switches the speech relay. StartPosition and
// StartReplyNumber apply when enabling.
type SetSpeechRequest struct {
	Enabled          bool   `json:"enabled"`
	StartPosition    string `json:"start_position"`
	StartReplyNumber int    `json:"start_reply_number"`
}

// SpeechOptionsRequest changes the start position used by the next enable.
type SpeechOptionsRequest struct {
	StartPosition    string `json:"start_position"`
	StartReplyNumber int    `json:"start_reply_number"`
}

// StartReplyRequest selects replay from a reply number.
type StartReplyRequest struct {
	Value int `json:"value"`
}

// TextRequest carries free text to relay.
type TextRequest struct {
	Text string `json:"text"`
}

// DownloadAllRequest archives every attachment in the open thread.
type DownloadAllRequest struct{}

// Ack is the response for requests that only report acceptance.
type Ack struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

// EventsRequest fetches signals after Since. WaitMillis > 0 blocks until a
// signal arrives or the wait elapses.
type EventsRequest struct {
	Since      uint64 `json:"since"`
	Limit      int    `json:"limit"`
	WaitMillis int    `json:"wait_ms"`
}

// EventsResponse carries signals and the sequence to resume from.
type EventsResponse struct {
	Signals []Signal `json:"signals"`
	Next    uint64   `json:"next"`
}

// UpdateSettingsRequest changes relay settings. Nil fields are unchanged.
type UpdateSettingsRequest struct {
	SpeechPort       *int    `json:"speech_port,omitempty"`
	OverlayServiceID *string `json:"overlay_service_id,omitempty"`
	StreamEnabled    *bool   `json:"stream_enabled,omitempty"`
}

// ReloadConfigRequest re-reads the configuration file.
type ReloadConfigRequest struct{}

// HistoryRequest lists archived files. An empty ThreadID lists all threads.
type HistoryRequest struct {
	ThreadID string `json:"thread_id"`
	Limit    int    `json:"limit"`
}

// HistoryEntry is one archived file.
type HistoryEntry struct {
	ThreadID    string    `json:"thread_id"`
	ReplyNumber int       `json:"reply_number"`
	URL         string    `json:"url"`
	Path        string    `json:"path"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
	SizeBytes   int64     `json:"size_bytes"`
	CreatedAt   time.Time `json:"created_at"`
}

// HistoryResponse contains ledger rows, newest first.
type HistoryResponse struct {
	Entries []HistoryEntry `json:"entries"`
}

// StopRequest shuts the daemon down.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}
