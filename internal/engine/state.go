package engine

import (
	"fmt"
	"strings"

	"threadrelay/internal/config"
	"threadrelay/internal/services"
)

// StartPosition selects where backlog replay begins when speech is enabled.
type StartPosition string

const (
	PositionNewest    StartPosition = "newest"
	PositionBeginning StartPosition = "beginning"
	PositionReply     StartPosition = "reply"
)

// ParseStartPosition accepts the names above and the numeric forms 0, 1, 2.
func ParseStartPosition(value string) (StartPosition, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "newest", "0":
		return PositionNewest, nil
	case "beginning", "1":
		return PositionBeginning, nil
	case "reply", "2":
		return PositionReply, nil
	default:
		return "", services.Wrap(services.ErrValidation, "engine", "start position", fmt.Sprintf("unknown start position %q", value), nil)
	}
}

// Sink names a relay.
type Sink string

const (
	SinkSpeech  Sink = "speech"
	SinkOverlay Sink = "overlay"
)

// State is the per-session state snapshot.
type State struct {
	NotificationEnabled bool          `json:"notification_enabled"`
	SpeechEnabled       bool          `json:"speech_enabled"`
	ArchiveEnabled      bool          `json:"archive_enabled"`
	OverlayEnabled      bool          `json:"overlay_enabled"`
	SpeechErrorFlag     bool          `json:"speech_error_flag"`
	OverlayErrorFlag    bool          `json:"overlay_error_flag"`
	ReplayInProgress    bool          `json:"replay_in_progress"`
	StartPosition       StartPosition `json:"start_position"`
	StartReplyNumber    int           `json:"start_reply_number,omitempty"`
	Closed              bool          `json:"closed"`
	Monitoring          bool          `json:"monitoring"`
	DownloadAllActive   bool          `json:"download_all_active"`

	// speechEpoch and overlayEpoch count disable requests. An enable carries
	// the epoch it was requested under and is dropped if a disable came since.
	speechEpoch  uint64
	overlayEpoch uint64
}

// Active reports whether any capability needs the feed watched.
func (s State) Active() bool {
	return s.NotificationEnabled || s.SpeechEnabled || s.ArchiveEnabled || s.OverlayEnabled
}

// SinkEnabled reports the flag owning sink.
func (s State) SinkEnabled(sink Sink) bool {
	switch sink {
	case SinkSpeech:
		return s.SpeechEnabled
	case SinkOverlay:
		return s.OverlayEnabled
	default:
		return false
	}
}

type transitionKind int

const (
	setNotification transitionKind = iota + 1
	setSpeech
	setOverlay
	setArchive
	setStartOptions
	setStartReply
	relayFailed
	replayBegin
	replayEnd
	threadClosed
	monitoringChanged
	downloadAllChanged
	streamDisabled
)

type transition struct {
	kind          transitionKind
	enabled       bool
	position      StartPosition
	replyNumber   int
	sink          Sink
	streamEnabled bool
	epoch         uint64
}

// outcome reports what a transition did beyond the new state.
type outcome struct {
	changed bool
	// alert is set when a relay failure disabled its capability.
	alert bool
	// errorFlagRaised records that the one-shot flag was set during the transition.
	errorFlagRaised bool
	// superseded is set when an enable lost to a later disable.
	superseded bool
	err        error
}

func rejected(op, msg string) outcome {
	return outcome{err: services.Wrap(services.ErrValidation, "engine", op, msg, nil)}
}

// reduce is the only place State changes.
func reduce(s State, t transition) (State, outcome) {
	next := s
	switch t.kind {
	case setNotification:
		next.NotificationEnabled = t.enabled

	case setSpeech:
		if t.enabled {
			if t.epoch != s.speechEpoch {
				return s, outcome{superseded: true}
			}
			if s.Closed {
				return s, rejected("set speech", "thread is closed")
			}
			pos, reply, err := resolveStart(t.position, t.replyNumber)
			if err != nil {
				return s, outcome{err: err}
			}
			next.SpeechEnabled = true
			next.StartPosition = pos
			next.StartReplyNumber = reply
		} else {
			next.SpeechEnabled = false
			next.speechEpoch++
		}

	case setOverlay:
		if t.enabled {
			if t.epoch != s.overlayEpoch {
				return s, outcome{superseded: true}
			}
			if s.Closed {
				return s, rejected("set overlay", "thread is closed")
			}
			if !t.streamEnabled {
				return s, rejected("set overlay", "stream support is disabled")
			}
		} else {
			next.overlayEpoch++
		}
		next.OverlayEnabled = t.enabled

	case setArchive:
		if t.enabled && s.Closed {
			return s, rejected("set archive", "thread is closed")
		}
		next.ArchiveEnabled = t.enabled

	case setStartOptions:
		if s.SpeechEnabled {
			return s, rejected("set speech options", "start settings are locked while speech is enabled")
		}
		reply := t.replyNumber
		if t.position == PositionReply && reply == 0 {
			reply = s.StartReplyNumber
		}
		pos, reply, err := resolveStart(t.position, reply)
		if err != nil {
			return s, outcome{err: err}
		}
		next.StartPosition = pos
		next.StartReplyNumber = reply

	case setStartReply:
		if s.SpeechEnabled {
			return s, rejected("set start reply number", "start settings are locked while speech is enabled")
		}
		if err := config.ValidateStartReplyNumber(t.replyNumber); err != nil {
			return s, outcome{err: services.Wrap(services.ErrValidation, "engine", "set start reply number", err.Error(), nil)}
		}
		next.StartPosition = PositionReply
		next.StartReplyNumber = t.replyNumber

	case relayFailed:
		if !s.SinkEnabled(t.sink) {
			return s, outcome{}
		}
		// The flag is raised and cleared within this transition, so only the
		// first failure of a burst finds the capability still enabled.
		switch t.sink {
		case SinkSpeech:
			next.SpeechErrorFlag = true
			next.SpeechEnabled = false
			next.SpeechErrorFlag = false
		case SinkOverlay:
			next.OverlayErrorFlag = true
			next.OverlayEnabled = false
			next.OverlayErrorFlag = false
		}
		return next, outcome{changed: true, alert: true, errorFlagRaised: true}

	case replayBegin:
		next.ReplayInProgress = true

	case replayEnd:
		next.ReplayInProgress = false

	case threadClosed:
		next.SpeechEnabled = false
		next.ArchiveEnabled = false
		next.ReplayInProgress = false
		next.Monitoring = false
		next.Closed = true

	case monitoringChanged:
		next.Monitoring = t.enabled

	case downloadAllChanged:
		next.DownloadAllActive = t.enabled

	case streamDisabled:
		if !t.streamEnabled {
			next.OverlayEnabled = false
		}
	}
	return next, outcome{changed: next.visible() != s.visible()}
}

// visible drops the bookkeeping fields clients never see.
func (s State) visible() State {
	s.speechEpoch, s.overlayEpoch = 0, 0
	return s
}

func resolveStart(pos StartPosition, reply int) (StartPosition, int, error) {
	switch pos {
	case "", PositionNewest:
		return PositionNewest, 0, nil
	case PositionBeginning:
		return PositionBeginning, 0, nil
	case PositionReply:
		if reply == 0 {
			return "", 0, services.Wrap(services.ErrValidation, "engine", "start position", config.ReplyRequiredMessage, nil)
		}
		if err := config.ValidateStartReplyNumber(reply); err != nil {
			return "", 0, services.Wrap(services.ErrValidation, "engine", "start position", err.Error(), nil)
		}
		return PositionReply, reply, nil
	default:
		return "", 0, services.Wrap(services.ErrValidation, "engine", "start position", fmt.Sprintf("unknown start position %q", pos), nil)
	}
}
