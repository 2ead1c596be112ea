package ipc

import (
	"errors"
	"net/rpc"
	"strings"

	"threadrelay/internal/services"
)

// RemoteError is a daemon-side failure decoded by the client. It matches the
// services markers with errors.Is.
type RemoteError struct {
	Kind    string
	Message string
}

func (e *RemoteError) Error() string {
	return e.Message
}

// Is reports whether target is the marker named by Kind.
func (e *RemoteError) Is(target error) bool {
	marker, ok := markers[e.Kind]
	return ok && marker == target
}

var markers = map[string]error{
	"feed_unavailable":          services.ErrFeedUnavailable,
	"relay_failed":              services.ErrRelayFailed,
	"invalid_blocklist_pattern": services.ErrInvalidPattern,
	"validation":                services.ErrValidation,
	"configuration":             services.ErrConfiguration,
	"not_found":                 services.ErrNotFound,
	"transient":                 services.ErrTransient,
}

// encodeError prefixes the marker kind so it survives the JSON-RPC string
// error channel.
func encodeError(err error) error {
	if err == nil {
		return nil
	}
	return errors.New("[" + services.Kind(err) + "] " + err.Error())
}

func decodeError(err error) error {
	var serverErr rpc.ServerError
	if !errors.As(err, &serverErr) {
		return err
	}
	text := string(serverErr)
	if strings.HasPrefix(text, "[") {
		if end := strings.Index(text, "] "); end > 0 {
			return &RemoteError{Kind: text[1:end], Message: text[end+2:]}
		}
	}
	return &RemoteError{Kind: "transient", Message: text}
}
