// Package notifications presents new-post notices and relay failure alerts.
//
// When notifications.ntfy_topic is set, notices are pushed to ntfy with
// Title/Tags/Priority headers; otherwise they are only logged.
package notifications
