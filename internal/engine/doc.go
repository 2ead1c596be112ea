// Package engine runs the relay for one thread.
//
// All capability flags live in a single State value that changes only through
// reduce, so flag rules (start settings locked while speaking, nothing
// re-enables after the thread closes, one alert per failure burst) are checked
// in one place. Relay traffic runs on a single worker goroutine: live posts,
// announcements and replay are delivered in order and never interleave.
//
// Callers toggle capabilities with SetSpeech, SetOverlay, SetArchive and
// SetNotification. The engine starts the feed watcher while any capability is
// active and stops it when none is.
package engine
