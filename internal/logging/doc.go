// Package logging assembles structured slog loggers and formatting helpers used
// across threadrelay.
//
// The console handler writes one line per record with the thread and reply in
// the header; the JSON handler emits slog JSON with ts and lower-case levels.
// WithContext tags a logger with the thread id, reply number and RPC
// correlation id carried on a context.
package logging
