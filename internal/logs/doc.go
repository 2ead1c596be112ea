// Package logs reads the daemon log file for `threadrelay logs`: the last N
// lines, polling follow mode that survives truncation, and a per-thread line
// filter that understands both the console and JSON formats.
package logs
