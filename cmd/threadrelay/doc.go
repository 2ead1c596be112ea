// Package main hosts the threadrelay CLI entrypoint and command graph.
//
// `threadrelay run` hosts the daemon in the foreground and `start` launches
// it detached. Every other command is a thin JSON-RPC call against the
// daemon socket: opening and closing threads, toggling the notice, speech,
// overlay, and archive capabilities, sending free text, following signals,
// and reading the archive history. Configuration scaffolding lives under
// `config`.
package main
