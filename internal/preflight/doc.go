// Package preflight provides readiness checks for the relays and directories
// threadrelay depends on.
//
// The daemon runs them when a thread is opened and the CLI "status" command
// shows the results. A failing check never blocks a session; relays that are
// down surface again as relay failures when a capability is enabled.
package preflight
