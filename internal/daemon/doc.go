// Package daemon coordinates the long-running threadrelay process.
//
// It owns the single-instance flock, the pid file, the archive ledger and
// download requester, and the signal hub, and it binds at most one engine
// session to the currently open thread. Opening another thread closes the
// current session first, so every thread starts idle and re-derives its
// capabilities from the auto-start keywords.
//
// Keep relay behaviour in the engine package: the daemon focuses on startup,
// shutdown, configuration changes, and session lifecycle.
package daemon
