// Package archive downloads post attachments to the local archive directory
// and keeps a SQLite ledger of every attempt.
//
// Requester.Request never blocks the caller: each download runs in its own
// goroutine with a detached context and a per-request timeout. Wait drains
// in-flight downloads during shutdown and in tests.
package archive
