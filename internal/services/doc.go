// Package services defines shared utilities consumed by the dispatch engine
// and the outbound relay integrations.
//
// Key responsibilities:
//   - Context helpers that stamp thread IDs, reply numbers, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper so feed, relay, blocklist,
//     and validation failures can be classified with errors.Is at the RPC
//     boundary.
//
// Relay adapters live in subpackages (bouyomi, onecomme) and report failures
// wrapped with ErrRelayFailed.
package services
