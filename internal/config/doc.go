// Package config loads, normalizes, and validates threadrelay configuration data.
//
// It supplies repository defaults (the announcement texts, relay endpoints, and
// archive filters the tool ships with), expands user paths including tilde
// shortcuts, reads TOML files, and honours environment fallbacks such as
// THREADRELAY_ONECOMME_ID and NTFY_TOPIC.
//
// A running daemon keeps its configuration in a Store. Every evaluation reads
// one immutable snapshot, so an Update only affects work that starts after it.
package config
