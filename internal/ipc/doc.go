// Package ipc exposes the daemon over JSON-RPC on a Unix socket and ships the
// matching client used by the CLI.
//
// Each request gets its own correlation id. Input is validated at this
// boundary so the engine only sees well-formed start positions and ports.
// Errors carry their classification as a "[kind] " prefix which the client
// decodes into a RemoteError that matches the services markers.
package ipc
