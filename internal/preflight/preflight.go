package preflight

import (
	"context"

	"threadrelay/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// RunAll executes the readiness checks for the given config. Relay checks
// only run when the relay has a usable endpoint.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckDirectoryAccess("Archive directory", cfg.Paths.ArchiveDir),
		CheckSpeech(ctx, cfg.Speech),
	}
	if cfg.Stream.Enabled {
		results = append(results, CheckOverlay(ctx, cfg.Overlay))
	} else {
		results = append(results, Result{Name: overlayName, Passed: true, Detail: "Disabled (stream support off)"})
	}
	return results
}
