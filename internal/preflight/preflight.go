package preflight

import (
	"context"

	"reqtrack/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// Dependencies are the live components health checks exercise. Nil members are
// skipped.
type Dependencies struct {
	Database Pinger
	Library  InfoSource
	Selector CredentialSource
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config, deps Dependencies) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{CheckDirectoryAccess("Data directory", cfg.Paths.DataDir)}
	if deps.Database != nil {
		results = append(results, CheckDatabase(ctx, deps.Database))
	}
	if deps.Library != nil {
		results = append(results, CheckJellyfin(ctx, deps.Library))
	}
	if deps.Selector != nil && cfg.Reconcile.Enabled {
		results = append(results, CheckAdminCredential(ctx, deps.Selector))
	}
	return results
}

// AllPassed reports whether every result passed.
func AllPassed(results []Result) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}
