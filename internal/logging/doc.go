// Package logging assembles structured slog loggers and formatting helpers used
// across reqtrack.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so the API and the reconciliation
// loop can tag log lines with request IDs and pass IDs. The package also
// provides a no-op logger for tests and wiring code that cannot fail.
package logging
