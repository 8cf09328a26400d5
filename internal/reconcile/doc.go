// Package reconcile runs the background pass that auto-fulfills open media
// requests once they appear in the Jellyfin library.
//
// A Reconciler owns exactly one goroutine, started with Start and stopped with
// Stop. Every tick of its Clock it lists open requests, picks an admin
// credential, and folds each request's library.Result into a PassSummary:
// matches are transitioned to fulfilled by requests.SystemActor, misses and
// per-item errors are counted and skipped, and a rejected credential ends the
// pass early. Nothing that goes wrong inside a pass stops the loop.
//
// RunPass runs one pass synchronously and is what the CLI and the admin API
// trigger; passes never overlap.
package reconcile
