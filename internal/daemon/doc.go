// Package daemon coordinates the long-running reqtrack process.
//
// It wires configuration, the request store, the Jellyfin client, the
// admin credential selector, and the reconciliation loop into a single
// lifecycle with flock-based locking to prevent multiple instances sharing
// one data directory. The daemon also serves the HTTP API: user endpoints
// for creating and browsing requests, and admin endpoints for moderation,
// role management, health, and manual reconciliation.
//
// Keep orchestration logic here: request rules belong to internal/requests
// and matching rules to internal/library. The daemon focuses on startup,
// shutdown, authentication, and translating domain errors into responses.
package daemon
