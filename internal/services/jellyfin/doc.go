// Package jellyfin talks to a Jellyfin server on behalf of reconciliation
// and health checks.
//
// Client wraps the two endpoints reqtrack needs: a per-user item search that
// returns provider ids, and the unauthenticated public system info used to
// confirm the server is reachable. Failures are classified into
// ErrUnauthorized (the token was refused) and ErrUnavailable (anything else)
// so callers can decide whether to keep going.
package jellyfin
