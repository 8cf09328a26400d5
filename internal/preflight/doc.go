// Package preflight provides readiness checks for the storage, library
// service, and credential state that reqtrack depends on.
//
// These checks run in three contexts:
//   - The daemon runs RunAll once at startup and logs every failure.
//   - The admin health endpoint returns RunAll results as JSON.
//   - The CLI "reqtrack health" command renders them as a table.
//
// Checks never fail hard; each one reports Passed plus a human-readable Detail.
package preflight
