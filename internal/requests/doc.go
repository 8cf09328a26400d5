// Package requests persists media requests in SQLite and owns their status
// lifecycle.
//
// The Store manages the database connection, schema initialization, paging
// and stats queries, the append-only request history, and the user_roles
// table that records who may act as an administrator. Transition is the single
// way a request's status changes: it reads the current status, consults the
// configured TransitionPolicy, updates the row, and appends a history entry in
// one immediate SQLite transaction, so a request's latest history entry always
// matches its status.
//
// Schema changes bump schemaVersion in schema.go; operators delete the
// database to adopt a new schema.
package requests
