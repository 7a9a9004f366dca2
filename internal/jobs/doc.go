// Package jobs holds the durable job record and its SQLite-backed status store.
//
// A Job moves through queued, running and one of the terminal states
// completed, failed or cancelled. The only edge out of a terminal state is
// failed -> queued, taken by an explicit retry. Transition enforces these
// edges in memory and Store.Save enforces them again against the stored row,
// so a racing writer can never regress a settled job. Attempts are
// append-only.
//
// The store is the single shared mutable resource between the HTTP API, the
// worker pool and the status feed. Schema changes bump schemaVersion in
// schema.go; users delete the database to adopt a new schema.
package jobs
