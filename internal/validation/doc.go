// Package validation checks batches of candidates concurrently before a
// caller commits to one.
//
// A single Pipeline is shared by every caller in the daemon so its
// concurrency cap holds across jobs and API requests. Results keep the input
// order and every input produces exactly one result: timeouts, adapter
// errors and panics all become "error" results. Nothing is cached.
package validation
