// Package main hosts the retriever CLI entrypoint and command graph.
//
// The Cobra command tree runs the daemon in the foreground and translates
// every other invocation into calls against the daemon HTTP API: job
// submission, status queries, cancellation, synchronous validation, backend
// health and the live watch dashboard. Configuration resolution and API
// client construction live in the shared command context so subcommands only
// deal with presentation.
//
// Exit codes: 0 on success, 1 when the failure is recoverable (daemon not
// reachable, network or quota errors, recoverable job failures) and 2 for
// fatal or configuration errors.
package main
