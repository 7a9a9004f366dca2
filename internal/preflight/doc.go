// Package preflight checks the directories, download tools and search
// endpoint the daemon relies on.
//
// The daemon runs RunAll once at startup. Failures are logged and shown by
// "retriever status", but never stop the daemon: backend health and the
// selection policy route around whatever is missing.
package preflight
