// Package daemon coordinates the long-running retriever process.
//
// It wires configuration, the job store, the workflow manager, the status
// feed and the HTTP API into a single lifecycle with flock-based locking to
// prevent multiple instances. On start it fails jobs a previous process left
// queued or running, probes backend health, then starts the workers and the
// API listener.
//
// Keep orchestration logic here: job execution lives in workflow and backend
// adapters while the daemon focuses on startup, shutdown, and serving status.
package daemon
