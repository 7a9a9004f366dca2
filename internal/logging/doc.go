// Package logging builds the slog loggers used by the retriever daemon.
//
// Console output puts the job and backend up front so a worker's trail reads
// as one line per step. JSON output is meant for collectors. Field helpers
// keep key names consistent, and OpenJobLog tees a logger into a per-job file
// under the job log directory.
package logging
