// Package services holds the pieces shared by the workflow manager and the
// backend adapters.
//
// Scope carries the job, kind, backend and request ids on a context so logs
// and errors can name them. The error taxonomy (network, auth, quota,
// not_found, expired, capability_mismatch, internal) is expressed as sentinel
// markers: Wrap tags an error, KindOf and Classify reduce any error to a
// kind, and Details gives the serializable {kind, message, hint, recoverable}
// view.
package services
