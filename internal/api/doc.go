// Package api defines the JSON wire types shared by the daemon HTTP server
// and the CLI, the mapping from classified errors to HTTP responses, and a
// typed client for the daemon.
//
// # Endpoints
//
//	POST   /api/jobs              submit, 201 {job_id, job}
//	GET    /api/jobs              list, ?filter=active|all&state=&backend=&kind=
//	GET    /api/jobs/{id}         one job
//	POST   /api/jobs/{id}/cancel  {accepted}
//	POST   /api/jobs/{id}/retry   requeued job
//	DELETE /api/jobs/{id}         purge a terminal job
//	POST   /api/jobs/purge        {older_than} purge terminal jobs by age, {purged}
//	POST   /api/validate          synchronous validation {results, summary}
//	GET    /api/overview          counts per state and backend health
//	GET    /api/backends          backends with capabilities and health
//	GET    /api/status            daemon diagnostics
//	GET    /metrics               Prometheus exposition
//
// # Errors
//
// Every failure is answered with ErrorResponse. The error field is the
// taxonomy kind (network, auth, quota, not_found, expired,
// capability_mismatch, internal) or invalid_request. The client turns the
// payload back into an error that matches the services sentinels with
// errors.Is and carries the server's hint.
package api
