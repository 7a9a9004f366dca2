// Package workflow runs submitted jobs against the backend adapters.
//
// The Manager owns a bounded pool of workers. Each worker claims the oldest
// queued job from the status store, walks the job's candidate backends in
// policy order and settles the job as completed, failed or cancelled. Every
// state change is written to the store before anything else can observe it.
//
// A network failure is retried once on the same backend before falling back
// to the next candidate. Quota failures fall back immediately and mark the
// backend exhausted for the rest of the session. Other failure kinds settle
// the job. Cancellation is cooperative: running jobs have their context
// cancelled and adapters stop at their next checkpoint.
package workflow
