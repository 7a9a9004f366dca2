// Package backend defines the capability contract every retrieval adapter
// implements, the registry the workflow manager resolves adapters from, and
// the explicit health record the degradation policy reads.
//
// An adapter declares the job kinds it supports through Capabilities and
// implements the matching interface (Searcher, Validator, Fetcher, Saver).
// Adapters honor cancellation by calling Checkpoint between units of work.
package backend
