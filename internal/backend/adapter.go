package backend

import (
	"context"
	"slices"

	"retriever/internal/jobs"
)

// Adapter is the minimal contract shared by every backend.
type Adapter interface {
	Name() string
	Capabilities() []jobs.Kind
}

// Query describes a search request.
type Query struct {
	Text      string
	MediaType string
	Limit     int
	Filters   map[string]string
}

// CandidateRef identifies a resource on a backend.
type CandidateRef struct {
	ID        string
	URL       string
	MediaType string
	Passcode  string
	Token     string
}

// Iterator yields search candidates lazily. It is finite and not restartable.
type Iterator interface {
	Next(ctx context.Context) (jobs.Candidate, bool, error)
}

// ProgressFunc receives advisory progress from long-running calls.
type ProgressFunc func(jobs.Progress)

// Searcher finds candidates.
type Searcher interface {
	Adapter
	Search(ctx context.Context, q Query) (Iterator, error)
}

// Validator checks whether a candidate is usable. It must not mutate remote
// state. Failures are reported through the result status.
type Validator interface {
	Adapter
	Validate(ctx context.Context, ref CandidateRef) jobs.ValidationResult
}

// Fetcher downloads a candidate into destination.
type Fetcher interface {
	Adapter
	Fetch(ctx context.Context, ref CandidateRef, destination string, progress ProgressFunc) (jobs.Result, error)
}

// Saver hands a candidate over to an external client using ordered
// strategies and reports which one succeeded.
type Saver interface {
	Adapter
	Save(ctx context.Context, ref CandidateRef) (jobs.Handoff, error)
}

// HealthChecker is implemented by adapters that can probe their readiness
// without running a job.
type HealthChecker interface {
	HealthCheck(ctx context.Context) Health
}

// Supports reports whether adapter declares kind and implements the
// interface that kind needs.
func Supports(adapter Adapter, kind jobs.Kind) bool {
	if adapter == nil || !slices.Contains(adapter.Capabilities(), kind) {
		return false
	}
	switch kind {
	case jobs.KindSearch:
		_, ok := adapter.(Searcher)
		return ok
	case jobs.KindValidate:
		_, ok := adapter.(Validator)
		return ok
	case jobs.KindDownload:
		_, ok := adapter.(Fetcher)
		return ok
	case jobs.KindSave:
		_, ok := adapter.(Saver)
		return ok
	default:
		return false
	}
}

// RefFromTarget builds the candidate reference for a job target and one of
// its refs.
func RefFromTarget(target jobs.Target, ref string) CandidateRef {
	return CandidateRef{
		ID:        ref,
		URL:       ref,
		MediaType: target.MediaType,
		Passcode:  target.Passcode,
		Token:     target.Token,
	}
}

// RefFromCandidate builds the reference used to validate or act on a search
// candidate. A passcode carried by the candidate wins over the target's.
func RefFromCandidate(target jobs.Target, c jobs.Candidate) CandidateRef {
	ref := RefFromTarget(target, c.ID)
	if c.URL != "" {
		ref.URL = c.URL
	}
	if code := c.Extra["passcode"]; code != "" {
		ref.Passcode = code
	}
	return ref
}

// QueryFromTarget builds the search query for a job target.
func QueryFromTarget(target jobs.Target, defaultLimit int) Query {
	limit := target.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	return Query{
		Text:      target.Query,
		MediaType: target.MediaType,
		Limit:     limit,
		Filters:   target.Filters,
	}
}
