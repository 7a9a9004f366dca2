// Package backendtest provides scriptable adapters for tests.
package backendtest

import (
	"context"
	"sync"
	"time"

	"retriever/internal/backend"
	"retriever/internal/jobs"
)

// Fake is an adapter whose behavior is supplied per kind. A nil function
// means the capability is not declared.
type Fake struct {
	name string

	SearchFunc   func(ctx context.Context, q backend.Query) (backend.Iterator, error)
	ValidateFunc func(ctx context.Context, ref backend.CandidateRef) jobs.ValidationResult
	FetchFunc    func(ctx context.Context, ref backend.CandidateRef, dest string, progress backend.ProgressFunc) (jobs.Result, error)
	SaveFunc     func(ctx context.Context, ref backend.CandidateRef) (jobs.Handoff, error)

	mu    sync.Mutex
	calls map[jobs.Kind]int
	refs  []string
}

// New returns a Fake named name with no capabilities.
func New(name string) *Fake {
	return &Fake{name: name, calls: make(map[jobs.Kind]int)}
}

// Name implements backend.Adapter.
func (f *Fake) Name() string { return f.name }

// Capabilities implements backend.Adapter.
func (f *Fake) Capabilities() []jobs.Kind {
	var kinds []jobs.Kind
	if f.SearchFunc != nil {
		kinds = append(kinds, jobs.KindSearch)
	}
	if f.FetchFunc != nil {
		kinds = append(kinds, jobs.KindDownload)
	}
	if f.ValidateFunc != nil {
		kinds = append(kinds, jobs.KindValidate)
	}
	if f.SaveFunc != nil {
		kinds = append(kinds, jobs.KindSave)
	}
	return kinds
}

// Search implements backend.Searcher.
func (f *Fake) Search(ctx context.Context, q backend.Query) (backend.Iterator, error) {
	f.record(jobs.KindSearch, q.Text)
	return f.SearchFunc(ctx, q)
}

// Validate implements backend.Validator.
func (f *Fake) Validate(ctx context.Context, ref backend.CandidateRef) jobs.ValidationResult {
	f.record(jobs.KindValidate, ref.ID)
	return f.ValidateFunc(ctx, ref)
}

// Fetch implements backend.Fetcher.
func (f *Fake) Fetch(ctx context.Context, ref backend.CandidateRef, dest string, progress backend.ProgressFunc) (jobs.Result, error) {
	f.record(jobs.KindDownload, ref.ID)
	return f.FetchFunc(ctx, ref, dest, progress)
}

// Save implements backend.Saver.
func (f *Fake) Save(ctx context.Context, ref backend.CandidateRef) (jobs.Handoff, error) {
	f.record(jobs.KindSave, ref.ID)
	return f.SaveFunc(ctx, ref)
}

// Calls returns how many times kind was invoked.
func (f *Fake) Calls(kind jobs.Kind) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[kind]
}

// Refs returns every ref or query passed to the fake, in call order.
func (f *Fake) Refs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.refs...)
}

func (f *Fake) record(kind jobs.Kind, ref string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[kind]++
	f.refs = append(f.refs, ref)
}

// FetchOK returns a fetch function that succeeds with one path per ref.
func FetchOK() func(context.Context, backend.CandidateRef, string, backend.ProgressFunc) (jobs.Result, error) {
	return func(_ context.Context, ref backend.CandidateRef, dest string, progress backend.ProgressFunc) (jobs.Result, error) {
		if progress != nil {
			progress(jobs.Progress{Percent: 100, Message: "done"})
		}
		return jobs.Result{Paths: []string{dest + "/" + ref.ID}, Count: 1}, nil
	}
}

// FetchErr returns a fetch function that always fails with err.
func FetchErr(err error) func(context.Context, backend.CandidateRef, string, backend.ProgressFunc) (jobs.Result, error) {
	return func(context.Context, backend.CandidateRef, string, backend.ProgressFunc) (jobs.Result, error) {
		return jobs.Result{}, err
	}
}

// FetchBlocking returns a fetch function that waits at a checkpoint until ctx
// is done. started is closed once the call begins.
func FetchBlocking(started chan<- struct{}) func(context.Context, backend.CandidateRef, string, backend.ProgressFunc) (jobs.Result, error) {
	var once sync.Once
	return func(ctx context.Context, _ backend.CandidateRef, _ string, _ backend.ProgressFunc) (jobs.Result, error) {
		once.Do(func() { close(started) })
		for {
			if err := backend.Checkpoint(ctx, "transfer chunk"); err != nil {
				return jobs.Result{}, err
			}
			time.Sleep(5 * time.Millisecond)
		}
	}
}

// ValidateStatuses returns a validate function answering from statuses by
// candidate id. Unknown ids are valid.
func ValidateStatuses(statuses map[string]jobs.ValidationStatus) func(context.Context, backend.CandidateRef) jobs.ValidationResult {
	return func(_ context.Context, ref backend.CandidateRef) jobs.ValidationResult {
		status, ok := statuses[ref.ID]
		if !ok {
			status = jobs.ValidationValid
		}
		return jobs.ValidationResult{CandidateID: ref.ID, Status: status, CheckedAt: time.Now().UTC()}
	}
}
