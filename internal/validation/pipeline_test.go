package validation_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"retriever/internal/backend"
	"retriever/internal/backend/backendtest"
	"retriever/internal/jobs"
	"retriever/internal/validation"
)

func refs(ids ...string) []backend.CandidateRef {
	out := make([]backend.CandidateRef, len(ids))
	for i, id := range ids {
		out[i] = backend.CandidateRef{ID: id}
	}
	return out
}

func statuses(batch validation.Batch) []jobs.ValidationStatus {
	out := make([]jobs.ValidationStatus, len(batch.Results))
	for i, r := range batch.Results {
		out[i] = r.Status
	}
	return out
}

func TestRunPreservesOrderAndSummarizes(t *testing.T) {
	fake := backendtest.New("quark")
	fake.ValidateFunc = backendtest.ValidateStatuses(map[string]jobs.ValidationStatus{"b": jobs.ValidationExpired})

	batch := validation.New(2, time.Second, nil).Run(context.Background(), fake, refs("a", "b", "c"))

	want := []jobs.ValidationStatus{jobs.ValidationValid, jobs.ValidationExpired, jobs.ValidationValid}
	got := statuses(batch)
	for i := range want {
		if got[i] != want[i] || batch.Results[i].CandidateID != []string{"a", "b", "c"}[i] {
			t.Fatalf("result %d = %+v, want status %s", i, batch.Results[i], want[i])
		}
	}
	if batch.Summary.Total != 3 || batch.Summary.Valid != 2 || batch.Summary.NeedsBroaderSearch {
		t.Fatalf("unexpected summary %+v", batch.Summary)
	}
	if batch.Summary.ByStatus[jobs.ValidationExpired] != 1 {
		t.Fatalf("by status = %v", batch.Summary.ByStatus)
	}
}

func TestRunTimeoutBecomesError(t *testing.T) {
	fake := backendtest.New("quark")
	fake.ValidateFunc = func(ctx context.Context, ref backend.CandidateRef) jobs.ValidationResult {
		if ref.ID == "slow" {
			<-ctx.Done()
			time.Sleep(20 * time.Millisecond)
		}
		return jobs.ValidationResult{CandidateID: ref.ID, Status: jobs.ValidationValid}
	}

	batch := validation.New(4, 50*time.Millisecond, nil).Run(context.Background(), fake, refs("a", "slow", "c"))

	if len(batch.Results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(batch.Results))
	}
	slow := batch.Results[1]
	if slow.CandidateID != "slow" || slow.Status != jobs.ValidationError || slow.Detail["message"] != validation.DetailTimeout {
		t.Fatalf("unexpected slow result %+v", slow)
	}
	if batch.Results[0].Status != jobs.ValidationValid || batch.Results[2].Status != jobs.ValidationValid {
		t.Fatalf("fast results = %v", statuses(batch))
	}
}

func TestRunSharesConcurrencyCapAcrossCallers(t *testing.T) {
	var inFlight, peak atomic.Int32
	fake := backendtest.New("quark")
	fake.ValidateFunc = func(ctx context.Context, ref backend.CandidateRef) jobs.ValidationResult {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
		return jobs.ValidationResult{CandidateID: ref.ID, Status: jobs.ValidationValid}
	}
	pipeline := validation.New(2, time.Second, nil)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			batch := pipeline.Run(context.Background(), fake, refs("a", "b", "c", "d"))
			if batch.Summary.Valid != 4 {
				t.Errorf("summary = %+v", batch.Summary)
			}
		}()
	}
	wg.Wait()

	if p := peak.Load(); p > 2 {
		t.Fatalf("peak concurrency %d exceeds cap", p)
	}
	if fake.Calls(jobs.KindValidate) != 12 {
		t.Fatalf("calls = %d", fake.Calls(jobs.KindValidate))
	}
}

func TestRunHoldsSlotUntilSlowValidatorReturns(t *testing.T) {
	var inFlight, peak atomic.Int32
	fake := backendtest.New("quark")
	fake.ValidateFunc = func(_ context.Context, ref backend.CandidateRef) jobs.ValidationResult {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(80 * time.Millisecond)
		inFlight.Add(-1)
		return jobs.ValidationResult{CandidateID: ref.ID, Status: jobs.ValidationValid}
	}

	batch := validation.New(1, 20*time.Millisecond, nil).Run(context.Background(), fake, refs("a", "b", "c"))

	for i, res := range batch.Results {
		if res.Status != jobs.ValidationError || res.Detail["message"] != validation.DetailTimeout {
			t.Fatalf("result %d = %+v, want timeout", i, res)
		}
	}
	if p := peak.Load(); p != 1 {
		t.Fatalf("peak concurrency %d, want 1", p)
	}
}

func TestRunRecoversPanics(t *testing.T) {
	fake := backendtest.New("quark")
	fake.ValidateFunc = func(_ context.Context, ref backend.CandidateRef) jobs.ValidationResult {
		if ref.ID == "boom" {
			panic("bad share payload")
		}
		return jobs.ValidationResult{CandidateID: ref.ID, Status: jobs.ValidationValid}
	}

	batch := validation.New(2, time.Second, nil).Run(context.Background(), fake, refs("boom", "ok"))
	if batch.Results[0].Status != jobs.ValidationError || batch.Results[0].CandidateID != "boom" {
		t.Fatalf("panic result = %+v", batch.Results[0])
	}
	if batch.Results[1].Status != jobs.ValidationValid {
		t.Fatalf("ok result = %+v", batch.Results[1])
	}
}

func TestRunDoesNotCache(t *testing.T) {
	fake := backendtest.New("quark")
	fake.ValidateFunc = func(_ context.Context, ref backend.CandidateRef) jobs.ValidationResult {
		if ref.Passcode == "" {
			return jobs.ValidationResult{CandidateID: ref.ID, Status: jobs.ValidationPasswordRequired}
		}
		return jobs.ValidationResult{CandidateID: ref.ID, Status: jobs.ValidationValid}
	}
	pipeline := validation.New(1, time.Second, nil)

	first := pipeline.Run(context.Background(), fake, refs("s1", "s1"))
	if first.Results[0].Status != jobs.ValidationPasswordRequired || first.Results[1].Status != jobs.ValidationPasswordRequired {
		t.Fatalf("first = %v", statuses(first))
	}
	second := pipeline.Run(context.Background(), fake, []backend.CandidateRef{{ID: "s1", Passcode: "1234"}})
	if second.Results[0].Status != jobs.ValidationValid {
		t.Fatalf("second = %v", statuses(second))
	}
	if fake.Calls(jobs.KindValidate) != 3 {
		t.Fatalf("calls = %d", fake.Calls(jobs.KindValidate))
	}
}

func TestRunCancelledContext(t *testing.T) {
	fake := backendtest.New("quark")
	fake.ValidateFunc = func(ctx context.Context, ref backend.CandidateRef) jobs.ValidationResult {
		<-ctx.Done()
		time.Sleep(20 * time.Millisecond)
		return jobs.ValidationResult{CandidateID: ref.ID, Status: jobs.ValidationValid}
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	batch := validation.New(1, time.Second, nil).Run(ctx, fake, refs("a", "b"))
	for _, r := range batch.Results {
		if r.Status != jobs.ValidationError || r.Detail["message"] != validation.DetailCancelled {
			t.Fatalf("unexpected result %+v", r)
		}
	}
}

func TestSummarize(t *testing.T) {
	tests := []struct {
		name    string
		results []jobs.ValidationResult
		broader bool
	}{
		{"empty", nil, false},
		{"none valid", []jobs.ValidationResult{{Status: jobs.ValidationExpired}, {Status: jobs.ValidationError}}, true},
		{"one valid", []jobs.ValidationResult{{Status: jobs.ValidationExpired}, {Status: jobs.ValidationValid}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := validation.Summarize(tt.results); got.NeedsBroaderSearch != tt.broader || got.Total != len(tt.results) {
				t.Fatalf("summary = %+v", got)
			}
		})
	}
}
