package backend_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"retriever/internal/backend"
	"retriever/internal/backend/backendtest"
	"retriever/internal/jobs"
	"retriever/internal/services"
)

func TestRegistryCapableKeepsRegistrationOrder(t *testing.T) {
	qobuz := backendtest.New("qobuz")
	qobuz.FetchFunc = backendtest.FetchOK()
	quark := backendtest.New("quark")
	quark.ValidateFunc = backendtest.ValidateStatuses(nil)
	tidal := backendtest.New("tidal")
	tidal.FetchFunc = backendtest.FetchOK()

	reg, err := backend.NewRegistry(qobuz, quark, tidal)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	got := reg.Capable(jobs.KindDownload)
	if len(got) != 2 || got[0] != "qobuz" || got[1] != "tidal" {
		t.Fatalf("Capable(download) = %v", got)
	}
	if got := reg.Capable(jobs.KindSearch); len(got) != 0 {
		t.Fatalf("expected no search backends, got %v", got)
	}
	if _, ok := reg.Get("QUARK"); !ok {
		t.Fatal("expected case-insensitive lookup")
	}
	if err := reg.Register(backendtest.New("qobuz")); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
}

type declaredOnly struct{}

func (declaredOnly) Name() string { return "liar" }
func (declaredOnly) Capabilities() []jobs.Kind { return []jobs.Kind{jobs.KindSave} }

func TestSupportsRequiresInterface(t *testing.T) {
	if backend.Supports(declaredOnly{}, jobs.KindSave) {
		t.Fatal("declared capability without Saver must not be supported")
	}
}

func TestHealthTrackerObserve(t *testing.T) {
	tracker := backend.NewHealthTracker("qobuz")

	cases := []struct {
		name string
		err  error
		want backend.HealthStatus
	}{
		{"network", services.Wrap(services.ErrNetwork, "qobuz", "download", "reset", nil), backend.HealthUnavailable},
		{"success", nil, backend.HealthAvailable},
		{"quota", services.Wrap(services.ErrQuota, "qobuz", "download", "429", nil), backend.HealthDegraded},
		{"auth keeps status", services.Wrap(services.ErrAuth, "qobuz", "download", "401", nil), backend.HealthDegraded},
	}
	for _, tc := range cases {
		rec := tracker.Observe("qobuz", tc.err)
		if rec.Status != tc.want {
			t.Fatalf("%s: status = %s, want %s", tc.name, rec.Status, tc.want)
		}
	}

	snap := tracker.Snapshot()
	rec := snap["qobuz"]
	if rec.LastSuccess == nil || rec.LastFailure == nil {
		t.Fatalf("expected both timestamps, got %#v", rec)
	}
	*rec.LastSuccess = time.Time{}
	again, _ := tracker.Get("qobuz")
	if again.LastSuccess.IsZero() {
		t.Fatal("snapshot must not alias tracker state")
	}
}

func TestCheckpoint(t *testing.T) {
	if err := backend.Checkpoint(context.Background(), "idle"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := backend.Checkpoint(ctx, "before transfer")
	if !errors.Is(err, services.ErrCancelled) {
		t.Fatalf("expected cancelled, got %v", err)
	}
	if got := backend.CancelPoint(err, "fallback"); got != "before transfer" {
		t.Fatalf("CancelPoint = %q", got)
	}

	expired, stop := context.WithTimeout(context.Background(), -time.Second)
	defer stop()
	if kind := services.KindOf(backend.Checkpoint(expired, "transfer")); kind != services.KindNetwork {
		t.Fatalf("expected network kind for deadline, got %s", kind)
	}
}

func TestDrainHonorsLimit(t *testing.T) {
	it := backend.NewSliceIterator([]jobs.Candidate{{ID: "a"}, {ID: "b"}, {ID: "c"}})
	got, err := backend.Drain(context.Background(), it, 2)
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if len(got) != 2 || got[1].ID != "b" {
		t.Fatalf("Drain = %#v", got)
	}
}

func TestRefFromCandidatePrefersCandidateFields(t *testing.T) {
	target := jobs.Target{Query: "blue train", Passcode: "from-target"}
	tests := []struct {
		name      string
		candidate jobs.Candidate
		wantURL   string
		wantCode  string
	}{
		{name: "bare id", candidate: jobs.Candidate{ID: "abc"}, wantURL: "abc", wantCode: "from-target"},
		{
			name:      "url and passcode",
			candidate: jobs.Candidate{ID: "abc", URL: "https://pan.quark.cn/s/abc", Extra: map[string]string{"passcode": "x1"}},
			wantURL:   "https://pan.quark.cn/s/abc",
			wantCode:  "x1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref := backend.RefFromCandidate(target, tt.candidate)
			if ref.ID != "abc" || ref.URL != tt.wantURL || ref.Passcode != tt.wantCode {
				t.Fatalf("ref = %+v", ref)
			}
		})
	}
}
