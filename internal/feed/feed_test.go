package feed_test

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"retriever/internal/backend"
	"retriever/internal/feed"
	"retriever/internal/jobs"
	"retriever/internal/services"
	"retriever/internal/testsupport"
)

func TestFeedReadsThroughToStore(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	f := feed.New(store, nil, nil)
	ctx := context.Background()

	job := testsupport.NewJob(t, store, jobs.KindDownload, jobs.Target{Ref: "album"}, "qobuz")

	got, err := f.Job(ctx, job.ID)
	if err != nil {
		t.Fatalf("Job: %v", err)
	}
	if got.State != jobs.StateQueued {
		t.Fatalf("state = %s", got.State)
	}

	claimed, err := store.ClaimNext(ctx)
	if err != nil || claimed == nil {
		t.Fatalf("ClaimNext = %v, %v", claimed, err)
	}
	got, err = f.Job(ctx, job.ID)
	if err != nil {
		t.Fatalf("Job: %v", err)
	}
	if got.State != jobs.StateRunning {
		t.Fatalf("feed returned a stale state %s after the write", got.State)
	}

	if _, err := f.Job(ctx, "nope"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("unknown id = %v", err)
	}
	if _, err := f.Job(ctx, "  "); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("blank id = %v", err)
	}
}

func TestFeedJobsFilters(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	f := feed.New(store, nil, nil)
	ctx := context.Background()

	queued := testsupport.NewJob(t, store, jobs.KindDownload, jobs.Target{Ref: "a"})
	cancelled := testsupport.NewJob(t, store, jobs.KindSearch, jobs.Target{Query: "b"})
	if ok, err := store.CancelQueued(ctx, cancelled.ID, "before start"); err != nil || !ok {
		t.Fatalf("CancelQueued = %v, %v", ok, err)
	}

	tests := []struct {
		name   string
		filter jobs.Filter
		want   []string
	}{
		{name: "all", filter: jobs.Filter{}, want: []string{queued.ID, cancelled.ID}},
		{name: "active", filter: jobs.ActiveFilter(), want: []string{queued.ID}},
		{name: "kind", filter: jobs.Filter{Kind: jobs.KindSearch}, want: []string{cancelled.ID}},
		{name: "none", filter: jobs.Filter{States: []jobs.State{jobs.StateFailed}}, want: []string{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			list, err := f.Jobs(ctx, tc.filter)
			if err != nil {
				t.Fatalf("Jobs: %v", err)
			}
			ids := []string{}
			for _, job := range list {
				ids = append(ids, job.ID)
			}
			if !slices.Equal(ids, tc.want) {
				t.Fatalf("ids = %v, want %v", ids, tc.want)
			}
		})
	}
}

type staticHealth map[string]backend.Health

func (s staticHealth) Snapshot() map[string]backend.Health { return s }

func TestFeedOverview(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.NewJob(t, store, jobs.KindDownload, jobs.Target{Ref: "a"})
	testsupport.NewJob(t, store, jobs.KindDownload, jobs.Target{Ref: "b"})
	if _, err := store.ClaimNext(ctx); err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}

	health := staticHealth{
		"qobuz": backend.Unhealthy("qobuz", "connection refused"),
		"stale": backend.Healthy("stale"),
	}
	descriptors := []backend.Descriptor{
		{Name: "qobuz", Capabilities: []jobs.Kind{jobs.KindDownload}},
		{Name: "quark", Capabilities: []jobs.Kind{jobs.KindSearch, jobs.KindValidate}},
	}
	f := feed.New(store, health, descriptors)

	before := time.Now().UTC().Add(-time.Second)
	ov, err := f.Overview(ctx)
	if err != nil {
		t.Fatalf("Overview: %v", err)
	}
	if ov.Counts[jobs.StateQueued] != 1 || ov.Counts[jobs.StateRunning] != 1 || ov.Active != 2 || ov.Total != 2 {
		t.Fatalf("counts = %+v active=%d total=%d", ov.Counts, ov.Active, ov.Total)
	}
	if _, ok := ov.Counts[jobs.StateCancelled]; !ok {
		t.Fatal("every state should be reported, even at zero")
	}
	if ov.GeneratedAt.Before(before) {
		t.Fatalf("generated_at = %s", ov.GeneratedAt)
	}

	var names []string
	for _, b := range ov.Backends {
		names = append(names, b.Name)
	}
	if !slices.Equal(names, []string{"qobuz", "quark", "stale"}) {
		t.Fatalf("backends = %v", names)
	}
	if ov.Backends[0].Status != backend.HealthUnavailable || ov.Backends[1].Status != backend.HealthAvailable {
		t.Fatalf("health = %+v", ov.Backends)
	}
}

func TestParseFilter(t *testing.T) {
	tests := []struct {
		name    string
		scope   string
		states  []string
		backend string
		kind    string
		want    jobs.Filter
		wantErr bool
	}{
		{name: "empty", want: jobs.Filter{}},
		{name: "active", scope: "Active", want: jobs.ActiveFilter()},
		{name: "states win", scope: "active", states: []string{"failed,cancelled"}, want: jobs.Filter{States: []jobs.State{jobs.StateFailed, jobs.StateCancelled}}},
		{name: "backend and alias kind", backend: " Qobuz ", kind: "fetch", want: jobs.Filter{Backend: "qobuz", Kind: jobs.KindDownload}},
		{name: "bad scope", scope: "recent", wantErr: true},
		{name: "bad state", states: []string{"paused"}, wantErr: true},
		{name: "bad kind", kind: "stream", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := feed.ParseFilter(tc.scope, tc.states, tc.backend, tc.kind)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseFilter: %v", err)
			}
			if !slices.Equal(got.States, tc.want.States) || got.Backend != tc.want.Backend || got.Kind != tc.want.Kind {
				t.Fatalf("filter = %+v, want %+v", got, tc.want)
			}
		})
	}
}
