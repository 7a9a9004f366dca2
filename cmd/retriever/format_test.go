package main

import (
	"strings"
	"testing"
	"time"

	"retriever/internal/jobs"
	"retriever/internal/services"
)

func TestFormatProgress(t *testing.T) {
	tests := []struct {
		name string
		job  jobs.Job
		want string
	}{
		{name: "queued", job: jobs.Job{State: jobs.StateQueued}, want: "-"},
		{name: "bytes", job: jobs.Job{State: jobs.StateRunning, Progress: jobs.Progress{Percent: 25, BytesDone: 1 << 20, BytesTotal: 4 << 20}}, want: "25% (1.0 MiB / 4.0 MiB)"},
		{name: "items", job: jobs.Job{State: jobs.StateRunning, Progress: jobs.Progress{Percent: 50, ItemsDone: 3, ItemsTotal: 6}}, want: "50% (3/6)"},
		{name: "percent", job: jobs.Job{State: jobs.StateCompleted, Progress: jobs.Progress{Percent: 100}}, want: "100%"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatProgress(&tt.job); got != tt.want {
				t.Fatalf("formatProgress = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestJobDetailAndAttempts(t *testing.T) {
	job := &jobs.Job{
		State: jobs.StateFailed,
		Error: &jobs.ErrorInfo{Kind: services.KindAuth, Message: "token expired"},
		Attempts: []jobs.Attempt{
			{Backend: "qobuz", Outcome: jobs.OutcomeFailed, ErrorKind: services.KindQuota},
			{Backend: "tidal", Outcome: jobs.OutcomeFailed, ErrorKind: services.KindAuth},
		},
	}
	if got := jobDetail(job); got != "auth: token expired" {
		t.Fatalf("jobDetail = %q", got)
	}
	if got := attemptsSummary(job); got != "qobuz:failed(quota) -> tidal:failed(auth)" {
		t.Fatalf("attemptsSummary = %q", got)
	}
}

func TestPrintJobWithHandoff(t *testing.T) {
	job := &jobs.Job{
		ID:        "j1",
		Kind:      jobs.KindSave,
		State:     jobs.StateCompleted,
		Target:    jobs.Target{Refs: []string{"https://pan.quark.cn/s/abc"}},
		CreatedAt: time.Now().Add(-time.Minute),
		Result: &jobs.Result{Count: 1, Handoffs: []jobs.Handoff{{
			Method: "clipboard",
			Tried:  []jobs.HandoffTry{{Method: "desktop", Error: "connection refused"}},
		}}},
	}
	var b strings.Builder
	printJob(&b, job, time.Now(), false)
	out := b.String()
	for _, want := range []string{"State:", "Completed", "Handoff:", "clipboard", "desktop failed: connection refused", "1 minute ago"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
	if got := titleCase("not_found"); got != "Not Found" {
		t.Fatalf("titleCase = %q", got)
	}
}
