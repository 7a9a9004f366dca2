package main

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"retriever/internal/backend"
	"retriever/internal/feed"
	"retriever/internal/jobs"
)

func sampleSnapshot() watchSnapshot {
	now := time.Now()
	return watchSnapshot{
		overview: &feed.Overview{
			Counts: map[jobs.State]int{jobs.StateRunning: 1, jobs.StateFailed: 2},
			Active: 1,
			Total:  3,
			Backends: []feed.BackendStatus{
				{Health: backend.Health{Name: "qobuz", Status: backend.HealthAvailable}, Capabilities: []jobs.Kind{jobs.KindDownload}},
				{Health: backend.Health{Name: "quark", Status: backend.HealthUnavailable, Detail: "pansou down"}},
			},
		},
		jobs: []*jobs.Job{{
			ID:        "job-1",
			Kind:      jobs.KindDownload,
			State:     jobs.StateRunning,
			Backend:   "qobuz",
			Target:    jobs.Target{Refs: []string{"album-1", "album-2"}},
			Progress:  jobs.Progress{Percent: 50, ItemsDone: 1, ItemsTotal: 2},
			UpdatedAt: now,
		}},
		at: now,
	}
}

func TestRenderSnapshot(t *testing.T) {
	out := renderSnapshot(sampleSnapshot(), false, false, time.Now())
	for _, want := range []string{"running 1", "failed 2", "total 3", "quark", "pansou down", "job-1", "album-1 (+1 more)", "50% (1/2)"} {
		if !strings.Contains(out, want) {
			t.Fatalf("snapshot missing %q:\n%s", want, out)
		}
	}

	empty := renderSnapshot(watchSnapshot{overview: &feed.Overview{Counts: map[jobs.State]int{}}}, true, false, time.Now())
	if !strings.Contains(empty, "No jobs") {
		t.Fatalf("empty snapshot = %q", empty)
	}
}

func TestWatchModelUpdate(t *testing.T) {
	var fetched []bool
	fetch := func(all bool) watchSnapshot {
		fetched = append(fetched, all)
		return sampleSnapshot()
	}
	m := newWatchModel(fetch, time.Second, false)

	next, _ := m.Update(snapshotMsg(sampleSnapshot()))
	m = next.(watchModel)
	if !strings.Contains(m.View(), "job-1") {
		t.Fatal("expected job in view")
	}

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'a'}})
	m = next.(watchModel)
	if !m.showAll {
		t.Fatal("expected toggle to all jobs")
	}
	if cmd == nil {
		t.Fatal("expected refetch command")
	}
	if msg := cmd(); msg == nil {
		t.Fatal("expected snapshot message")
	}
	if len(fetched) != 1 || !fetched[0] {
		t.Fatalf("fetch calls = %v", fetched)
	}

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("expected quit message")
	}
}

func TestWatchModelShowsErrors(t *testing.T) {
	m := newWatchModel(nil, 0, false)
	next, _ := m.Update(snapshotMsg(watchSnapshot{err: errors.New("daemon unavailable")}))
	view := next.(watchModel).View()
	if !strings.Contains(view, "daemon unavailable") {
		t.Fatalf("view = %q", view)
	}
	if next.(watchModel).interval != 2*time.Second {
		t.Fatal("expected default interval")
	}
}
