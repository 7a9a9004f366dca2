package qobuz

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"testing"

	"retriever/internal/backend"
	"retriever/internal/backend/cmdrun"
	"retriever/internal/config"
	"retriever/internal/jobs"
	"retriever/internal/services"
)

func testConfig(t *testing.T) config.Qobuz {
	t.Helper()
	return config.Qobuz{Enabled: true, Binary: "qobuz-dl", Quality: 27, DownloadDir: t.TempDir()}
}

func TestFetchBuildsCommandAndDetectsNewFolder(t *testing.T) {
	cfg := testConfig(t)
	var got cmdrun.Command
	runner := cmdrun.RunnerFunc(func(_ context.Context, cmd cmdrun.Command) (cmdrun.Output, error) {
		got = cmd
		album := filepath.Join(cfg.DownloadDir, "Artist - Album (2020) [FLAC]")
		if err := os.MkdirAll(album, 0o755); err != nil {
			return cmdrun.Output{}, err
		}
		return cmdrun.Output{}, os.WriteFile(filepath.Join(album, "01.flac"), make([]byte, 64), 0o644)
	})
	adapter := New(cfg, WithRunner(runner))

	var last jobs.Progress
	result, err := adapter.Fetch(context.Background(), backend.CandidateRef{ID: "0060254735180"}, "", func(p jobs.Progress) { last = p })
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	want := []string{"dl", "https://play.qobuz.com/album/0060254735180", "-q", "27", "-d", cfg.DownloadDir, "--no-db"}
	if !slices.Equal(got.Args, want) {
		t.Fatalf("args = %v, want %v", got.Args, want)
	}
	if result.Count != 1 || result.Bytes != 64 || len(result.Paths) != 1 {
		t.Fatalf("unexpected result: %#v", result)
	}
	if last.Percent != 100 {
		t.Fatalf("expected final progress 100, got %#v", last)
	}
}

func TestFetchClassifiesFailures(t *testing.T) {
	cases := []struct {
		name   string
		output string
		exit   bool
		want   error
	}{
		{"quota", "Error: download limit reached", true, services.ErrQuota},
		{"auth", "401 Unauthorized: token expired", true, services.ErrAuth},
		{"not found exit", "album not found", true, services.ErrNotFound},
		{"no files", "", false, services.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			runner := cmdrun.RunnerFunc(func(context.Context, cmdrun.Command) (cmdrun.Output, error) {
				out := cmdrun.Output{Stderr: tc.output}
				if tc.exit {
					out.ExitCode = 1
					return out, &exec.ExitError{}
				}
				return out, nil
			})
			adapter := New(testConfig(t), WithRunner(runner))
			_, err := adapter.Fetch(context.Background(), backend.CandidateRef{ID: "album/1"}, "", nil)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestFetchTimeoutIsNetwork(t *testing.T) {
	runner := cmdrun.RunnerFunc(func(context.Context, cmdrun.Command) (cmdrun.Output, error) {
		return cmdrun.Output{}, services.Wrap(services.ErrNetwork, "", "qobuz-dl", "no result", cmdrun.ErrTimeout)
	})
	_, err := New(testConfig(t), WithRunner(runner)).Fetch(context.Background(), backend.CandidateRef{ID: "1"}, "", nil)
	if services.KindOf(err) != services.KindNetwork {
		t.Fatalf("expected network, got %v", err)
	}
}

func TestFetchCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	runner := cmdrun.RunnerFunc(func(context.Context, cmdrun.Command) (cmdrun.Output, error) {
		called = true
		return cmdrun.Output{}, nil
	})
	_, err := New(testConfig(t), WithRunner(runner)).Fetch(ctx, backend.CandidateRef{ID: "1"}, "", nil)
	if !errors.Is(err, services.ErrCancelled) {
		t.Fatalf("expected cancelled, got %v", err)
	}
	if called {
		t.Fatal("runner must not start after cancellation")
	}
}

func TestFetchRejectsEmptyRef(t *testing.T) {
	_, err := New(testConfig(t)).Fetch(context.Background(), backend.CandidateRef{}, "", nil)
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestHealthCheckMissingBinary(t *testing.T) {
	cfg := testConfig(t)
	cfg.Binary = "clearly-not-present-binary"
	if h := New(cfg).HealthCheck(context.Background()); h.Status != backend.HealthUnavailable {
		t.Fatalf("expected unavailable, got %#v", h)
	}
}
