package deps_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"retriever/internal/config"
	"retriever/internal/deps"
)

func TestLocate(t *testing.T) {
	stub := filepath.Join(t.TempDir(), "qobuz-dl")
	if err := os.WriteFile(stub, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}

	tests := []struct {
		name       string
		command    string
		available  bool
		detailPart string
	}{
		{name: "present", command: stub, available: true},
		{name: "missing", command: "retriever-no-such-tool", detailPart: "not found on PATH"},
		{name: "blank", command: "  ", detailPart: "not configured"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := deps.Locate(deps.Tool{Backend: "qobuz", Command: tt.command})
			if st.Available != tt.available {
				t.Fatalf("Available = %v, want %v (%s)", st.Available, tt.available, st.Detail)
			}
			if tt.available && st.Path != stub {
				t.Fatalf("Path = %q, want %q", st.Path, stub)
			}
			if !strings.Contains(st.Detail, tt.detailPart) {
				t.Fatalf("Detail = %q, want it to contain %q", st.Detail, tt.detailPart)
			}
		})
	}
}

func TestForConfigFollowsEnabledBackends(t *testing.T) {
	cfg := config.Default()
	cfg.Qobuz.Enabled = false
	cfg.Tidal.Enabled = true
	cfg.Tidal.Binary = "tiddl"

	tools := deps.ForConfig(&cfg)
	if len(tools) != 1 || tools[0].Backend != "tidal" || tools[0].Command != "tiddl" {
		t.Fatalf("ForConfig = %+v", tools)
	}
	if got := deps.LocateAll(nil); len(got) != 0 {
		t.Fatalf("LocateAll(nil) = %v", got)
	}
	if deps.ForConfig(nil) != nil {
		t.Fatal("expected nil tools for nil config")
	}
}
