package logging

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestTeeCollapsesBranches(t *testing.T) {
	if _, ok := tee(nil, nil).(discard); !ok {
		t.Fatal("expected discard handler when every branch is nil")
	}
	inner := slog.NewJSONHandler(&bytes.Buffer{}, nil)
	if tee(nil, inner) != slog.Handler(inner) {
		t.Fatal("expected a single branch to be returned as is")
	}
}

func TestTeeRespectsBranchLevels(t *testing.T) {
	var infoBuf, debugBuf bytes.Buffer
	h := tee(
		slog.NewJSONHandler(&infoBuf, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewJSONHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug}),
	)
	if !h.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("expected tee to accept debug")
	}
	slog.New(h).With(JobID("abc")).Debug("probe detail")

	if infoBuf.Len() != 0 {
		t.Fatalf("info branch received debug line: %s", infoBuf.String())
	}
	if !strings.Contains(debugBuf.String(), `"job_id":"abc"`) {
		t.Fatalf("expected job_id on debug branch: %s", debugBuf.String())
	}
}

func TestOpenJobLogWritesDebugTrail(t *testing.T) {
	var baseBuf bytes.Buffer
	base := slog.New(newConsoleHandler(&baseBuf, slog.LevelInfo, false))
	dir := t.TempDir()

	logger, closer, err := OpenJobLog(base, dir, "job-1")
	if err != nil {
		t.Fatalf("OpenJobLog: %v", err)
	}
	logger.Debug("chunk received", Backend("qobuz"))
	logger.Info("attempt started")
	if err := closer.Close(); err != nil {
		t.Fatalf("close job log: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "job-1.log"))
	if err != nil {
		t.Fatalf("read job log: %v", err)
	}
	content := string(data)
	for _, want := range []string{`"msg":"chunk received"`, `"msg":"attempt started"`, `"job_id":"job-1"`} {
		if !strings.Contains(content, want) {
			t.Fatalf("expected %s in job log %q", want, content)
		}
	}
	if strings.Contains(baseBuf.String(), "chunk received") {
		t.Fatal("base logger should not receive debug lines")
	}
	if !strings.Contains(baseBuf.String(), "attempt started") {
		t.Fatal("base logger should receive info lines")
	}
}
