package workflow

import (
	"context"
	"io"
	"log/slog"

	"retriever/internal/jobs"
	"retriever/internal/logging"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// jobLogger tags base with the job context and, when enabled, tees it into
// the job's own log file.
func (m *Manager) jobLogger(ctx context.Context, base *slog.Logger, job *jobs.Job) (*slog.Logger, io.Closer) {
	logger := logging.WithContext(ctx, base)
	if m.cfg == nil || !m.cfg.Logging.JobLog {
		return logger, nopCloser{}
	}
	jobLog, closer, err := logging.OpenJobLog(logger, m.cfg.JobLogDir(), job.ID)
	if err != nil {
		logging.Problem(ctx, logger, slog.LevelWarn, "job_log_unavailable", "job log unavailable", err,
			logging.Hint("check log_dir permissions"),
		)
		return logger, nopCloser{}
	}
	return jobLog, closer
}
