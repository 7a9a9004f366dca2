package logging

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
)

// teeHandler sends each record to every branch that accepts its level.
type teeHandler []slog.Handler

func tee(handlers ...slog.Handler) slog.Handler {
	var branches teeHandler
	for _, h := range handlers {
		if h != nil {
			branches = append(branches, h)
		}
	}
	switch len(branches) {
	case 0:
		return discard{}
	case 1:
		return branches[0]
	}
	return branches
}

func (t teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t teeHandler) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for _, h := range t {
		if h.Enabled(ctx, record.Level) {
			errs = append(errs, h.Handle(ctx, record.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return t.each(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	return t.each(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (t teeHandler) each(fn func(slog.Handler) slog.Handler) teeHandler {
	next := make(teeHandler, len(t))
	for i, h := range t {
		next[i] = fn(h)
	}
	return next
}

// OpenJobLog tees base into a debug-level JSON file at <dir>/<jobID>.log.
// Closing the returned closer releases the file.
func OpenJobLog(base *slog.Logger, dir, jobID string) (*slog.Logger, io.Closer, error) {
	file, err := openLogFile(filepath.Join(dir, jobID+".log"))
	if err != nil {
		return base, io.NopCloser(nil), err
	}
	var branches []slog.Handler
	if base != nil {
		branches = append(branches, base.Handler())
	}
	branches = append(branches, newJSONHandler(file, slog.LevelDebug, false).WithAttrs([]slog.Attr{JobID(jobID)}))
	return slog.New(tee(branches...)), file, nil
}
