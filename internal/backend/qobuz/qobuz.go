// Package qobuz downloads lossless audio from Qobuz through the qobuz-dl CLI.
package qobuz

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"retriever/internal/backend"
	"retriever/internal/backend/cmdrun"
	"retriever/internal/config"
	"retriever/internal/deps"
	"retriever/internal/jobs"
	"retriever/internal/logging"
	"retriever/internal/services"
)

// Name is the registry name of the adapter.
const Name = "qobuz"

const playBaseURL = "https://play.qobuz.com"

// Adapter implements backend.Fetcher.
type Adapter struct {
	cfg     config.Qobuz
	runner  cmdrun.Runner
	timeout time.Duration
	logger  *slog.Logger
}

// Option customizes an Adapter.
type Option func(*Adapter)

// WithRunner replaces the subprocess runner.
func WithRunner(r cmdrun.Runner) Option {
	return func(a *Adapter) { a.runner = r }
}

// WithLogger sets the adapter logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) {
		if logger != nil {
			a.logger = logging.NewComponentLogger(logger, Name)
		}
	}
}

// WithTimeout bounds each qobuz-dl invocation.
func WithTimeout(d time.Duration) Option {
	return func(a *Adapter) { a.timeout = d }
}

// New constructs the adapter from its config section.
func New(cfg config.Qobuz, opts ...Option) *Adapter {
	a := &Adapter{cfg: cfg, timeout: 30 * time.Minute, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(a)
	}
	if a.runner == nil {
		a.runner = cmdrun.Exec{Logger: a.logger}
	}
	return a
}

// Name implements backend.Adapter.
func (a *Adapter) Name() string { return Name }

// Capabilities implements backend.Adapter.
func (a *Adapter) Capabilities() []jobs.Kind { return []jobs.Kind{jobs.KindDownload} }

// HealthCheck reports whether qobuz-dl is installed.
func (a *Adapter) HealthCheck(context.Context) backend.Health {
	status := deps.Locate(deps.Tool{Backend: Name, Command: a.cfg.Binary, Purpose: "qobuz downloads"})
	if !status.Available {
		return backend.Unhealthy(Name, status.Detail)
	}
	return backend.Healthy(Name)
}

// Fetch downloads one album or track into destination (or the configured
// download directory). Success means at least one new top-level entry
// appeared in the destination.
func (a *Adapter) Fetch(ctx context.Context, ref backend.CandidateRef, destination string, progress backend.ProgressFunc) (jobs.Result, error) {
	if err := backend.Checkpoint(ctx, "before qobuz-dl"); err != nil {
		return jobs.Result{}, err
	}
	link, err := playURL(ref)
	if err != nil {
		return jobs.Result{}, err
	}
	dest := strings.TrimSpace(destination)
	if dest == "" {
		dest = a.cfg.DownloadDir
	}

	report(progress, jobs.Progress{Percent: 0, Message: "starting qobuz-dl"})
	cmd := cmdrun.Command{
		Binary:  a.cfg.Binary,
		Args:    []string{"dl", link, "-q", strconv.Itoa(a.cfg.Quality), "-d", dest, "--no-db"},
		Timeout: a.timeout,
		OnLine: func(line string) {
			if line = strings.TrimSpace(line); line != "" {
				report(progress, jobs.Progress{Message: line})
			}
		},
	}
	a.logger.Info("qobuz download started",
		logging.Event("download_start"),
		logging.String("url", link),
		logging.String("destination", dest),
	)
	added, out, runErr := cmdrun.RunIntoFolder(ctx, a.runner, dest, cmd)
	if err := backend.Checkpoint(ctx, "qobuz-dl transfer"); err != nil {
		return jobs.Result{}, err
	}
	if runErr != nil {
		return jobs.Result{}, cmdrun.ExitError(Name, link, out, runErr)
	}
	if len(added) == 0 {
		return jobs.Result{}, cmdrun.EmptyResultError(Name, link, out)
	}

	bytes := cmdrun.TreeSize(added)
	report(progress, jobs.Progress{Percent: 100, BytesDone: bytes, BytesTotal: bytes, ItemsDone: len(added), ItemsTotal: len(added)})
	a.logger.Info("qobuz download completed",
		logging.Event("download_complete"),
		logging.Int("entries", len(added)),
		logging.Int64("bytes", bytes),
	)
	return jobs.Result{Paths: added, Bytes: bytes, Count: len(added)}, nil
}

func playURL(ref backend.CandidateRef) (string, error) {
	raw := ref.URL
	if raw == "" {
		raw = ref.ID
	}
	parsed, ok := backend.ParseMediaRef(raw, ref.MediaType)
	if !ok {
		return "", services.Wrap(services.ErrNotFound, Name, "resolve", fmt.Sprintf("unrecognized reference %q", raw), nil)
	}
	if parsed.URL != "" {
		return parsed.URL, nil
	}
	return fmt.Sprintf("%s/%s/%s", playBaseURL, parsed.Type, parsed.ID), nil
}

func report(progress backend.ProgressFunc, p jobs.Progress) {
	if progress != nil {
		progress(p)
	}
}
