// Package tidal downloads lossless audio from TIDAL through the tiddl CLI.
package tidal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
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
const Name = "tidal"

const (
	browseBaseURL  = "https://tidal.com/browse"
	refreshTimeout = 30 * time.Second
)

// Adapter implements backend.Fetcher.
type Adapter struct {
	cfg     config.Tidal
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

// WithTimeout bounds each tiddl download invocation.
func WithTimeout(d time.Duration) Option {
	return func(a *Adapter) { a.timeout = d }
}

// New constructs the adapter from its config section.
func New(cfg config.Tidal, opts ...Option) *Adapter {
	a := &Adapter{cfg: cfg, timeout: 10 * time.Minute, logger: logging.NewNop()}
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

// HealthCheck reports whether tiddl is installed.
func (a *Adapter) HealthCheck(context.Context) backend.Health {
	status := deps.Locate(deps.Tool{Backend: Name, Command: a.cfg.Binary, Purpose: "tidal downloads"})
	if !status.Available {
		return backend.Unhealthy(Name, status.Detail)
	}
	return backend.Healthy(Name)
}

// Fetch downloads one album or track. An auth failure triggers a single
// token refresh followed by one rerun.
func (a *Adapter) Fetch(ctx context.Context, ref backend.CandidateRef, destination string, progress backend.ProgressFunc) (jobs.Result, error) {
	if err := backend.Checkpoint(ctx, "before tiddl"); err != nil {
		return jobs.Result{}, err
	}
	link, err := browseURL(ref)
	if err != nil {
		return jobs.Result{}, err
	}
	dest := strings.TrimSpace(destination)
	if dest == "" {
		dest = a.cfg.DownloadDir
	}

	refreshed := false
	for {
		report(progress, jobs.Progress{Percent: 0, Message: "starting tiddl"})
		added, out, runErr := cmdrun.RunIntoFolder(ctx, a.runner, dest, a.downloadCommand(link, dest, progress))
		if err := backend.Checkpoint(ctx, "tiddl transfer"); err != nil {
			return jobs.Result{}, err
		}
		if runErr != nil {
			classified := cmdrun.ExitError(Name, link, out, runErr)
			if errors.Is(classified, services.ErrAuth) && !refreshed {
				refreshed = true
				if a.refresh(ctx) {
					a.logger.Info("tidal token refreshed, retrying download",
						logging.Event("auth_refresh"),
					)
					continue
				}
				return jobs.Result{}, services.WithHint(classified, "TIDAL session expired and refresh failed; run: tiddl auth login")
			}
			return jobs.Result{}, classified
		}
		if len(added) == 0 {
			return jobs.Result{}, cmdrun.EmptyResultError(Name, link, out)
		}
		bytes := cmdrun.TreeSize(added)
		report(progress, jobs.Progress{Percent: 100, BytesDone: bytes, BytesTotal: bytes, ItemsDone: len(added), ItemsTotal: len(added)})
		return jobs.Result{Paths: added, Bytes: bytes, Count: len(added)}, nil
	}
}

func (a *Adapter) downloadCommand(link, dest string, progress backend.ProgressFunc) cmdrun.Command {
	return cmdrun.Command{
		Binary:  a.cfg.Binary,
		Args:    []string{"url", link, "download", "-q", a.cfg.Quality, "-p", dest},
		Timeout: a.timeout,
		OnLine: func(line string) {
			if line = strings.TrimSpace(line); line != "" {
				report(progress, jobs.Progress{Message: line})
			}
		},
	}
}

func (a *Adapter) refresh(ctx context.Context) bool {
	_, err := a.runner.Run(ctx, cmdrun.Command{
		Binary:  a.cfg.Binary,
		Args:    []string{"auth", "refresh"},
		Timeout: refreshTimeout,
	})
	if err != nil {
		a.logger.Warn("tidal token refresh failed",
			logging.Event("auth_refresh_failed"),
			logging.Hint("run: tiddl auth login"),
			logging.Error(err),
		)
		return false
	}
	return true
}

func browseURL(ref backend.CandidateRef) (string, error) {
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
	return fmt.Sprintf("%s/%s/%s", browseBaseURL, parsed.Type, parsed.ID), nil
}

func report(progress backend.ProgressFunc, p jobs.Progress) {
	if progress != nil {
		progress(p)
	}
}
