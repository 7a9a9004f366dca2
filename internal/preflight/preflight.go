package preflight

import (
	"context"

	"golang.org/x/sync/errgroup"

	"retriever/internal/config"
	"retriever/internal/deps"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// Check is one readiness probe.
type Check func(ctx context.Context) Result

// Plan lists the checks that apply to cfg, in reporting order.
func Plan(cfg *config.Config) []Check {
	if cfg == nil {
		return nil
	}
	checks := []Check{
		directory("State directory", cfg.Paths.StateDir),
		directory("Log directory", cfg.Paths.LogDir),
		directory("Download directory", cfg.Paths.DownloadDir),
	}
	for _, tool := range deps.ForConfig(cfg) {
		checks = append(checks, func(context.Context) Result { return ToolResult(deps.Locate(tool)) })
	}
	if cfg.Quark.Enabled {
		url := cfg.Quark.PanSouURL + "/health"
		checks = append(checks, func(ctx context.Context) Result { return CheckEndpoint(ctx, "PanSou", url) })
	}
	return checks
}

// RunAll runs every check in Plan(cfg) concurrently. Results keep plan order.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	checks := Plan(cfg)
	if checks == nil {
		return nil
	}
	results := make([]Result, len(checks))
	var g errgroup.Group
	for i, check := range checks {
		g.Go(func() error {
			results[i] = check(ctx)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}

// ToolResult converts a located tool into a check result named
// "<backend> tool".
func ToolResult(st deps.Status) Result {
	r := Result{Name: st.Backend + " tool", Passed: st.Available, Detail: st.Detail}
	if st.Available {
		r.Detail = st.Path
	}
	return r
}

func directory(name, path string) Check {
	return func(context.Context) Result { return CheckDirectoryAccess(name, path) }
}
