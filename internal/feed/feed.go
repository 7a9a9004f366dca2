package feed

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"retriever/internal/backend"
	"retriever/internal/jobs"
	"retriever/internal/services"
)

// Reader abstracts the store queries the feed needs.
type Reader interface {
	Get(ctx context.Context, id string) (*jobs.Job, error)
	List(ctx context.Context, filter jobs.Filter) ([]*jobs.Job, error)
	Stats(ctx context.Context) (map[jobs.State]int, error)
}

// HealthSource supplies the current backend health records.
type HealthSource interface {
	Snapshot() map[string]backend.Health
}

// Feed answers status queries.
type Feed struct {
	store    Reader
	health   HealthSource
	backends []backend.Descriptor
	now      func() time.Time
}

// New constructs a Feed. health and backends may be nil.
func New(store Reader, health HealthSource, backends []backend.Descriptor) *Feed {
	return &Feed{store: store, health: health, backends: backends, now: time.Now}
}

// BackendStatus pairs a backend's capabilities with its health.
type BackendStatus struct {
	backend.Health
	Capabilities []jobs.Kind `json:"capabilities"`
}

// Overview is the dashboard summary.
type Overview struct {
	Counts      map[jobs.State]int `json:"counts"`
	Active      int                `json:"active"`
	Total       int                `json:"total"`
	Backends    []BackendStatus    `json:"backends"`
	GeneratedAt time.Time          `json:"generated_at"`
}

// Job returns a single job. Unknown ids yield a not_found error.
func (f *Feed) Job(ctx context.Context, id string) (*jobs.Job, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, jobs.ErrNotFound
	}
	return f.store.Get(ctx, id)
}

// Jobs lists jobs matching filter in creation order.
func (f *Feed) Jobs(ctx context.Context, filter jobs.Filter) ([]*jobs.Job, error) {
	list, err := f.store.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []*jobs.Job{}
	}
	return list, nil
}

// Overview counts jobs per state and reports backend health.
func (f *Feed) Overview(ctx context.Context) (Overview, error) {
	stats, err := f.store.Stats(ctx)
	if err != nil {
		return Overview{}, err
	}
	out := Overview{
		Counts:      make(map[jobs.State]int, len(jobs.AllStates)),
		GeneratedAt: f.now().UTC(),
	}
	for _, state := range jobs.AllStates {
		count := stats[state]
		out.Counts[state] = count
		out.Total += count
		if !state.IsTerminal() {
			out.Active += count
		}
	}
	out.Backends = f.Backends()
	return out, nil
}

// Backends returns every known backend with its health, in registry order.
// Backends that only appear in the health records are appended by name.
func (f *Feed) Backends() []BackendStatus {
	var snapshot map[string]backend.Health
	if f.health != nil {
		snapshot = f.health.Snapshot()
	}
	out := make([]BackendStatus, 0, len(f.backends))
	seen := make(map[string]bool, len(f.backends))
	for _, desc := range f.backends {
		h, ok := snapshot[desc.Name]
		if !ok {
			h = backend.Health{Name: desc.Name, Status: backend.HealthAvailable}
		}
		out = append(out, BackendStatus{Health: h, Capabilities: desc.Capabilities})
		seen[desc.Name] = true
	}
	var extra []string
	for name := range snapshot {
		if !seen[name] {
			extra = append(extra, name)
		}
	}
	slices.Sort(extra)
	for _, name := range extra {
		out = append(out, BackendStatus{Health: snapshot[name]})
	}
	return out
}

// Scope values accepted by ParseFilter.
const (
	ScopeActive = "active"
	ScopeAll    = "all"
)

// ParseFilter builds a store filter from query-style inputs. Explicit states
// win over scope. An empty scope means all jobs.
func ParseFilter(scope string, states []string, backendName, kind string) (jobs.Filter, error) {
	var filter jobs.Filter
	switch strings.ToLower(strings.TrimSpace(scope)) {
	case "", ScopeAll:
	case ScopeActive:
		filter = jobs.ActiveFilter()
	default:
		return jobs.Filter{}, services.Wrap(services.ErrInternal, "", "parse filter", fmt.Sprintf("unknown filter %q (want active or all)", scope), nil)
	}
	var parsed []jobs.State
	for _, raw := range states {
		for _, part := range strings.Split(raw, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			state, err := jobs.ParseState(part)
			if err != nil {
				return jobs.Filter{}, services.Wrap(services.ErrInternal, "", "parse filter", err.Error(), nil)
			}
			parsed = append(parsed, state)
		}
	}
	if len(parsed) > 0 {
		filter.States = parsed
	}
	filter.Backend = strings.ToLower(strings.TrimSpace(backendName))
	if strings.TrimSpace(kind) != "" {
		k, err := jobs.ParseKind(kind)
		if err != nil {
			return jobs.Filter{}, services.Wrap(services.ErrInternal, "", "parse filter", err.Error(), nil)
		}
		filter.Kind = k
	}
	return filter, nil
}
