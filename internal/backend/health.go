package backend

import (
	"sync"
	"time"

	"retriever/internal/metrics"
	"retriever/internal/services"
)

// HealthStatus is the coarse availability of a backend.
type HealthStatus string

const (
	HealthAvailable   HealthStatus = "available"
	HealthDegraded    HealthStatus = "degraded"
	HealthUnavailable HealthStatus = "unavailable"
)

// Health summarizes the readiness of a backend.
type Health struct {
	Name        string       `json:"name"`
	Status      HealthStatus `json:"status"`
	LastSuccess *time.Time   `json:"last_success,omitempty"`
	LastFailure *time.Time   `json:"last_failure,omitempty"`
	Detail      string       `json:"detail,omitempty"`
}

// Healthy constructs an available Health record.
func Healthy(name string) Health {
	return Health{Name: name, Status: HealthAvailable}
}

// Unhealthy constructs an unavailable Health record with context detail.
func Unhealthy(name, detail string) Health {
	return Health{Name: name, Status: HealthUnavailable, Detail: detail}
}

// HealthTracker is the single mutable health record for all backends.
// Readers take a Snapshot.
type HealthTracker struct {
	mu      sync.Mutex
	records map[string]Health
	now     func() time.Time
}

// NewHealthTracker starts every named backend as available.
func NewHealthTracker(names ...string) *HealthTracker {
	t := &HealthTracker{records: make(map[string]Health, len(names)), now: time.Now}
	for _, name := range names {
		t.records[name] = Healthy(name)
		metrics.SetBackendHealth(name, gaugeValue(HealthAvailable))
	}
	return t
}

// Observe folds the outcome of a backend call into its health. Network
// failures mark the backend unavailable and quota failures mark it degraded.
// A success restores it. Other failure kinds only update the detail.
func (t *HealthTracker) Observe(name string, err error) Health {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[name]
	if !ok {
		rec = Healthy(name)
	}
	now := t.now().UTC()
	if err == nil {
		rec.Status = HealthAvailable
		rec.LastSuccess = &now
		rec.Detail = ""
	} else {
		kind := services.KindOf(err)
		if kind == services.KindCancelled {
			return rec
		}
		rec.LastFailure = &now
		rec.Detail = err.Error()
		switch kind {
		case services.KindNetwork:
			rec.Status = HealthUnavailable
		case services.KindQuota:
			rec.Status = HealthDegraded
		}
	}
	t.records[name] = rec
	metrics.SetBackendHealth(name, gaugeValue(rec.Status))
	return rec
}

// Set replaces the record for name, used for startup probes.
func (t *HealthTracker) Set(h Health) {
	if h.Name == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	prev := t.records[h.Name]
	if h.LastSuccess == nil {
		h.LastSuccess = prev.LastSuccess
	}
	if h.LastFailure == nil {
		h.LastFailure = prev.LastFailure
	}
	t.records[h.Name] = h
	metrics.SetBackendHealth(h.Name, gaugeValue(h.Status))
}

// Get returns the record for name.
func (t *HealthTracker) Get(name string) (Health, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[name]
	return copyHealth(rec), ok
}

// Snapshot returns an immutable copy of every record.
func (t *HealthTracker) Snapshot() map[string]Health {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]Health, len(t.records))
	for name, rec := range t.records {
		out[name] = copyHealth(rec)
	}
	return out
}

func copyHealth(h Health) Health {
	if h.LastSuccess != nil {
		ts := *h.LastSuccess
		h.LastSuccess = &ts
	}
	if h.LastFailure != nil {
		ts := *h.LastFailure
		h.LastFailure = &ts
	}
	return h
}

func gaugeValue(status HealthStatus) float64 {
	switch status {
	case HealthAvailable:
		return metrics.HealthAvailable
	case HealthDegraded:
		return metrics.HealthDegraded
	default:
		return metrics.HealthUnavailable
	}
}
