package backend

import (
	"fmt"
	"strings"
	"sync"

	"retriever/internal/jobs"
)

// Registry maps backend names to adapters, preserving registration order.
type Registry struct {
	mu     sync.RWMutex
	order  []string
	byName map[string]Adapter
}

// NewRegistry builds a registry from adapters.
func NewRegistry(adapters ...Adapter) (*Registry, error) {
	r := &Registry{byName: make(map[string]Adapter)}
	for _, adapter := range adapters {
		if err := r.Register(adapter); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds adapter. Names are case-insensitive and must be unique.
func (r *Registry) Register(adapter Adapter) error {
	if adapter == nil {
		return fmt.Errorf("register backend: nil adapter")
	}
	name := strings.ToLower(strings.TrimSpace(adapter.Name()))
	if name == "" {
		return fmt.Errorf("register backend: empty name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[name]; exists {
		return fmt.Errorf("register backend: %q already registered", name)
	}
	r.byName[name] = adapter
	r.order = append(r.order, name)
	return nil
}

// Get returns the adapter registered under name.
func (r *Registry) Get(name string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	return adapter, ok
}

// Names returns backend names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Capable returns, in registration order, the backends that support kind.
func (r *Registry) Capable(kind jobs.Kind) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for _, name := range r.order {
		if Supports(r.byName[name], kind) {
			out = append(out, name)
		}
	}
	return out
}

// Describe lists each backend with its capabilities.
func (r *Registry) Describe() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		adapter := r.byName[name]
		var kinds []jobs.Kind
		for _, kind := range jobs.AllKinds {
			if Supports(adapter, kind) {
				kinds = append(kinds, kind)
			}
		}
		out = append(out, Descriptor{Name: name, Capabilities: kinds})
	}
	return out
}

// Descriptor is the static description of a registered backend.
type Descriptor struct {
	Name         string      `json:"name"`
	Capabilities []jobs.Kind `json:"capabilities"`
}
