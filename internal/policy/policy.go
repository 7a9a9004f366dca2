// Package policy orders the backends a job walks through.
//
// Ordering is a pure function of its Input: the caller passes a health
// snapshot and the set of quota-exhausted backends, and gets back the
// candidate list for one submission. Nothing is cached between calls.
package policy

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"retriever/internal/backend"
	"retriever/internal/jobs"
	"retriever/internal/services"
)

// Input is everything Order needs to rank backends for one submission.
type Input struct {
	Kind jobs.Kind
	// Preference is the caller's ordering. When empty, Default is used.
	Preference []string
	Default    []string
	// AppendUnlisted adds capable backends missing from the preference,
	// in registry order.
	AppendUnlisted bool
	// Capable lists the backends able to run Kind, in registry order.
	Capable   []string
	Health    map[string]backend.Health
	Exhausted map[string]bool
	Now       time.Time
	Window    time.Duration
}

// Order returns the candidate backends for in. It fails with a
// capability_mismatch error when no capable backend remains.
func Order(in Input) ([]string, error) {
	if len(in.Capable) == 0 {
		return nil, mismatch(in.Kind, "no backend supports it")
	}

	listed := in.Preference
	if len(normalize(listed)) == 0 {
		listed = in.Default
	}
	listed = normalize(listed)

	var ordered []string
	for _, name := range listed {
		if slices.Contains(in.Capable, name) && !slices.Contains(ordered, name) {
			ordered = append(ordered, name)
		}
	}
	if len(listed) == 0 || in.AppendUnlisted {
		for _, name := range in.Capable {
			if !slices.Contains(ordered, name) {
				ordered = append(ordered, name)
			}
		}
	}
	if len(ordered) == 0 {
		return nil, mismatch(in.Kind, fmt.Sprintf("none of %s supports it", strings.Join(listed, ", ")))
	}

	kept := make([]string, 0, len(ordered))
	for _, name := range ordered {
		if !skip(in, name) {
			kept = append(kept, name)
		}
	}
	if len(kept) == 0 {
		// No alternative left: try them all anyway.
		return ordered, nil
	}
	return kept, nil
}

// skip reports whether name should be passed over while alternatives exist.
func skip(in Input, name string) bool {
	if in.Exhausted[name] {
		return true
	}
	h, ok := in.Health[name]
	if !ok || h.Status != backend.HealthUnavailable {
		return false
	}
	if h.LastSuccess == nil {
		return true
	}
	return in.Now.Sub(*h.LastSuccess) > in.Window
}

func normalize(names []string) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		if name = strings.ToLower(strings.TrimSpace(name)); name != "" {
			out = append(out, name)
		}
	}
	return out
}

func mismatch(kind jobs.Kind, detail string) error {
	return services.WithHint(
		services.Wrap(services.ErrCapabilityMismatch, "", "order backends", fmt.Sprintf("%s: %s", kind, detail), nil),
		"enable a backend that supports "+string(kind)+" or change the preference",
	)
}
