package services

import "context"

type scopeKey struct{}

// Scope names the job, backend and request a call runs under. Empty fields
// are unknown.
type Scope struct {
	JobID     string
	Kind      string
	Backend   string
	RequestID string
}

// WithScope layers the non-empty fields of s over any scope already on ctx.
func WithScope(ctx context.Context, s Scope) context.Context {
	merged := ScopeFrom(ctx)
	changed := false
	set := func(dst *string, v string) {
		if v != "" && *dst != v {
			*dst = v
			changed = true
		}
	}
	set(&merged.JobID, s.JobID)
	set(&merged.Kind, s.Kind)
	set(&merged.Backend, s.Backend)
	set(&merged.RequestID, s.RequestID)
	if !changed {
		return ctx
	}
	return context.WithValue(ctx, scopeKey{}, merged)
}

// WithBackend is shorthand for scoping ctx to one backend adapter.
func WithBackend(ctx context.Context, name string) context.Context {
	return WithScope(ctx, Scope{Backend: name})
}

// ScopeFrom returns the scope carried by ctx, or the zero Scope.
func ScopeFrom(ctx context.Context) Scope {
	if ctx == nil {
		return Scope{}
	}
	s, _ := ctx.Value(scopeKey{}).(Scope)
	return s
}
