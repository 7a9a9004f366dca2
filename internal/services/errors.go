package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorKind is the stable taxonomy every failure is reduced to before it is
// persisted or returned to a caller.
type ErrorKind string

const (
	KindNetwork            ErrorKind = "network"
	KindAuth               ErrorKind = "auth"
	KindQuota              ErrorKind = "quota"
	KindNotFound           ErrorKind = "not_found"
	KindExpired            ErrorKind = "expired"
	KindCapabilityMismatch ErrorKind = "capability_mismatch"
	KindInternal           ErrorKind = "internal"
	// KindCancelled only drives the cancelled job state and is never stored as an error.
	KindCancelled ErrorKind = "cancelled"
)

var (
	ErrNetwork            = errors.New("network error")
	ErrAuth               = errors.New("authentication error")
	ErrQuota              = errors.New("quota exhausted")
	ErrNotFound           = errors.New("not found")
	ErrExpired            = errors.New("expired")
	ErrCapabilityMismatch = errors.New("capability mismatch")
	ErrInternal           = errors.New("internal error")
	ErrCancelled          = errors.New("cancelled")
)

// markers is checked in order; earlier entries win when several markers are
// present in the same chain.
var markers = []struct {
	marker error
	kind   ErrorKind
}{
	{ErrCancelled, KindCancelled},
	{ErrCapabilityMismatch, KindCapabilityMismatch},
	{ErrAuth, KindAuth},
	{ErrQuota, KindQuota},
	{ErrExpired, KindExpired},
	{ErrNotFound, KindNotFound},
	{ErrNetwork, KindNetwork},
	{ErrInternal, KindInternal},
}

// Marker returns the sentinel error for kind.
func Marker(kind ErrorKind) error {
	for _, m := range markers {
		if m.kind == kind {
			return m.marker
		}
	}
	return ErrInternal
}

// Wrap builds an error message that includes backend context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, backend, operation, message string, err error) error {
	detail := buildDetail(backend, operation, message)
	if marker == nil {
		marker = ErrInternal
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

type hintError struct {
	err  error
	hint string
}

func (e *hintError) Error() string { return e.err.Error() }

func (e *hintError) Unwrap() error { return e.err }

// WithHint attaches an operator-facing next step to err.
func WithHint(err error, hint string) error {
	if err == nil || strings.TrimSpace(hint) == "" {
		return err
	}
	return &hintError{err: err, hint: strings.TrimSpace(hint)}
}

// KindOf reports the taxonomy kind for err. Tagged errors keep their marker;
// untagged errors are classified from their shape and message.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	for _, m := range markers {
		if errors.Is(err, m.marker) {
			return m.kind
		}
	}
	return Classify(err)
}

// Recoverable reports whether a failure of kind permits fallback to another backend.
func Recoverable(kind ErrorKind) bool {
	switch kind {
	case KindNetwork, KindQuota:
		return true
	default:
		return false
	}
}

// DefaultHint returns the standard operator hint for kind.
func DefaultHint(kind ErrorKind) string {
	switch kind {
	case KindNetwork:
		return "check connectivity and retry"
	case KindAuth:
		return "refresh credentials for the backend and retry"
	case KindQuota:
		return "wait for the backend quota to reset or use another backend"
	case KindNotFound:
		return "verify the identifier or search again"
	case KindExpired:
		return "the resource has expired; search for a fresh candidate"
	case KindCapabilityMismatch:
		return "enable a backend that supports this job kind"
	case KindCancelled:
		return "resubmit the job if it is still needed"
	default:
		return "check daemon logs for details"
	}
}

// ErrorDetails is the flattened, serializable view of a classified error.
type ErrorDetails struct {
	Kind        ErrorKind
	Message     string
	Hint        string
	Recoverable bool
	Cause       error
}

// Details classifies err and resolves its hint.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	kind := KindOf(err)
	hint := DefaultHint(kind)
	var hinted *hintError
	if errors.As(err, &hinted) {
		hint = hinted.hint
	}
	return ErrorDetails{
		Kind:        kind,
		Message:     err.Error(),
		Hint:        hint,
		Recoverable: Recoverable(kind),
		Cause:       err,
	}
}

func buildDetail(backend, operation, message string) string {
	parts := make([]string, 0, 3)
	if backend = strings.TrimSpace(backend); backend != "" {
		parts = append(parts, backend)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
