package cmdrun

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"retriever/internal/services"
)

// ClassifyOutput maps downloader CLI output to the error taxonomy.
// Vendor tools report rate limiting loosely, so any "limit" counts as quota.
func ClassifyOutput(text string) services.ErrorKind {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "limit") || strings.Contains(lower, "429"):
		return services.KindQuota
	case strings.Contains(lower, "not found") || strings.Contains(lower, "404"):
		return services.KindNotFound
	}
	if kind := services.ClassifyMessage(lower); kind != "" {
		return kind
	}
	return services.KindInternal
}

// ExitError tags a failed run with the kind found in its output. Errors that
// are not process exits (timeouts, cancellation, start failures) are
// returned unchanged since they are already tagged.
func ExitError(backend, subject string, out Output, err error) error {
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return err
	}
	text := out.Combined()
	kind := ClassifyOutput(text)
	return services.Wrap(services.Marker(kind), backend, "download", fmt.Sprintf("%s: %s", subject, LastLine(text)), err)
}

// EmptyResultError explains a zero-exit run that produced no files.
func EmptyResultError(backend, id string, out Output) error {
	text := strings.ToLower(out.Combined())
	if strings.Contains(text, "not found") || strings.Contains(text, "error") {
		return services.Wrap(services.ErrNotFound, backend, "download", fmt.Sprintf("%s not found; verify the id", id), nil)
	}
	if kind := ClassifyOutput(text); kind == services.KindQuota || kind == services.KindAuth {
		return services.Wrap(services.Marker(kind), backend, "download", LastLine(out.Combined()), nil)
	}
	return services.Wrap(services.ErrNotFound, backend, "download", fmt.Sprintf("no files were created; %s may be invalid", id), nil)
}

// LastLine returns the last non-blank line of text.
func LastLine(text string) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return "no output"
}
