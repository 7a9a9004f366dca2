package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"retriever/internal/api"
	"retriever/internal/jobs"
	"retriever/internal/services"
)

const (
	exitOK          = 0
	exitRecoverable = 1
	exitFatal       = 2
)

// configError marks failures to load or apply configuration.
type configError struct{ err error }

func (e configError) Error() string { return "config: " + e.err.Error() }
func (e configError) Unwrap() error { return e.err }

// jobFailedError reports a job that finished failed or cancelled while the
// CLI was waiting on it.
type jobFailedError struct{ job *jobs.Job }

func (e *jobFailedError) Error() string {
	if e.job.State == jobs.StateCancelled {
		return fmt.Sprintf("job %s cancelled at %s", e.job.ID, e.job.CancelPoint)
	}
	if e.job.Error == nil {
		return fmt.Sprintf("job %s %s", e.job.ID, e.job.State)
	}
	return fmt.Sprintf("job %s failed (%s): %s", e.job.ID, e.job.Error.Kind, e.job.Error.Message)
}

func (e *jobFailedError) Is(target error) bool {
	if e.job.State == jobs.StateCancelled {
		return target == services.ErrCancelled
	}
	if e.job.Error == nil {
		return false
	}
	return target == services.Marker(e.job.Error.Kind)
}

func (e *jobFailedError) recoverable() bool {
	return e.job.State == jobs.StateCancelled || (e.job.Error != nil && e.job.Error.Recoverable)
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var cfgErr configError
	if errors.As(err, &cfgErr) {
		return exitFatal
	}
	if errors.Is(err, context.Canceled) || api.IsUnavailable(err) {
		return exitRecoverable
	}
	var jobErr *jobFailedError
	if errors.As(err, &jobErr) {
		if jobErr.recoverable() {
			return exitRecoverable
		}
		return exitFatal
	}
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		if apiErr.Payload.Recoverable {
			return exitRecoverable
		}
		return exitFatal
	}
	if services.Recoverable(services.KindOf(err)) {
		return exitRecoverable
	}
	return exitFatal
}

// cliError is the JSON shape written to stderr under --json.
type cliError struct {
	Error       string `json:"error"`
	Message     string `json:"message"`
	Hint        string `json:"hint,omitempty"`
	Recoverable bool   `json:"recoverable"`
	JobID       string `json:"job_id,omitempty"`
}

func describeError(err error) cliError {
	out := cliError{Message: err.Error(), Recoverable: exitCode(err) == exitRecoverable}
	var cfgErr configError
	var jobErr *jobFailedError
	var apiErr *api.Error
	switch {
	case errors.As(err, &cfgErr):
		out.Error = "config"
		out.Hint = "run `retriever config init` or fix the file named by --config"
	case api.IsUnavailable(err):
		out.Error = "daemon_unavailable"
		out.Hint = services.Details(err).Hint
	case errors.As(err, &jobErr):
		out.JobID = jobErr.job.ID
		if jobErr.job.Error != nil {
			out.Error = string(jobErr.job.Error.Kind)
			out.Hint = jobErr.job.Error.Hint
		} else {
			out.Error = string(services.KindCancelled)
		}
	case errors.As(err, &apiErr):
		out.Error = apiErr.Payload.Error
		out.Message = apiErr.Payload.Message
		out.Hint = apiErr.Payload.Hint
	default:
		details := services.Details(err)
		out.Error = string(details.Kind)
		out.Hint = details.Hint
	}
	return out
}

func reportError(w io.Writer, err error, asJSON bool) {
	if errors.Is(err, context.Canceled) && !asJSON {
		return
	}
	desc := describeError(err)
	if asJSON {
		_ = encodeJSON(w, desc)
		return
	}
	fmt.Fprintf(w, "Error: %s\n", desc.Message)
	if hint := strings.TrimSpace(desc.Hint); hint != "" {
		fmt.Fprintf(w, "Hint: %s\n", hint)
	}
}

// writeJSON prints v as indented JSON on the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	return encodeJSON(cmd.OutOrStdout(), v)
}

func encodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
