package api

import (
	"strings"

	"retriever/internal/feed"
	"retriever/internal/jobs"
	"retriever/internal/preflight"
	"retriever/internal/workflow"
)

// SubmitRequest is the body of POST /api/jobs.
type SubmitRequest struct {
	Kind              string      `json:"kind"`
	Target            jobs.Target `json:"target"`
	BackendPreference []string    `json:"backend_preference,omitempty"`
}

// ToWorkflowRequest converts the wire request, resolving kind aliases.
func (r SubmitRequest) ToWorkflowRequest() (workflow.Request, error) {
	kind, err := jobs.ParseKind(r.Kind)
	if err != nil {
		return workflow.Request{}, InvalidRequest(err.Error())
	}
	var pref []string
	for _, name := range r.BackendPreference {
		if name = strings.ToLower(strings.TrimSpace(name)); name != "" {
			pref = append(pref, name)
		}
	}
	return workflow.Request{Kind: kind, Target: r.Target, Preference: pref}, nil
}

// SubmitResponse answers a successful submission.
type SubmitResponse struct {
	JobID string    `json:"job_id"`
	Job   *jobs.Job `json:"job"`
}

// JobListResponse wraps a job listing.
type JobListResponse struct {
	Jobs []*jobs.Job `json:"jobs"`
}

// CancelResponse reports whether a cancel request was accepted.
type CancelResponse struct {
	Accepted bool      `json:"accepted"`
	Job      *jobs.Job `json:"job,omitempty"`
}

// PurgeRequest is the body of POST /api/jobs/purge. OlderThan is a Go
// duration such as "720h".
type PurgeRequest struct {
	OlderThan string `json:"older_than"`
}

// PurgeResponse reports how many finished jobs were deleted.
type PurgeResponse struct {
	Purged int64 `json:"purged"`
}

// ValidateRequest is the body of POST /api/validate. Passcode and token apply
// to every candidate.
type ValidateRequest struct {
	Backend    string   `json:"backend,omitempty"`
	Candidates []string `json:"candidates"`
	Passcode   string   `json:"passcode,omitempty"`
	Token      string   `json:"token,omitempty"`
}

// Target converts the request into a job target.
func (r ValidateRequest) Target() jobs.Target {
	return jobs.Target{Refs: r.Candidates, Passcode: r.Passcode, Token: r.Token}
}

// ValidateResponse carries results in candidate order and their summary.
type ValidateResponse struct {
	Backend string                  `json:"backend"`
	Results []jobs.ValidationResult `json:"results"`
	Summary jobs.ValidationSummary  `json:"summary"`
}

// BackendsResponse lists registered backends.
type BackendsResponse struct {
	Backends []feed.BackendStatus `json:"backends"`
}

// DaemonStatus aggregates daemon runtime information.
type DaemonStatus struct {
	Running      bool                   `json:"running"`
	PID          int                    `json:"pid"`
	DatabasePath string                 `json:"database_path"`
	LockPath     string                 `json:"lock_path"`
	LogPath      string                 `json:"log_path"`
	Workflow     workflow.StatusSummary `json:"workflow"`
	Preflight    []preflight.Result     `json:"preflight,omitempty"`
}
