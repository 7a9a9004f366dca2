package jobs

import (
	"fmt"
	"strings"
	"time"

	"retriever/internal/services"
)

// Kind names the operation a job performs.
type Kind string

const (
	KindSearch   Kind = "search"
	KindDownload Kind = "download"
	KindValidate Kind = "validate"
	KindSave     Kind = "save"
)

// AllKinds lists every job kind in display order.
var AllKinds = []Kind{KindSearch, KindDownload, KindValidate, KindSave}

// ParseKind normalizes user input into a Kind. "fetch" is accepted as an
// alias for download.
func ParseKind(value string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "search":
		return KindSearch, nil
	case "download", "fetch":
		return KindDownload, nil
	case "validate":
		return KindValidate, nil
	case "save":
		return KindSave, nil
	default:
		return "", fmt.Errorf("unknown job kind %q", value)
	}
}

// State represents the lifecycle of a job.
type State string

const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// AllStates lists every state in lifecycle order.
var AllStates = []State{StateQueued, StateRunning, StateCompleted, StateFailed, StateCancelled}

// ActiveStates are the non-terminal states.
var ActiveStates = []State{StateQueued, StateRunning}

// ParseState normalizes user input into a State.
func ParseState(value string) (State, error) {
	candidate := State(strings.ToLower(strings.TrimSpace(value)))
	for _, state := range AllStates {
		if state == candidate {
			return state, nil
		}
	}
	return "", fmt.Errorf("unknown job state %q", value)
}

// IsTerminal reports whether no worker will touch a job in this state again.
func (s State) IsTerminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

// Target is the opaque payload describing what a job operates on.
type Target struct {
	Ref         string            `json:"ref,omitempty"`
	Refs        []string          `json:"refs,omitempty"`
	MediaType   string            `json:"media_type,omitempty"`
	Query       string            `json:"query,omitempty"`
	Passcode    string            `json:"passcode,omitempty"`
	Token       string            `json:"token,omitempty"`
	Destination string            `json:"destination,omitempty"`
	Limit       int               `json:"limit,omitempty"`
	Validate    bool              `json:"validate,omitempty"`
	Filters     map[string]string `json:"filters,omitempty"`
}

// AllRefs returns Ref followed by Refs with blanks removed. Duplicates are kept
// so every submitted reference is processed.
func (t Target) AllRefs() []string {
	refs := make([]string, 0, len(t.Refs)+1)
	if ref := strings.TrimSpace(t.Ref); ref != "" {
		refs = append(refs, ref)
	}
	for _, ref := range t.Refs {
		if ref = strings.TrimSpace(ref); ref != "" {
			refs = append(refs, ref)
		}
	}
	return refs
}

// Progress is the advisory progress snapshot of a running job.
type Progress struct {
	Percent    float64 `json:"percent"`
	BytesDone  int64   `json:"bytes_done,omitempty"`
	BytesTotal int64   `json:"bytes_total,omitempty"`
	ItemsDone  int     `json:"items_done,omitempty"`
	ItemsTotal int     `json:"items_total,omitempty"`
	Message    string  `json:"message,omitempty"`
}

// Candidate is a resource reference returned by a search.
type Candidate struct {
	ID        string            `json:"id"`
	Backend   string            `json:"backend"`
	Title     string            `json:"title,omitempty"`
	URL       string            `json:"url,omitempty"`
	Source    string            `json:"source,omitempty"`
	Published string            `json:"published,omitempty"`
	Extra     map[string]string `json:"extra,omitempty"`
}

// ValidationStatus is the outcome of checking a single candidate.
type ValidationStatus string

const (
	ValidationValid            ValidationStatus = "valid"
	ValidationExpired          ValidationStatus = "expired"
	ValidationNotFound         ValidationStatus = "not_found"
	ValidationPasswordRequired ValidationStatus = "password_required"
	ValidationError            ValidationStatus = "error"
)

// ValidationResult records whether a candidate is usable right now.
type ValidationResult struct {
	CandidateID string           `json:"candidate_id"`
	Status      ValidationStatus `json:"status"`
	Detail      map[string]any   `json:"detail,omitempty"`
	CheckedAt   time.Time        `json:"checked_at"`
}

// ValidationSummary aggregates a validation batch.
type ValidationSummary struct {
	Total              int                      `json:"total"`
	Valid              int                      `json:"valid"`
	ByStatus           map[ValidationStatus]int `json:"by_status"`
	NeedsBroaderSearch bool                     `json:"needs_broader_search"`
}

// HandoffTry is a single save hand-off strategy that was attempted.
type HandoffTry struct {
	Method string `json:"method"`
	Error  string `json:"error,omitempty"`
}

// Handoff describes which save strategy succeeded.
type Handoff struct {
	Method string         `json:"method"`
	Tried  []HandoffTry   `json:"tried,omitempty"`
	URL    string         `json:"url,omitempty"`
	Detail map[string]any `json:"detail,omitempty"`
}

// Result is present only on completed jobs.
type Result struct {
	Paths       []string           `json:"paths,omitempty"`
	Bytes       int64              `json:"bytes,omitempty"`
	Count       int                `json:"count"`
	Candidates  []Candidate        `json:"candidates,omitempty"`
	Validations []ValidationResult `json:"validations,omitempty"`
	Summary     *ValidationSummary `json:"summary,omitempty"`
	Handoffs    []Handoff          `json:"handoffs,omitempty"`
}

// Merge folds other into r, used when a job spans several references.
func (r *Result) Merge(other Result) {
	r.Paths = append(r.Paths, other.Paths...)
	r.Bytes += other.Bytes
	r.Count += other.Count
	r.Candidates = append(r.Candidates, other.Candidates...)
	r.Validations = append(r.Validations, other.Validations...)
	r.Handoffs = append(r.Handoffs, other.Handoffs...)
	if other.Summary != nil {
		r.Summary = other.Summary
	}
}

// ErrorInfo is the structured error stored on failed jobs.
type ErrorInfo struct {
	Kind        services.ErrorKind `json:"kind"`
	Message     string             `json:"message"`
	Hint        string             `json:"hint,omitempty"`
	Recoverable bool               `json:"recoverable"`
}

// ErrorInfoFrom classifies err into the stored error shape.
func ErrorInfoFrom(err error) *ErrorInfo {
	if err == nil {
		return nil
	}
	details := services.Details(err)
	return &ErrorInfo{
		Kind:        details.Kind,
		Message:     details.Message,
		Hint:        details.Hint,
		Recoverable: details.Recoverable,
	}
}

// AttemptOutcome is the state of a single backend attempt.
type AttemptOutcome string

const (
	OutcomeRunning   AttemptOutcome = "running"
	OutcomeCompleted AttemptOutcome = "completed"
	OutcomeFailed    AttemptOutcome = "failed"
	OutcomeCancelled AttemptOutcome = "cancelled"
)

// Attempt records one try of a job against one backend.
type Attempt struct {
	Backend   string             `json:"backend"`
	StartedAt time.Time          `json:"started_at"`
	EndedAt   *time.Time         `json:"ended_at,omitempty"`
	Outcome   AttemptOutcome     `json:"outcome"`
	ErrorKind services.ErrorKind `json:"error_kind,omitempty"`
	Message   string             `json:"message,omitempty"`
}

// Job is the durable record of one submission.
type Job struct {
	ID          string     `json:"id"`
	Kind        Kind       `json:"kind"`
	Backend     string     `json:"backend,omitempty"`
	Target      Target     `json:"target"`
	State       State      `json:"state"`
	Progress    Progress   `json:"progress"`
	Result      *Result    `json:"result,omitempty"`
	Error       *ErrorInfo `json:"error,omitempty"`
	Attempts    []Attempt  `json:"attempts"`
	Candidates  []string   `json:"candidates"`
	CancelPoint string     `json:"cancel_point,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Clone returns a deep copy safe to hand to another goroutine.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	out := *j
	out.Target.Refs = append([]string(nil), j.Target.Refs...)
	if j.Target.Filters != nil {
		out.Target.Filters = make(map[string]string, len(j.Target.Filters))
		for k, v := range j.Target.Filters {
			out.Target.Filters[k] = v
		}
	}
	out.Attempts = append([]Attempt(nil), j.Attempts...)
	out.Candidates = append([]string(nil), j.Candidates...)
	if j.Result != nil {
		res := *j.Result
		res.Paths = append([]string(nil), j.Result.Paths...)
		res.Candidates = append([]Candidate(nil), j.Result.Candidates...)
		res.Validations = append([]ValidationResult(nil), j.Result.Validations...)
		res.Handoffs = append([]Handoff(nil), j.Result.Handoffs...)
		out.Result = &res
	}
	if j.Error != nil {
		errInfo := *j.Error
		out.Error = &errInfo
	}
	return &out
}

// CurrentAttempt returns the open attempt, if any.
func (j *Job) CurrentAttempt() *Attempt {
	if len(j.Attempts) == 0 {
		return nil
	}
	last := &j.Attempts[len(j.Attempts)-1]
	if last.Outcome != OutcomeRunning {
		return nil
	}
	return last
}

// BeginAttempt appends a running attempt for backend.
func (j *Job) BeginAttempt(backend string, now time.Time) {
	j.Backend = backend
	j.Attempts = append(j.Attempts, Attempt{
		Backend:   backend,
		StartedAt: now.UTC(),
		Outcome:   OutcomeRunning,
	})
}

// EndAttempt closes the open attempt with outcome. It is a no-op when no
// attempt is running.
func (j *Job) EndAttempt(outcome AttemptOutcome, err error, now time.Time) {
	current := j.CurrentAttempt()
	if current == nil {
		return
	}
	ended := now.UTC()
	current.EndedAt = &ended
	current.Outcome = outcome
	if err != nil {
		current.ErrorKind = services.KindOf(err)
		current.Message = err.Error()
	}
}
