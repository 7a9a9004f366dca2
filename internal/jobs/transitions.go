package jobs

import (
	"errors"
	"fmt"
	"time"

	"retriever/internal/services"
)

// ErrInvalidTransition is returned when a state change would break the job
// lifecycle. It carries the internal error kind.
var ErrInvalidTransition = fmt.Errorf("invalid job state transition: %w", services.ErrInternal)

var allowedTransitions = map[State]map[State]bool{
	StateQueued: {
		StateRunning:   true,
		StateCancelled: true,
		StateFailed:    true,
	},
	StateRunning: {
		StateCompleted: true,
		StateFailed:    true,
		StateCancelled: true,
	},
	StateFailed: {
		StateQueued: true,
	},
}

// CanTransition reports whether from -> to is a lifecycle edge.
func CanTransition(from, to State) bool {
	return allowedTransitions[from][to]
}

// canPersist also accepts same-state snapshot writes for non-terminal jobs,
// which is how progress updates are stored.
func canPersist(from, to State) bool {
	if from == to {
		return !from.IsTerminal()
	}
	return CanTransition(from, to)
}

func transitionError(from, to State) error {
	return fmt.Errorf("%w: %q -> %q", ErrInvalidTransition, from, to)
}

// Transition moves the job to state to, enforcing the lifecycle and the
// result/error field rules.
func (j *Job) Transition(to State, now time.Time) error {
	if !CanTransition(j.State, to) {
		return transitionError(j.State, to)
	}
	j.State = to
	j.UpdatedAt = now.UTC()
	switch to {
	case StateQueued, StateRunning:
		j.Result = nil
		j.Error = nil
		j.CancelPoint = ""
	case StateCompleted, StateCancelled:
		j.Error = nil
	case StateFailed:
		j.Result = nil
	}
	return nil
}

// Complete settles a running job with result.
func (j *Job) Complete(result Result, now time.Time) error {
	if err := j.Transition(StateCompleted, now); err != nil {
		return err
	}
	j.EndAttempt(OutcomeCompleted, nil, now)
	j.Result = &result
	j.Progress.Percent = 100
	return nil
}

// Fail settles the job as failed with the classified cause.
func (j *Job) Fail(cause error, now time.Time) error {
	if err := j.Transition(StateFailed, now); err != nil {
		return err
	}
	j.EndAttempt(OutcomeFailed, cause, now)
	j.Error = ErrorInfoFrom(cause)
	if j.Error == nil {
		j.Error = ErrorInfoFrom(errors.New("job failed without a recorded cause"))
	}
	return nil
}

// Cancel settles the job as cancelled, recording where cancellation took effect.
func (j *Job) Cancel(point string, now time.Time) error {
	if err := j.Transition(StateCancelled, now); err != nil {
		return err
	}
	j.EndAttempt(OutcomeCancelled, nil, now)
	j.CancelPoint = point
	return nil
}

// attemptsAppendOnly verifies next extends prior without rewriting closed entries.
func attemptsAppendOnly(prior, next []Attempt) bool {
	if len(next) < len(prior) {
		return false
	}
	for i, attempt := range prior {
		candidate := next[i]
		if candidate.Backend != attempt.Backend || !candidate.StartedAt.Equal(attempt.StartedAt) {
			return false
		}
		if attempt.Outcome != OutcomeRunning && candidate.Outcome != attempt.Outcome {
			return false
		}
	}
	return true
}
