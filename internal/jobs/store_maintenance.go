package jobs

import (
	"context"
	"errors"
	"fmt"

	"retriever/internal/services"
)

// RecoverHint is the operator hint stored on jobs interrupted by a restart.
const RecoverHint = "resubmit with retry"

// Stats returns a count of jobs grouped by state.
func (s *Store) Stats(ctx context.Context) (map[State]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT state, COUNT(1) FROM jobs GROUP BY state`)
	if err != nil {
		return nil, services.Wrap(services.ErrInternal, "", "job stats", "query", err)
	}
	defer rows.Close()

	stats := make(map[State]int, len(AllStates))
	for _, state := range AllStates {
		stats[state] = 0
	}
	for rows.Next() {
		var state State
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return nil, err
		}
		stats[state] = count
	}
	return stats, rows.Err()
}

// RecoverInterrupted fails every queued or running job left behind by a
// previous daemon. The jobs stay retryable.
func (s *Store) RecoverInterrupted(ctx context.Context) ([]*Job, error) {
	stale, err := s.List(ctx, ActiveFilter())
	if err != nil {
		return nil, err
	}
	now := s.timestamp()
	recovered := make([]*Job, 0, len(stale))
	for _, job := range stale {
		cause := services.WithHint(
			services.Wrap(services.ErrInternal, job.Backend, "recover", fmt.Sprintf("job was %s when the daemon stopped", job.State), nil),
			RecoverHint,
		)
		if err := job.Fail(cause, now); err != nil {
			return recovered, err
		}
		job.Error.Recoverable = true
		if err := s.Save(ctx, job); err != nil {
			if errors.Is(err, ErrInvalidTransition) {
				// Another process settled it between List and Save.
				continue
			}
			return recovered, err
		}
		recovered = append(recovered, job)
	}
	return recovered, nil
}
