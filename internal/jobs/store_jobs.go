package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"retriever/internal/services"
)

// New builds a queued job with a fresh id. It is not persisted until Create.
func New(kind Kind, target Target, candidates []string, now time.Time) *Job {
	ts := now.UTC()
	return &Job{
		ID:         uuid.NewString(),
		Kind:       kind,
		Target:     target,
		State:      StateQueued,
		Attempts:   []Attempt{},
		Candidates: append([]string(nil), candidates...),
		CreatedAt:  ts,
		UpdatedAt:  ts,
	}
}

// Filter selects jobs for List. Empty fields match everything.
type Filter struct {
	States  []State
	Backend string
	Kind    Kind
	Limit   int
}

// ActiveFilter selects queued and running jobs.
func ActiveFilter() Filter {
	return Filter{States: append([]State(nil), ActiveStates...)}
}

// Create inserts a new queued job.
func (s *Store) Create(ctx context.Context, job *Job) error {
	if job == nil || strings.TrimSpace(job.ID) == "" {
		return services.Wrap(services.ErrInternal, "", "create job", "job id is required", nil)
	}
	if job.State != StateQueued {
		return transitionError("", job.State)
	}
	row, err := encodeJob(job)
	if err != nil {
		return services.Wrap(services.ErrInternal, "", "create job", "encode", err)
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = s.timestamp()
	}
	if job.UpdatedAt.IsZero() {
		job.UpdatedAt = job.CreatedAt
	}
	if _, err := s.execWithRetry(
		ctx,
		`INSERT INTO jobs (`+jobColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID,
		string(job.Kind),
		nullableString(job.Backend),
		string(job.State),
		row.target,
		row.progress,
		row.result,
		row.errInfo,
		row.attempts,
		row.candidates,
		nullableString(job.CancelPoint),
		formatTime(job.CreatedAt),
		formatTime(job.UpdatedAt),
	); err != nil {
		return services.Wrap(services.ErrInternal, "", "create job", "insert", err)
	}
	return nil
}

// Get returns the job with id or an error wrapping ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*Job, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, services.Wrap(services.ErrInternal, "", "get job", id, err)
	}
	return job, nil
}

// List returns jobs matching filter ordered by creation time.
func (s *Store) List(ctx context.Context, filter Filter) ([]*Job, error) {
	ctx = ensureContext(ctx)
	var (
		clauses []string
		args    []any
	)
	if len(filter.States) > 0 {
		clauses = append(clauses, "state IN ("+makePlaceholders(len(filter.States))+")")
		for _, state := range filter.States {
			args = append(args, string(state))
		}
	}
	if filter.Backend != "" {
		clauses = append(clauses, "backend = ?")
		args = append(args, filter.Backend)
	}
	if filter.Kind != "" {
		clauses = append(clauses, "kind = ?")
		args = append(args, string(filter.Kind))
	}
	query := `SELECT ` + jobColumns + ` FROM jobs`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at, rowid"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, services.Wrap(services.ErrInternal, "", "list jobs", "query", err)
	}
	defer rows.Close()

	var out []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, services.Wrap(services.ErrInternal, "", "list jobs", "scan", err)
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, services.Wrap(services.ErrInternal, "", "list jobs", "iterate", err)
	}
	return out, nil
}

// Save writes a total snapshot of job. The write is refused, leaving the
// stored snapshot intact, when the state change is not a lifecycle edge or
// when attempts would be rewritten.
func (s *Store) Save(ctx context.Context, job *Job) error {
	ctx = ensureContext(ctx)
	if job == nil || job.ID == "" {
		return services.Wrap(services.ErrInternal, "", "save job", "job id is required", nil)
	}
	row, err := encodeJob(job)
	if err != nil {
		return services.Wrap(services.ErrInternal, "", "save job", "encode", err)
	}
	updatedAt := s.timestamp()

	err = retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		var (
			stored      string
			attemptsRaw sql.NullString
		)
		err = tx.QueryRowContext(ctx, `SELECT state, attempts_json FROM jobs WHERE id = ?`, job.ID).Scan(&stored, &attemptsRaw)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrNotFound, job.ID)
		}
		if err != nil {
			return err
		}
		if !canPersist(State(stored), job.State) {
			return transitionError(State(stored), job.State)
		}
		var prior []Attempt
		if err := decodeJSON(attemptsRaw.String, &prior); err != nil {
			return fmt.Errorf("decode stored attempts: %w", err)
		}
		if !attemptsAppendOnly(prior, job.Attempts) {
			return fmt.Errorf("%w: attempts are append-only", ErrInvalidTransition)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE jobs SET backend = ?, state = ?, target_json = ?, progress_json = ?, result_json = ?,
                error_json = ?, attempts_json = ?, candidates_json = ?, cancel_point = ?, updated_at = ?
             WHERE id = ?`,
			nullableString(job.Backend),
			string(job.State),
			row.target,
			row.progress,
			row.result,
			row.errInfo,
			row.attempts,
			row.candidates,
			nullableString(job.CancelPoint),
			formatTime(updatedAt),
			job.ID,
		); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidTransition) {
			return err
		}
		return services.Wrap(services.ErrInternal, "", "save job", job.ID, err)
	}
	job.UpdatedAt = updatedAt
	return nil
}

// ClaimNext atomically moves the oldest queued job to running and returns it.
// It returns nil when nothing is queued. A single UPDATE guarantees that two
// workers never claim the same job.
func (s *Store) ClaimNext(ctx context.Context) (*Job, error) {
	ctx = ensureContext(ctx)
	now := formatTime(s.timestamp())
	var id string
	err := retryOnBusy(ctx, func() error {
		return s.db.QueryRowContext(ctx,
			`UPDATE jobs SET state = ?, updated_at = ?
             WHERE id = (SELECT id FROM jobs WHERE state = ? ORDER BY created_at, rowid LIMIT 1)
               AND state = ?
             RETURNING id`,
			string(StateRunning), now, string(StateQueued), string(StateQueued),
		).Scan(&id)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, services.Wrap(services.ErrInternal, "", "claim job", "update", err)
	}
	return s.Get(ctx, id)
}

// CancelQueued cancels a job that no worker has claimed yet. It reports false
// when the job is not queued anymore.
func (s *Store) CancelQueued(ctx context.Context, id, point string) (bool, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs SET state = ?, cancel_point = ?, updated_at = ? WHERE id = ? AND state = ?`,
		string(StateCancelled), nullableString(point), formatTime(s.timestamp()), id, string(StateQueued),
	)
	if err != nil {
		return false, services.Wrap(services.ErrInternal, "", "cancel job", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, services.Wrap(services.ErrInternal, "", "cancel job", id, err)
	}
	return affected == 1, nil
}

// Purge deletes a terminal job. Active jobs are refused.
func (s *Store) Purge(ctx context.Context, id string) error {
	job, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !job.State.IsTerminal() {
		return fmt.Errorf("%w: job %s is %s; cancel it first", ErrInvalidTransition, id, job.State)
	}
	if _, err := s.execWithRetry(ctx, `DELETE FROM jobs WHERE id = ?`, id); err != nil {
		return services.Wrap(services.ErrInternal, "", "purge job", id, err)
	}
	return nil
}

// PurgeFinishedBefore deletes terminal jobs last updated before cutoff.
func (s *Store) PurgeFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`DELETE FROM jobs WHERE state IN (?, ?, ?) AND updated_at < ?`,
		string(StateCompleted), string(StateFailed), string(StateCancelled), formatTime(cutoff),
	)
	if err != nil {
		return 0, services.Wrap(services.ErrInternal, "", "purge jobs", "delete", err)
	}
	return res.RowsAffected()
}
