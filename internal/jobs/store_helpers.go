package jobs

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const jobColumns = "id, kind, backend, state, target_json, progress_json, result_json, error_json, attempts_json, candidates_json, cancel_point, created_at, updated_at"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id          string
		kind        string
		backend     sql.NullString
		state       string
		targetRaw   string
		progressRaw sql.NullString
		resultRaw   sql.NullString
		errorRaw    sql.NullString
		attemptsRaw sql.NullString
		candidates  sql.NullString
		cancelPoint sql.NullString
		createdRaw  string
		updatedRaw  string
	)

	if err := scanner.Scan(
		&id,
		&kind,
		&backend,
		&state,
		&targetRaw,
		&progressRaw,
		&resultRaw,
		&errorRaw,
		&attemptsRaw,
		&candidates,
		&cancelPoint,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:          id,
		Kind:        Kind(kind),
		Backend:     backend.String,
		State:       State(state),
		CancelPoint: cancelPoint.String,
	}
	if err := decodeJSON(targetRaw, &job.Target); err != nil {
		return nil, fmt.Errorf("decode target for %s: %w", id, err)
	}
	if err := decodeJSON(progressRaw.String, &job.Progress); err != nil {
		return nil, fmt.Errorf("decode progress for %s: %w", id, err)
	}
	if resultRaw.Valid && resultRaw.String != "" {
		job.Result = &Result{}
		if err := decodeJSON(resultRaw.String, job.Result); err != nil {
			return nil, fmt.Errorf("decode result for %s: %w", id, err)
		}
	}
	if errorRaw.Valid && errorRaw.String != "" {
		job.Error = &ErrorInfo{}
		if err := decodeJSON(errorRaw.String, job.Error); err != nil {
			return nil, fmt.Errorf("decode error for %s: %w", id, err)
		}
	}
	if err := decodeJSON(attemptsRaw.String, &job.Attempts); err != nil {
		return nil, fmt.Errorf("decode attempts for %s: %w", id, err)
	}
	if err := decodeJSON(candidates.String, &job.Candidates); err != nil {
		return nil, fmt.Errorf("decode candidates for %s: %w", id, err)
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		job.UpdatedAt = updated
	}
	return job, nil
}

// jobRow is the column-ready encoding of a Job.
type jobRow struct {
	target     string
	progress   string
	result     any
	errInfo    any
	attempts   string
	candidates string
}

func encodeJob(job *Job) (jobRow, error) {
	var row jobRow
	var err error
	if row.target, err = encodeJSON(job.Target); err != nil {
		return row, fmt.Errorf("encode target: %w", err)
	}
	if row.progress, err = encodeJSON(job.Progress); err != nil {
		return row, fmt.Errorf("encode progress: %w", err)
	}
	if job.Result != nil {
		if row.result, err = encodeJSON(job.Result); err != nil {
			return row, fmt.Errorf("encode result: %w", err)
		}
	}
	if job.Error != nil {
		if row.errInfo, err = encodeJSON(job.Error); err != nil {
			return row, fmt.Errorf("encode error: %w", err)
		}
	}
	attempts := job.Attempts
	if attempts == nil {
		attempts = []Attempt{}
	}
	if row.attempts, err = encodeJSON(attempts); err != nil {
		return row, fmt.Errorf("encode attempts: %w", err)
	}
	candidates := job.Candidates
	if candidates == nil {
		candidates = []string{}
	}
	if row.candidates, err = encodeJSON(candidates); err != nil {
		return row, fmt.Errorf("encode candidates: %w", err)
	}
	return row, nil
}

func encodeJSON(value any) (string, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeJSON(raw string, dest any) error {
	if raw == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw), dest)
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func formatTime(value time.Time) string {
	return value.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
