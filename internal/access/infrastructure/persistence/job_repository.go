// Package persistence stores access jobs in the relational database.
package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/felixgeelhaar/mylife/internal/access/domain"
	"github.com/felixgeelhaar/mylife/internal/shared/infrastructure/database"
)

const jobColumns = `event_id, payload, status, attempts, next_attempt_at, last_error, created_at, updated_at`

// JobRepository implements domain.Repository on either supported driver.
type JobRepository struct {
	conn database.Connection
}

// NewJobRepository creates a JobRepository.
func NewJobRepository(conn database.Connection) *JobRepository {
	return &JobRepository{conn: conn}
}

func (r *JobRepository) exec(ctx context.Context) database.Executor {
	return database.ExecutorFromContext(ctx, r.conn)
}

// Insert stores job unless a job exists for its event ID.
func (r *JobRepository) Insert(ctx context.Context, job domain.Job) (bool, error) {
	payload, err := json.Marshal(job.Payload)
	if err != nil {
		return false, fmt.Errorf("encode job payload: %w", err)
	}
	res, err := r.exec(ctx).Exec(ctx, `
		INSERT INTO access_jobs (event_id, action, payload, status, attempts, next_attempt_at, last_error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (event_id) DO NOTHING`,
		job.EventID,
		string(job.Payload.Action),
		string(payload),
		string(job.Status),
		job.Attempts,
		job.NextAttemptAt.UnixMilli(),
		job.LastError,
		job.CreatedAt.UnixMilli(),
		updatedAt(job).UnixMilli(),
	)
	if err != nil {
		return false, fmt.Errorf("insert access job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert access job: %w", err)
	}
	return n == 1, nil
}

// Get returns the job for eventID.
func (r *JobRepository) Get(ctx context.Context, eventID string) (*domain.Job, error) {
	row := r.exec(ctx).QueryRow(ctx, `SELECT `+jobColumns+` FROM access_jobs WHERE event_id = ?`, eventID)
	job, err := scanJob(row)
	if database.IsNoRows(err) {
		return nil, domain.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get access job: %w", err)
	}
	return job, nil
}

// Update overwrites status, attempts, schedule and error of an existing job.
func (r *JobRepository) Update(ctx context.Context, job domain.Job) error {
	res, err := r.exec(ctx).Exec(ctx, `
		UPDATE access_jobs
		SET status = ?, attempts = ?, next_attempt_at = ?, last_error = ?, updated_at = ?
		WHERE event_id = ?`,
		string(job.Status),
		job.Attempts,
		job.NextAttemptAt.UnixMilli(),
		job.LastError,
		updatedAt(job).UnixMilli(),
		job.EventID,
	)
	if err != nil {
		return fmt.Errorf("update access job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update access job: %w", err)
	}
	if n == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

// ListDue returns pending and retrying jobs with next_attempt_at <= now,
// oldest schedule first.
func (r *JobRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Job, error) {
	rows, err := r.exec(ctx).Query(ctx, `
		SELECT `+jobColumns+`
		FROM access_jobs
		WHERE status IN (?, ?) AND next_attempt_at <= ?
		ORDER BY next_attempt_at ASC, created_at ASC
		LIMIT ?`,
		string(domain.StatusPending), string(domain.StatusRetrying), now.UnixMilli(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list due access jobs: %w", err)
	}
	return collectJobs(rows)
}

// ListByStatus returns jobs in status, most recently updated first.
func (r *JobRepository) ListByStatus(ctx context.Context, status domain.JobStatus, limit int) ([]domain.Job, error) {
	rows, err := r.exec(ctx).Query(ctx, `
		SELECT `+jobColumns+`
		FROM access_jobs
		WHERE status = ?
		ORDER BY updated_at DESC
		LIMIT ?`,
		string(status), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list access jobs: %w", err)
	}
	return collectJobs(rows)
}

// CountByStatus returns job counts keyed by status. Statuses without jobs are zero.
func (r *JobRepository) CountByStatus(ctx context.Context) (map[domain.JobStatus]int, error) {
	rows, err := r.exec(ctx).Query(ctx, `SELECT status, COUNT(*) FROM access_jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count access jobs: %w", err)
	}
	defer rows.Close()

	counts := map[domain.JobStatus]int{
		domain.StatusPending:   0,
		domain.StatusRetrying:  0,
		domain.StatusCompleted: 0,
		domain.StatusAlert:     0,
	}
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("count access jobs: %w", err)
		}
		counts[domain.JobStatus(status)] = int(n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("count access jobs: %w", err)
	}
	return counts, nil
}

func collectJobs(rows database.Rows) ([]domain.Job, error) {
	defer rows.Close()
	var jobs []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan access job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return jobs, nil
}

func scanJob(row database.Row) (*domain.Job, error) {
	var (
		job                                   domain.Job
		payload, status                       string
		attempts                              int64
		nextAttemptAt, createdAt, updatedAtMs int64
	)
	if err := row.Scan(&job.EventID, &payload, &status, &attempts, &nextAttemptAt, &job.LastError, &createdAt, &updatedAtMs); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(payload), &job.Payload); err != nil {
		return nil, fmt.Errorf("decode job payload: %w", err)
	}
	job.Status = domain.JobStatus(status)
	job.Attempts = int(attempts)
	job.NextAttemptAt = time.UnixMilli(nextAttemptAt).UTC()
	job.CreatedAt = time.UnixMilli(createdAt).UTC()
	job.UpdatedAt = time.UnixMilli(updatedAtMs).UTC()
	return &job, nil
}

func updatedAt(job domain.Job) time.Time {
	if job.UpdatedAt.IsZero() {
		return job.CreatedAt
	}
	return job.UpdatedAt
}
