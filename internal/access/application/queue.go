// Package application implements the access job queue and the sweep that
// drives it.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/felixgeelhaar/mylife/internal/access/domain"
	sharedApplication "github.com/felixgeelhaar/mylife/internal/shared/application"
)

const maxErrorLength = 1000

// QueueConfig holds queue settings.
type QueueConfig struct {
	Policy       RetryPolicy
	DefaultLimit int
	MaxLimit     int
	// Now is the clock; tests replace it.
	Now func() time.Time
}

// DefaultQueueConfig returns the default retry policy and a 10/100 sweep size.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		Policy:       DefaultRetryPolicy(),
		DefaultLimit: 10,
		MaxLimit:     100,
		Now:          time.Now,
	}
}

// RetryResult is the job state after ScheduleRetry.
type RetryResult struct {
	Status        domain.JobStatus
	Attempts      int
	NextAttemptAt time.Time
}

// Queue is the durable retry ledger for provisioning jobs.
type Queue struct {
	repo   domain.Repository
	uow    sharedApplication.UnitOfWork
	config QueueConfig
	logger *slog.Logger
}

// NewQueue creates a Queue.
func NewQueue(repo domain.Repository, uow sharedApplication.UnitOfWork, config QueueConfig, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.MaxLimit <= 0 {
		config.MaxLimit = 100
	}
	if config.DefaultLimit <= 0 || config.DefaultLimit > config.MaxLimit {
		config.DefaultLimit = min(10, config.MaxLimit)
	}
	return &Queue{repo: repo, uow: uow, config: config, logger: logger}
}

func (q *Queue) now() time.Time {
	return q.config.Now().UTC()
}

// ClampLimit maps a requested batch size into 1..MaxLimit; zero or negative
// selects the default.
func (q *Queue) ClampLimit(limit int) int {
	if limit <= 0 {
		return q.config.DefaultLimit
	}
	if limit > q.config.MaxLimit {
		return q.config.MaxLimit
	}
	return limit
}

// Enqueue records a pending job due now. When a job already exists for
// eventID it is returned unchanged and created is false.
func (q *Queue) Enqueue(ctx context.Context, eventID string, payload domain.Payload) (job *domain.Job, created bool, err error) {
	now := q.now()
	fresh := domain.Job{
		EventID:       eventID,
		Payload:       payload,
		Status:        domain.StatusPending,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err = sharedApplication.WithUnitOfWork(ctx, q.uow, func(txCtx context.Context) error {
		ok, err := q.repo.Insert(txCtx, fresh)
		if err != nil {
			return err
		}
		if ok {
			job, created = &fresh, true
			return nil
		}
		job, err = q.repo.Get(txCtx, eventID)
		return err
	})
	if err != nil {
		return nil, false, fmt.Errorf("enqueue access job %s: %w", eventID, err)
	}
	return job, created, nil
}

// ScheduleRetry records a failed attempt. The job is created when missing.
// Below the attempt cap it moves to retrying with a backed-off nextAttemptAt;
// at the cap it moves to alert and nextAttemptAt stays where it was. Terminal
// jobs are left untouched.
func (q *Queue) ScheduleRetry(ctx context.Context, eventID, errorDetail string, payload domain.Payload) (RetryResult, error) {
	var result RetryResult
	err := sharedApplication.WithUnitOfWork(ctx, q.uow, func(txCtx context.Context) error {
		now := q.now()
		job, err := q.repo.Get(txCtx, eventID)
		created := false
		switch {
		case errors.Is(err, domain.ErrJobNotFound):
			job = &domain.Job{
				EventID:       eventID,
				Payload:       payload,
				Status:        domain.StatusPending,
				NextAttemptAt: now,
				CreatedAt:     now,
			}
			created = true
		case err != nil:
			return err
		}

		if job.Status.Terminal() {
			result = RetryResult{Status: job.Status, Attempts: job.Attempts, NextAttemptAt: job.NextAttemptAt}
			return nil
		}

		job.Attempts++
		job.LastError = truncate(errorDetail, maxErrorLength)
		job.UpdatedAt = now
		if q.config.Policy.Exhausted(job.Attempts) {
			job.Status = domain.StatusAlert
		} else {
			job.Status = domain.StatusRetrying
			job.NextAttemptAt = now.Add(q.config.Policy.Backoff(job.Attempts))
		}

		if created {
			if _, err := q.repo.Insert(txCtx, *job); err != nil {
				return err
			}
		} else if err := q.repo.Update(txCtx, *job); err != nil {
			return err
		}
		result = RetryResult{Status: job.Status, Attempts: job.Attempts, NextAttemptAt: job.NextAttemptAt}
		return nil
	})
	if err != nil {
		return RetryResult{}, fmt.Errorf("schedule retry for access job %s: %w", eventID, err)
	}

	if result.Status == domain.StatusAlert {
		q.logger.ErrorContext(ctx, "access job needs operator attention",
			"event_id", eventID,
			"attempts", result.Attempts,
			"last_error", truncate(errorDetail, 200),
		)
	}
	return result, nil
}

// ListDue returns pending and retrying jobs due at now, most overdue first.
func (q *Queue) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Job, error) {
	jobs, err := q.repo.ListDue(ctx, now.UTC(), q.ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list due access jobs: %w", err)
	}
	return jobs, nil
}

// MarkCompleted moves the job to completed. Completing a completed job is a no-op.
func (q *Queue) MarkCompleted(ctx context.Context, eventID string) error {
	err := sharedApplication.WithUnitOfWork(ctx, q.uow, func(txCtx context.Context) error {
		job, err := q.repo.Get(txCtx, eventID)
		if err != nil {
			return err
		}
		if job.Status == domain.StatusCompleted {
			return nil
		}
		job.Status = domain.StatusCompleted
		job.LastError = ""
		job.UpdatedAt = q.now()
		return q.repo.Update(txCtx, *job)
	})
	if err != nil {
		return fmt.Errorf("complete access job %s: %w", eventID, err)
	}
	return nil
}

// Requeue returns an alert job to pending with its attempts reset, due now.
func (q *Queue) Requeue(ctx context.Context, eventID string) (*domain.Job, error) {
	var requeued *domain.Job
	err := sharedApplication.WithUnitOfWork(ctx, q.uow, func(txCtx context.Context) error {
		job, err := q.repo.Get(txCtx, eventID)
		if err != nil {
			return err
		}
		if job.Status != domain.StatusAlert {
			return domain.ErrJobNotInAlert
		}
		now := q.now()
		job.Status = domain.StatusPending
		job.Attempts = 0
		job.NextAttemptAt = now
		job.UpdatedAt = now
		if err := q.repo.Update(txCtx, *job); err != nil {
			return err
		}
		requeued = job
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("requeue access job %s: %w", eventID, err)
	}
	q.logger.InfoContext(ctx, "access job requeued", "event_id", eventID)
	return requeued, nil
}

// Get returns a job or domain.ErrJobNotFound.
func (q *Queue) Get(ctx context.Context, eventID string) (*domain.Job, error) {
	return q.repo.Get(ctx, eventID)
}

// List returns jobs in status, most recently updated first.
func (q *Queue) List(ctx context.Context, status domain.JobStatus, limit int) ([]domain.Job, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("unknown job status %q", status)
	}
	return q.repo.ListByStatus(ctx, status, q.ClampLimit(limit))
}

// Counts returns the number of jobs per status.
func (q *Queue) Counts(ctx context.Context) (map[domain.JobStatus]int, error) {
	return q.repo.CountByStatus(ctx)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
