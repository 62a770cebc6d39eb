package domain

import (
	"context"
	"time"
)

// Repository persists jobs. Implementations join a transaction carried by ctx.
type Repository interface {
	// Insert stores job unless one exists for its event ID. It reports
	// whether a row was created.
	Insert(ctx context.Context, job Job) (bool, error)
	// Get returns the job or ErrJobNotFound.
	Get(ctx context.Context, eventID string) (*Job, error)
	// Update overwrites the mutable fields of an existing job.
	Update(ctx context.Context, job Job) error
	// ListDue returns pending or retrying jobs due at now, most overdue first.
	ListDue(ctx context.Context, now time.Time, limit int) ([]Job, error)
	// ListByStatus returns jobs in status, most recently updated first.
	ListByStatus(ctx context.Context, status JobStatus, limit int) ([]Job, error)
	// CountByStatus returns the number of jobs per status.
	CountByStatus(ctx context.Context) (map[JobStatus]int, error)
}
