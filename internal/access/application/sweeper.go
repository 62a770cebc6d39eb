package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/mylife/internal/access/domain"
	"github.com/felixgeelhaar/mylife/pkg/observability"
)

// ErrUnknownAction is recorded on jobs whose payload names no known action.
var ErrUnknownAction = errors.New("unknown provisioning action")

// Provisioner performs the external side effect of a job. Calls must be
// idempotent: a sweep may run a job more than once.
type Provisioner interface {
	Grant(ctx context.Context, username string) error
	Revoke(ctx context.Context, username string) error
}

// SweepResult summarises one "process due jobs now" run.
type SweepResult struct {
	Processed int `json:"processed"`
	Completed int `json:"completed"`
	Pending   int `json:"pending"`
	Alerts    int `json:"alerts"`
}

// Sweeper attempts provisioning jobs and converts every downstream failure
// into a scheduled retry. Only storage errors escape.
type Sweeper struct {
	queue       *Queue
	provisioner Provisioner
	metrics     observability.Metrics
	logger      *slog.Logger
}

// NewSweeper creates a Sweeper. A nil provisioner makes Dispatch report
// "skipped" and ProcessDue a no-op.
func NewSweeper(queue *Queue, provisioner Provisioner, metrics observability.Metrics, logger *slog.Logger) *Sweeper {
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{queue: queue, provisioner: provisioner, metrics: metrics, logger: logger}
}

// Enabled reports whether a provisioner is configured.
func (s *Sweeper) Enabled() bool {
	return s.provisioner != nil
}

// Dispatch enqueues the job for eventID and makes the first attempt. It never
// returns an error: bookkeeping failures are reported as OutcomeFailed.
func (s *Sweeper) Dispatch(ctx context.Context, eventID string, payload domain.Payload) domain.Outcome {
	if s.provisioner == nil {
		return domain.Outcome{
			Status:  domain.OutcomeSkipped,
			EventID: eventID,
			Action:  payload.Action,
			Reason:  "provisioning not configured",
		}
	}

	job, created, err := s.queue.Enqueue(ctx, eventID, payload)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to enqueue access job", "event_id", eventID, "error", err)
		return domain.Outcome{Status: domain.OutcomeFailed, EventID: eventID, Action: payload.Action, Error: err.Error()}
	}
	if !created && job.Status.Terminal() {
		return outcomeFor(*job)
	}

	outcome, err := s.attempt(ctx, *job)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to record access job result", "event_id", eventID, "error", err)
		return domain.Outcome{Status: domain.OutcomeFailed, EventID: eventID, Action: payload.Action, Error: err.Error()}
	}
	return outcome
}

// ProcessDue attempts up to limit due jobs at now. It stops at the first
// storage error and returns what it processed so far.
func (s *Sweeper) ProcessDue(ctx context.Context, now time.Time, limit int) (SweepResult, error) {
	var result SweepResult
	if s.provisioner == nil {
		return result, nil
	}
	s.metrics.Counter(observability.MetricAccessSweeps, 1)

	jobs, err := s.queue.ListDue(ctx, now, limit)
	if err != nil {
		return result, err
	}

	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		outcome, err := s.attempt(ctx, job)
		if err != nil {
			return result, err
		}
		result.Processed++
		switch domain.JobStatus(outcome.Status) {
		case domain.StatusCompleted:
			result.Completed++
		case domain.StatusAlert:
			result.Alerts++
		default:
			result.Pending++
		}
	}

	if result.Processed > 0 {
		s.logger.InfoContext(ctx, "access sweep finished",
			"processed", result.Processed,
			"completed", result.Completed,
			"pending", result.Pending,
			"alerts", result.Alerts,
		)
	}
	return result, nil
}

func (s *Sweeper) attempt(ctx context.Context, job domain.Job) (domain.Outcome, error) {
	callErr := s.provision(ctx, job.Payload)
	if callErr == nil {
		if err := s.queue.MarkCompleted(ctx, job.EventID); err != nil {
			return domain.Outcome{}, err
		}
		s.metrics.Counter(observability.MetricAccessJobs, 1, observability.T("status", string(domain.StatusCompleted)))
		job.Status = domain.StatusCompleted
		job.LastError = ""
		return outcomeFor(job), nil
	}

	s.logger.WarnContext(ctx, "provisioning attempt failed",
		"event_id", job.EventID,
		"action", job.Payload.Action,
		"attempt", job.Attempts+1,
		"error", callErr,
	)
	retry, err := s.queue.ScheduleRetry(ctx, job.EventID, callErr.Error(), job.Payload)
	if err != nil {
		return domain.Outcome{}, err
	}
	s.metrics.Counter(observability.MetricAccessJobs, 1, observability.T("status", string(retry.Status)))

	job.Status = retry.Status
	job.Attempts = retry.Attempts
	job.NextAttemptAt = retry.NextAttemptAt
	job.LastError = callErr.Error()
	return outcomeFor(job), nil
}

func (s *Sweeper) provision(ctx context.Context, payload domain.Payload) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("provisioner panic: %v", p)
		}
	}()

	switch payload.Action {
	case domain.ActionGrant:
		return s.provisioner.Grant(ctx, payload.GitHubUsername)
	case domain.ActionRevoke:
		return s.provisioner.Revoke(ctx, payload.GitHubUsername)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, payload.Action)
	}
}

func outcomeFor(job domain.Job) domain.Outcome {
	out := domain.Outcome{
		Status:   string(job.Status),
		EventID:  job.EventID,
		Action:   job.Payload.Action,
		Attempts: job.Attempts,
		Error:    job.LastError,
	}
	if job.Status == domain.StatusRetrying {
		next := job.NextAttemptAt
		out.NextAttemptAt = &next
	}
	return out
}
