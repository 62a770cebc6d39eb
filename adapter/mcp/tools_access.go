package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/mcp-go"

	accessApp "github.com/felixgeelhaar/mylife/internal/access/application"
	accessDomain "github.com/felixgeelhaar/mylife/internal/access/domain"
)

type jobsInput struct {
	Status string `json:"status,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

type requeueInput struct {
	EventID string `json:"event_id" jsonschema:"required"`
}

type sweepInput struct {
	Limit int `json:"limit,omitempty"`
}

type jobView struct {
	EventID        string    `json:"event_id"`
	Action         string    `json:"action"`
	GitHubUsername string    `json:"github_username"`
	SKU            string    `json:"sku"`
	Status         string    `json:"status"`
	Attempts       int       `json:"attempts"`
	NextAttemptAt  time.Time `json:"next_attempt_at"`
	LastError      string    `json:"last_error,omitempty"`
}

type jobsOutput struct {
	Counts map[string]int `json:"counts,omitempty"`
	Jobs   []jobView      `json:"jobs,omitempty"`
}

func registerAccessTools(srv *mcp.Server, h *handlers) {
	srv.Tool("access.jobs").
		Description("Count access jobs, or list the jobs in one status").
		Handler(h.accessJobs)

	srv.Tool("access.requeue").
		Description("Move an alert job back to pending").
		Handler(h.accessRequeue)

	srv.Tool("access.sweep").
		Description("Process due access jobs now").
		Handler(h.accessSweep)
}

func (h *handlers) accessJobs(ctx context.Context, input jobsInput) (jobsOutput, error) {
	if h.app.Queue == nil {
		return jobsOutput{}, errors.New("access jobs require database connection")
	}

	if input.Status == "" {
		counts, err := h.app.Queue.Counts(ctx)
		if err != nil {
			return jobsOutput{}, err
		}
		out := jobsOutput{Counts: make(map[string]int, 4)}
		for _, s := range []accessDomain.JobStatus{accessDomain.StatusPending, accessDomain.StatusRetrying, accessDomain.StatusCompleted, accessDomain.StatusAlert} {
			out.Counts[string(s)] = counts[s]
		}
		return out, nil
	}

	status := accessDomain.JobStatus(input.Status)
	if !status.Valid() {
		return jobsOutput{}, fmt.Errorf("unknown status %q", input.Status)
	}
	limit := input.Limit
	if limit <= 0 {
		limit = 50
	}
	jobs, err := h.app.Queue.List(ctx, status, limit)
	if err != nil {
		return jobsOutput{}, err
	}
	out := jobsOutput{Jobs: make([]jobView, 0, len(jobs))}
	for _, j := range jobs {
		out.Jobs = append(out.Jobs, toJobView(j))
	}
	return out, nil
}

func (h *handlers) accessRequeue(ctx context.Context, input requeueInput) (jobView, error) {
	if h.app.Queue == nil {
		return jobView{}, errors.New("access jobs require database connection")
	}
	if input.EventID == "" {
		return jobView{}, errors.New("event_id is required")
	}
	job, err := h.app.Queue.Requeue(ctx, input.EventID)
	if err != nil {
		return jobView{}, err
	}
	return toJobView(*job), nil
}

func (h *handlers) accessSweep(ctx context.Context, input sweepInput) (accessApp.SweepResult, error) {
	if h.app.Sweeper == nil {
		return accessApp.SweepResult{}, errors.New("access sweep requires database connection")
	}
	return h.app.Sweeper.ProcessDue(ctx, h.app.Clock(), input.Limit)
}

func toJobView(j accessDomain.Job) jobView {
	return jobView{
		EventID:        j.EventID,
		Action:         string(j.Payload.Action),
		GitHubUsername: j.Payload.GitHubUsername,
		SKU:            j.Payload.SKU,
		Status:         string(j.Status),
		Attempts:       j.Attempts,
		NextAttemptAt:  j.NextAttemptAt,
		LastError:      j.LastError,
	}
}
