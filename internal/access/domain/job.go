// Package domain models durable provisioning jobs: side effects of an
// entitlement change that run against an external system and may need retries.
package domain

import (
	"errors"
	"time"
)

var (
	// ErrJobNotFound means no job exists for the event ID.
	ErrJobNotFound = errors.New("access job not found")

	// ErrJobNotInAlert is returned when requeueing a job that is not in alert.
	ErrJobNotInAlert = errors.New("access job is not in alert state")
)

// JobStatus is the lifecycle state of a job.
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRetrying  JobStatus = "retrying"
	StatusCompleted JobStatus = "completed"
	StatusAlert     JobStatus = "alert"
)

// Valid reports whether s is a known status.
func (s JobStatus) Valid() bool {
	switch s {
	case StatusPending, StatusRetrying, StatusCompleted, StatusAlert:
		return true
	}
	return false
}

// Terminal reports whether no further attempts will be made.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusAlert
}

// Action is the provisioning operation.
type Action string

const (
	ActionGrant  Action = "grant"
	ActionRevoke Action = "revoke"
)

// Payload describes what to provision.
type Payload struct {
	Action         Action `json:"action"`
	GitHubUsername string `json:"githubUsername"`
	SKU            string `json:"sku"`
	EventType      string `json:"eventType"`
	CustomerEmail  string `json:"customerEmail,omitempty"`
}

// Job is one provisioning unit keyed by the billing event that caused it.
type Job struct {
	EventID       string
	Payload       Payload
	Status        JobStatus
	Attempts      int
	NextAttemptAt time.Time
	LastError     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Due reports whether the job should be picked up at now.
func (j Job) Due(now time.Time) bool {
	return !j.Status.Terminal() && !j.NextAttemptAt.After(now)
}

// Outcome is reported back to the webhook caller for a dispatched job.
type Outcome struct {
	Status        string     `json:"status"`
	EventID       string     `json:"eventId"`
	Action        Action     `json:"action,omitempty"`
	Attempts      int        `json:"attempts,omitempty"`
	NextAttemptAt *time.Time `json:"nextAttemptAt,omitempty"`
	Error         string     `json:"error,omitempty"`
	Reason        string     `json:"reason,omitempty"`
}

// OutcomeSkipped marks a hook that had nothing to do.
const OutcomeSkipped = "skipped"

// OutcomeFailed marks a hook whose bookkeeping itself failed; the job may
// not have been recorded.
const OutcomeFailed = "failed"
