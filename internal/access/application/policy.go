package application

import "time"

// RetryPolicy controls provisioning retries.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy returns 6 attempts, 5 minutes doubling, capped at 24 hours.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 6,
		BaseDelay:   5 * time.Minute,
		MaxDelay:    24 * time.Hour,
	}
}

// Backoff returns the delay after the given failed attempt (1-based):
// BaseDelay doubled per attempt, never above MaxDelay.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = time.Minute
	}
	maxDelay := p.MaxDelay
	if maxDelay < base {
		maxDelay = base
	}
	if attempt < 1 {
		attempt = 1
	}

	delay := base
	for i := 1; i < attempt; i++ {
		if delay >= maxDelay/2 {
			return maxDelay
		}
		delay *= 2
	}
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}

// Exhausted reports whether a job that has failed attempts times goes to alert.
func (p RetryPolicy) Exhausted(attempts int) bool {
	if p.MaxAttempts <= 0 {
		return true
	}
	return attempts >= p.MaxAttempts
}
