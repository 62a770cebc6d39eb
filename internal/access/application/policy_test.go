package application

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryPolicy_Backoff(t *testing.T) {
	policy := DefaultRetryPolicy()

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 5 * time.Minute},
		{1, 5 * time.Minute},
		{2, 10 * time.Minute},
		{3, 20 * time.Minute},
		{5, 80 * time.Minute},
		{9, 1280 * time.Minute},
		{10, 24 * time.Hour},
		{200, 24 * time.Hour},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, policy.Backoff(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestRetryPolicy_BackoffCapBelowDoubling(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 10, BaseDelay: time.Minute, MaxDelay: 3 * time.Minute}

	assert.Equal(t, 2*time.Minute, policy.Backoff(2))
	assert.Equal(t, 3*time.Minute, policy.Backoff(3))
	assert.Equal(t, 3*time.Minute, policy.Backoff(4))
}

func TestRetryPolicy_Exhausted(t *testing.T) {
	policy := DefaultRetryPolicy()

	assert.False(t, policy.Exhausted(5))
	assert.True(t, policy.Exhausted(6))
	assert.True(t, policy.Exhausted(7))
	assert.True(t, RetryPolicy{}.Exhausted(1))
}
