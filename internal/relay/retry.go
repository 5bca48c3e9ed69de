package relay

import (
	"math/rand/v2"
	"time"
)

// Backoff between in-process delivery attempts. A drained job exists only
// in this process, so the schedule stays short.
var retrySchedule = []time.Duration{
	1 * time.Second,
	5 * time.Second,
	15 * time.Second,
	30 * time.Second,
}

// RetryStrategy is a fixed backoff schedule with jitter.
type RetryStrategy struct {
	MaxRetries int
	Schedule   []time.Duration
}

// NewRetryStrategy creates a RetryStrategy allowing maxRetries retries
// after the first attempt.
func NewRetryStrategy(maxRetries int) *RetryStrategy {
	return &RetryStrategy{MaxRetries: maxRetries, Schedule: retrySchedule}
}

// ShouldRetry reports whether another attempt is allowed after retryCount
// retries have been made.
func (r *RetryStrategy) ShouldRetry(retryCount int) bool {
	return retryCount < r.MaxRetries
}

// NextBackoff returns the wait before retry number retryCount (0-based),
// scaled by a jitter factor in [0.5, 1.0).
func (r *RetryStrategy) NextBackoff(retryCount int) time.Duration {
	if len(r.Schedule) == 0 {
		return 0
	}
	idx := min(retryCount, len(r.Schedule)-1)
	jitter := 0.5 + rand.Float64()*0.5
	return time.Duration(float64(r.Schedule[idx]) * jitter)
}
