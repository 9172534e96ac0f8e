package jobs

import "time"

// RetryPolicy controls how often and how fast a failed job is retried. It
// is an explicit value object so the worker is independent of any queue
// implementation's retry configuration.
type RetryPolicy struct {
	MaxAttempts       int
	BackoffBase       time.Duration
	BackoffMultiplier float64
}

// DefaultRetryPolicy retries up to three attempts with the delay doubling
// each attempt.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       3,
		BackoffBase:       2 * time.Second,
		BackoffMultiplier: 2,
	}
}

// Delay returns the backoff before the next attempt after attempt failures.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	delay := float64(p.BackoffBase)
	for i := 1; i < attempt; i++ {
		delay *= p.BackoffMultiplier
	}
	return time.Duration(delay)
}
