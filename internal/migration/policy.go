package migration

import (
	"math/rand"
	"time"
)

const (
	defaultMaxAttempts   = 3
	initialRetryDelay    = 1 * time.Second
	maxRetryDelay        = 30 * time.Second
	retryBackoffFactor   = 2
	defaultRateLimitWait = 60 * time.Second
)

// RetryPolicy controls per-post retries for transient failures.
// Rate-limit responses use a separate, longer stall that does not
// consume an attempt.
type RetryPolicy struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	RateLimitWait time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   defaultMaxAttempts,
		InitialDelay:  initialRetryDelay,
		MaxDelay:      maxRetryDelay,
		RateLimitWait: defaultRateLimitWait,
	}
}

// Delay returns the backoff before retry number attempt (1-based), with
// up to 25% jitter so parallel runs do not thunder in lockstep.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	delay := p.InitialDelay
	for i := 1; i < attempt; i++ {
		delay *= time.Duration(retryBackoffFactor)
	}
	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/4 + 1))
	return delay + jitter
}
