package llm

import "time"

// RetryConfig controls how the client retries transient failures. Section
// extraction calls can run for minutes against a loaded model server, so the
// defaults favor patience over fast failure.
type RetryConfig struct {
	MaxAttempts       int           // attempts per request, including the first
	BackoffBase       time.Duration // delay before the first retry
	BackoffMultiplier float64       // growth factor per retry
	MaxBackoff        time.Duration // ceiling on any single delay
}

// DefaultRetryConfig returns the retry policy used when none is supplied:
// three attempts with 2s/4s backoff, capped at 30s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		BackoffBase:       2 * time.Second,
		BackoffMultiplier: 2.0,
		MaxBackoff:        30 * time.Second,
	}
}
