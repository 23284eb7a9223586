package relay

import (
	"context"
	"math/rand/v2"
	"time"
)

// RetryConfig controls exponential backoff retry for failed batch sends.
type RetryConfig struct {
	MaxRetries int           // max retry attempts after the first try (0 = no retry)
	BaseDelay  time.Duration // initial backoff delay
	MaxDelay   time.Duration // maximum backoff delay
}

// DefaultRetryConfig returns the standard send retry budget: worst case
// roughly 25s of waiting across 5 attempts.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 4,
		BaseDelay:  1 * time.Second,
		MaxDelay:   15 * time.Second,
	}
}

// retryWithBackoff runs fn, retrying on error with exponential backoff and
// jitter. Returns the attempt count and the last error, or ctx.Err() if the
// context is canceled during a backoff wait.
func retryWithBackoff(ctx context.Context, cfg RetryConfig, fn func() error) (attempts int, err error) {
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if err = fn(); err == nil {
			return attempt + 1, nil
		}

		if attempt < cfg.MaxRetries {
			select {
			case <-time.After(backoffWithJitter(cfg.BaseDelay, cfg.MaxDelay, attempt)):
			case <-ctx.Done():
				return attempt + 1, ctx.Err()
			}
		}
	}
	return cfg.MaxRetries + 1, err
}

// backoffWithJitter computes delay = min(base * 2^attempt, max) + jitter(±25%).
func backoffWithJitter(base, max time.Duration, attempt int) time.Duration {
	delay := base << uint(attempt) // base * 2^attempt
	if delay > max {
		delay = max
	}

	// Jitter: ±25% of delay
	quarter := delay / 4
	if quarter > 0 {
		jitter := time.Duration(rand.Int64N(int64(quarter*2))) - quarter
		delay += jitter
	}

	return delay
}
