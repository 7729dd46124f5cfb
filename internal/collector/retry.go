package collector

import (
	"context"
	"log"
	"time"
)

// Fetch retry policy: up to maxRetries attempts beyond the first, with
// exponential backoff between them: the n-th retry waits retryDelay * 2^(n-1).
const (
	DefaultMaxRetries = 3
	DefaultRetryDelay = 2 * time.Second
)

// withRetry calls fn, retrying up to maxRetries times with exponential
// backoff on failure. It never panics or propagates beyond the final
// attempt's error; callers decide whether to log-and-swallow.
func withRetry(ctx context.Context, label string, maxRetries int, retryDelay time.Duration, fn func(ctx context.Context) error) error {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	if retryDelay <= 0 {
		retryDelay = DefaultRetryDelay
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := retryDelay * time.Duration(1<<uint(attempt-1))
			log.Printf("[Collector] %s: retry %d/%d after %v", label, attempt, maxRetries, backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		log.Printf("[Collector] %s: attempt %d/%d failed: %v", label, attempt+1, maxRetries+1, lastErr)
	}
	return lastErr
}
