package chainsvc

import (
	"context"
	"time"
)

// WithRetry runs fn up to retries+1 times, backing off between
// attempts with a bounded exponential-ish delay, the bounded
// exponential-ish backoff spec.md §4.3 calls for. retries caps the
// number of additional attempts after the first.
func WithRetry(ctx context.Context, retries int, fn func() error) error {
	var err error
	delay := 200 * time.Millisecond
	const maxDelay = 5 * time.Second

	for attempt := 0; attempt <= retries; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == retries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
	return err
}
