package llm

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Backoff describes an exponential retry policy. Only errors for which
// IsRetryable reports true are retried.
type Backoff struct {
	MaxRetries int           // retries after the initial attempt
	BaseDelay  time.Duration // delay before the first retry
	MaxDelay   time.Duration // cap on any single delay
	Multiplier float64       // growth factor per attempt
	Jitter     bool          // randomize each delay by +/-50%
}

// DefaultBackoff returns the standard policy: 2 retries, 1s base, 60s cap,
// doubling, jittered.
func DefaultBackoff() Backoff {
	return Backoff{
		MaxRetries: 2,
		BaseDelay:  time.Second,
		MaxDelay:   60 * time.Second,
		Multiplier: 2.0,
		Jitter:     true,
	}
}

// Delay returns the delay before retry number attempt (0-based).
func (b Backoff) Delay(attempt int) time.Duration {
	d := float64(b.BaseDelay) * math.Pow(b.Multiplier, float64(attempt))
	if max := float64(b.MaxDelay); d > max {
		d = max
	}
	if b.Jitter {
		// Uniform in [0.5d, 1.5d).
		d = d * (0.5 + rand.Float64())
	}
	return time.Duration(d)
}

// Do invokes fn until it succeeds, returns a non-retryable error, exhausts
// the retry budget, or ctx is cancelled.
func Do[T any](ctx context.Context, b Backoff, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return zero, lastErr
			}
			return zero, err
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !IsRetryable(err) || attempt >= b.MaxRetries {
			return zero, err
		}

		select {
		case <-time.After(b.Delay(attempt)):
		case <-ctx.Done():
			return zero, lastErr
		}
	}
}
