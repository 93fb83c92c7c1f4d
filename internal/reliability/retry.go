package reliability

import (
	"context"
	"math"
	"time"
)

// Backoff computes the delay before each retry attempt
type Backoff interface {
	// NextDelay returns the delay to wait after the given failed attempt
	NextDelay(attempt int) time.Duration
}

// ExponentialBackoff grows the delay by Multiplier after every attempt,
// capped at MaxInterval
type ExponentialBackoff struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

// NewExponentialBackoff creates a new exponential backoff
func NewExponentialBackoff(initial, max time.Duration, multiplier float64) *ExponentialBackoff {
	return &ExponentialBackoff{
		InitialInterval: initial,
		MaxInterval:     max,
		Multiplier:      multiplier,
	}
}

// NextDelay implements Backoff
func (e *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	delay := float64(e.InitialInterval) * math.Pow(e.Multiplier, float64(attempt))
	if e.MaxInterval > 0 && delay > float64(e.MaxInterval) {
		delay = float64(e.MaxInterval)
	}
	return time.Duration(delay)
}

// FixedDelay waits the same delay between attempts
type FixedDelay time.Duration

// NextDelay implements Backoff
func (f FixedDelay) NextDelay(int) time.Duration {
	return time.Duration(f)
}

// Until calls fn until it succeeds, fn reports a permanent error, or ctx is
// done. On context expiry the last error from fn is returned inside a
// *PollError.
func Until(ctx context.Context, backoff Backoff, fn func(ctx context.Context) error) error {
	start := time.Now()
	var lastErr error

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return &PollError{Attempts: attempt, Duration: time.Since(start), LastError: lastErr, Err: err}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		if IsPermanent(err) {
			return err
		}
		lastErr = err

		timer := time.NewTimer(backoff.NextDelay(attempt))
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return &PollError{Attempts: attempt + 1, Duration: time.Since(start), LastError: lastErr, Err: ctx.Err()}
		}
	}
}
