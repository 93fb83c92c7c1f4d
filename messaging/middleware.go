package messaging

import (
	"context"
	"fmt"
	"time"
)

// TimeoutMiddleware bounds each producer invocation. A producer that ignores
// its context keeps running in the background after the deadline; its result
// is discarded.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(ctx context.Context, description string, next Producer) (interface{}, error) {
		if timeout <= 0 {
			return next.Produce(ctx)
		}

		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		type produced struct {
			value interface{}
			err   error
		}
		done := make(chan produced, 1)

		go func() {
			value, err := next.Produce(ctx)
			done <- produced{value: value, err: err}
		}()

		select {
		case result := <-done:
			return result.value, result.err
		case <-ctx.Done():
			return nil, fmt.Errorf("producer for %q did not finish within %v: %w", description, timeout, ctx.Err())
		}
	}
}

// RecoverMiddleware turns a panicking producer into an error
func RecoverMiddleware() Middleware {
	return func(ctx context.Context, description string, next Producer) (value interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				value = nil
				err = fmt.Errorf("producer for %q panicked: %v", description, r)
			}
		}()
		return next.Produce(ctx)
	}
}
