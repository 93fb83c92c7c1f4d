package reliability

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExponentialBackoff(t *testing.T) {
	t.Run("creates with given settings", func(t *testing.T) {
		eb := NewExponentialBackoff(100*time.Millisecond, 5*time.Second, 2.0)

		assert.Equal(t, 100*time.Millisecond, eb.InitialInterval)
		assert.Equal(t, 5*time.Second, eb.MaxInterval)
		assert.Equal(t, 2.0, eb.Multiplier)
	})

	t.Run("NextDelay grows and caps", func(t *testing.T) {
		eb := NewExponentialBackoff(100*time.Millisecond, time.Second, 2.0)

		tests := []struct {
			attempt  int
			expected time.Duration
		}{
			{0, 100 * time.Millisecond},
			{1, 200 * time.Millisecond},
			{2, 400 * time.Millisecond},
			{3, 800 * time.Millisecond},
			{4, time.Second},
			{10, time.Second},
		}

		for _, tt := range tests {
			assert.Equal(t, tt.expected, eb.NextDelay(tt.attempt), "attempt %d", tt.attempt)
		}
	})
}

func TestFixedDelay(t *testing.T) {
	delay := FixedDelay(50 * time.Millisecond)

	assert.Equal(t, 50*time.Millisecond, delay.NextDelay(0))
	assert.Equal(t, 50*time.Millisecond, delay.NextDelay(7))
}

func TestUntil(t *testing.T) {
	t.Run("returns once fn succeeds", func(t *testing.T) {
		var calls int32
		err := Until(context.Background(), FixedDelay(time.Millisecond), func(ctx context.Context) error {
			if atomic.AddInt32(&calls, 1) < 3 {
				return errors.New("not yet")
			}
			return nil
		})

		assert.NoError(t, err)
		assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	})

	t.Run("stops on permanent errors", func(t *testing.T) {
		cause := errors.New("fatal")
		var calls int32
		err := Until(context.Background(), FixedDelay(time.Millisecond), func(ctx context.Context) error {
			atomic.AddInt32(&calls, 1)
			return Permanent(cause)
		})

		assert.ErrorIs(t, err, cause)
		assert.True(t, IsPermanent(err))
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})

	t.Run("gives up when the context expires", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()
		cause := errors.New("connection refused")

		err := Until(ctx, FixedDelay(5*time.Millisecond), func(ctx context.Context) error {
			return cause
		})

		require.Error(t, err)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		var pollErr *PollError
		require.ErrorAs(t, err, &pollErr)
		assert.Equal(t, cause, pollErr.LastError)
		assert.Greater(t, pollErr.Attempts, 0)
		assert.Contains(t, err.Error(), "connection refused")
	})

	t.Run("does not call fn with a done context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		called := false

		err := Until(ctx, FixedDelay(time.Millisecond), func(ctx context.Context) error {
			called = true
			return nil
		})

		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, called)
	})
}

func TestPermanent(t *testing.T) {
	assert.Nil(t, Permanent(nil))
	assert.False(t, IsPermanent(errors.New("plain")))

	err := Permanent(errors.New("bad address"))
	assert.Equal(t, "bad address", err.Error())
}
