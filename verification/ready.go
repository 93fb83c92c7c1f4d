package verification

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/glimte/mmate-pact/contracts"
	"github.com/glimte/mmate-pact/internal/reliability"
)

// DefaultReadyTimeout bounds the wait for a freshly bound proxy
const DefaultReadyTimeout = 10 * time.Second

// WaitForReady blocks until addr accepts TCP connections or timeout elapses.
// A timeout of zero uses DefaultReadyTimeout.
func WaitForReady(ctx context.Context, addr string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultReadyTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	dialer := &net.Dialer{Timeout: 500 * time.Millisecond}
	backoff := reliability.NewExponentialBackoff(5*time.Millisecond, 200*time.Millisecond, 2.0)

	err := reliability.Until(ctx, backoff, func(ctx context.Context) error {
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return err
		}
		return conn.Close()
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %w", contracts.ErrReadyTimeout, addr, err)
	}
	return nil
}
