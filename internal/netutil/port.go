// Package netutil holds small network helpers used before binding a
// listener.
package netutil

import (
	"fmt"
	"net"
	"strconv"
)

// IsPortAvailable reports, by binding and releasing it, whether host:port can
// be listened on. Port 0 always succeeds.
func IsPortAvailable(host string, port int) error {
	if port < 0 || port > 65535 {
		return fmt.Errorf("invalid port %d", port)
	}

	ln, err := net.Listen("tcp", JoinHostPort(host, port))
	if err != nil {
		return fmt.Errorf("port %d unavailable on %q: %w", port, host, err)
	}
	return ln.Close()
}

// JoinHostPort joins host and port, defaulting the host to the loopback
// interface
func JoinHostPort(host string, port int) string {
	if host == "" {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}
