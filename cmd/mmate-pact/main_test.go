package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/glimte/mmate-pact/contracts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckPortCommand(t *testing.T) {
	t.Run("reports a free port", func(t *testing.T) {
		listener, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		port := listener.Addr().(*net.TCPAddr).Port
		require.NoError(t, listener.Close())

		cmd := newCheckPortCmd()
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetArgs([]string{fmt.Sprint(port)})

		require.NoError(t, cmd.Execute())
		assert.Contains(t, out.String(), "is available")
	})

	t.Run("fails on a port in use", func(t *testing.T) {
		listener, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		defer listener.Close()

		cmd := newCheckPortCmd()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{fmt.Sprint(listener.Addr().(*net.TCPAddr).Port)})

		assert.Error(t, cmd.Execute())
	})

	t.Run("rejects a non-numeric port", func(t *testing.T) {
		cmd := newCheckPortCmd()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{"http"})

		assert.Error(t, cmd.Execute())
	})
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, exitMismatch, exitCode(&contracts.MismatchError{ExitCode: 1}))
	assert.Equal(t, exitFault, exitCode(&contracts.VerifierError{Op: "start", Err: errors.New("missing")}))
	assert.Equal(t, exitFault, exitCode(errors.New("bad flag")))
}

func TestGlobalFlagsLoad(t *testing.T) {
	t.Run("uses defaults without a config file", func(t *testing.T) {
		flags := &globalFlags{logLevel: "debug"}

		cfg, logger, err := flags.load()

		require.NoError(t, err)
		assert.NotNil(t, logger)
		assert.Equal(t, "debug", cfg.LogLevel)
		assert.Equal(t, "127.0.0.1", cfg.Proxy.Host)
	})

	t.Run("overrides the config file with flags", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "pact.yaml")
		require.NoError(t, os.WriteFile(path, []byte("provider: orders\nmetricsAddr: :9090\n"), 0o644))
		flags := &globalFlags{configPath: path, metricsAddr: ":9191"}

		cfg, _, err := flags.load()

		require.NoError(t, err)
		assert.Equal(t, "orders", cfg.Provider)
		assert.Equal(t, ":9191", cfg.MetricsAddr)
	})

	t.Run("rejects an unknown log level", func(t *testing.T) {
		flags := &globalFlags{logLevel: "loud"}

		_, _, err := flags.load()
		assert.Error(t, err)
	})
}

// syncBuffer lets the test read command output while the command runs
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestServeCommand(t *testing.T) {
	t.Run("stops the proxy when its context ends", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "greet.json"),
			[]byte(`{"description": "greet", "contents": "hello"}`), 0o644))

		cmd := newServeCmd(&globalFlags{logLevel: "error"})
		out := &syncBuffer{}
		cmd.SetOut(out)
		cmd.SetErr(out)
		cmd.SetArgs([]string{"--fixtures", dir, "--port", "0"})

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		done := make(chan error, 1)
		go func() { done <- cmd.ExecuteContext(ctx) }()

		require.Eventually(t, func() bool {
			return strings.Contains(out.String(), "Press Ctrl+C to stop")
		}, 5*time.Second, 10*time.Millisecond)
		assert.Contains(t, out.String(), "Serving 1 messages at http://127.0.0.1:")
		assert.Contains(t, out.String(), "greet")

		cancel()

		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(shutdownTimeout + 2*time.Second):
			t.Fatal("serve should exit once its context ends")
		}
	})

	t.Run("requires a fixture directory", func(t *testing.T) {
		cmd := newServeCmd(&globalFlags{})
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{})

		assert.ErrorContains(t, cmd.Execute(), "fixture directory")
	})
}
