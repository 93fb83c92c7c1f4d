package verifier

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/glimte/mmate-pact/contracts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeVerifier writes a shell script that prints its arguments, reports a
// version and exits with FAKE_EXIT_CODE.
func fakeVerifier(t *testing.T, version string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not executable on windows")
	}

	script := `#!/bin/sh
if [ "$1" = "--version" ]; then
  echo "` + version + `"
  exit 0
fi
echo "args: $*"
if [ -n "$FAKE_SLEEP" ]; then
  exec sleep "$FAKE_SLEEP"
fi
exit ${FAKE_EXIT_CODE:-0}
`
	path := filepath.Join(t.TempDir(), "pact-provider-verifier")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestBuildArgs(t *testing.T) {
	t.Run("only includes populated fields", func(t *testing.T) {
		args := BuildArgs(Request{ProviderBaseURL: "http://127.0.0.1:9000"})

		assert.Equal(t, []string{"--provider-base-url", "http://127.0.0.1:9000"}, args)
	})

	t.Run("passes every broker option through", func(t *testing.T) {
		args := BuildArgs(Request{
			ProviderBaseURL:           "http://127.0.0.1:9000",
			Provider:                  "order-service",
			ProviderVersion:           "1.0.0",
			PactURLs:                  []string{"pacts/a.json", "pacts/b.json"},
			PactBrokerURL:             "https://broker.example.com",
			BrokerUsername:            "user",
			BrokerPassword:            "secret",
			BrokerToken:               "token",
			PublishVerificationResult: true,
			ProviderVersionTags:       []string{"main", "prod"},
			ConsumerVersionTags:       []string{"latest"},
			CustomProviderHeaders:     []string{"Authorization: Bearer x"},
		})

		assert.Equal(t, []string{
			"--provider-base-url", "http://127.0.0.1:9000",
			"--provider", "order-service",
			"--provider-app-version", "1.0.0",
			"--pact-broker-base-url", "https://broker.example.com",
			"--broker-username", "user",
			"--broker-password", "secret",
			"--broker-token", "token",
			"--publish-verification-results",
			"--provider-version-tag", "main",
			"--provider-version-tag", "prod",
			"--consumer-version-tag", "latest",
			"--custom-provider-header", "Authorization: Bearer x",
			"pacts/a.json", "pacts/b.json",
		}, args)
	})
}

func TestParseVersion(t *testing.T) {
	tests := []struct {
		banner   string
		expected string
	}{
		{"1.92.0", "1.92.0"},
		{"pact-provider-verifier v1.88.3\n", "1.88.3"},
		{"verifier (2.0.0-rc.1)", "2.0.0-rc.1"},
	}

	for _, tt := range tests {
		version, err := ParseVersion(tt.banner)
		require.NoError(t, err, tt.banner)
		assert.Equal(t, tt.expected, version.String())
	}

	_, err := ParseVersion("no version here")
	assert.Error(t, err)
}

func TestProcessVerifier(t *testing.T) {
	req := Request{ProviderBaseURL: "http://127.0.0.1:9000", Provider: "order-service"}

	t.Run("passes when the binary exits cleanly", func(t *testing.T) {
		v, err := NewProcessVerifier(WithBinary(fakeVerifier(t, "1.92.0")))
		require.NoError(t, err)

		outcome, err := v.Verify(context.Background(), req)

		require.NoError(t, err)
		assert.True(t, outcome.Passed)
		assert.Equal(t, 0, outcome.ExitCode)
		assert.Contains(t, outcome.Output, "--provider-base-url http://127.0.0.1:9000")
		assert.Contains(t, outcome.Output, "--provider order-service")
	})

	t.Run("reports a non-zero exit as a failed outcome", func(t *testing.T) {
		v, err := NewProcessVerifier(WithBinary(fakeVerifier(t, "1.92.0")), WithEnv("FAKE_EXIT_CODE=3"))
		require.NoError(t, err)

		outcome, err := v.Verify(context.Background(), req)

		require.NoError(t, err)
		assert.False(t, outcome.Passed)
		assert.Equal(t, 3, outcome.ExitCode)
	})

	t.Run("reports a missing binary as a fault", func(t *testing.T) {
		v, err := NewProcessVerifier(WithBinary(filepath.Join(t.TempDir(), "does-not-exist")))
		require.NoError(t, err)

		outcome, err := v.Verify(context.Background(), req)

		assert.Nil(t, outcome)
		assert.ErrorIs(t, err, contracts.ErrVerifierFault)
		var verifierErr *contracts.VerifierError
		require.ErrorAs(t, err, &verifierErr)
		assert.Equal(t, "start", verifierErr.Op)
	})

	t.Run("requires a provider base URL", func(t *testing.T) {
		v, err := NewProcessVerifier(WithBinary(fakeVerifier(t, "1.92.0")))
		require.NoError(t, err)

		_, err = v.Verify(context.Background(), Request{})

		assert.ErrorIs(t, err, contracts.ErrVerifierFault)
	})

	t.Run("reports a timed out run as a fault", func(t *testing.T) {
		v, err := NewProcessVerifier(WithBinary(fakeVerifier(t, "1.92.0")), WithEnv("FAKE_SLEEP=5"))
		require.NoError(t, err)

		timed := req
		timed.Timeout = 100 * time.Millisecond
		_, err = v.Verify(context.Background(), timed)

		assert.ErrorIs(t, err, contracts.ErrVerifierFault)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("accepts a version inside the constraint", func(t *testing.T) {
		v, err := NewProcessVerifier(WithBinary(fakeVerifier(t, "pact-provider-verifier 1.92.0")), WithMinVersion(">= 1.88"))
		require.NoError(t, err)

		outcome, err := v.Verify(context.Background(), req)

		require.NoError(t, err)
		assert.True(t, outcome.Passed)
	})

	t.Run("rejects a version outside the constraint", func(t *testing.T) {
		v, err := NewProcessVerifier(WithBinary(fakeVerifier(t, "1.50.0")), WithMinVersion(">= 1.88"))
		require.NoError(t, err)

		outcome, err := v.Verify(context.Background(), req)

		assert.Nil(t, outcome)
		var verifierErr *contracts.VerifierError
		require.ErrorAs(t, err, &verifierErr)
		assert.Equal(t, "version", verifierErr.Op)
		assert.Contains(t, err.Error(), "1.50.0")
	})

	t.Run("rejects an invalid constraint at construction", func(t *testing.T) {
		_, err := NewProcessVerifier(WithMinVersion("not a constraint"))
		assert.Error(t, err)
	})

	t.Run("rejects an empty binary path", func(t *testing.T) {
		_, err := NewProcessVerifier(WithBinary(""))
		assert.Error(t, err)
	})
}

func TestFunc(t *testing.T) {
	var got Request
	v := Func(func(ctx context.Context, req Request) (*Outcome, error) {
		got = req
		return &Outcome{Passed: true}, nil
	})

	outcome, err := v.Verify(context.Background(), Request{Provider: "p"})

	require.NoError(t, err)
	assert.True(t, outcome.Passed)
	assert.Equal(t, "p", got.Provider)
}
