package verifier

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/glimte/mmate-pact/contracts"
)

// DefaultBinary is the standalone verifier looked up on PATH
const DefaultBinary = "pact-provider-verifier"

// ProcessVerifier runs the standalone verifier binary against the proxy
type ProcessVerifier struct {
	path       string
	constraint *semver.Constraints
	env        []string
	logger     *slog.Logger
}

// ProcessOption configures the ProcessVerifier
type ProcessOption func(*processConfig)

type processConfig struct {
	path       string
	minVersion string
	env        []string
	logger     *slog.Logger
}

// WithBinary sets the verifier executable
func WithBinary(path string) ProcessOption {
	return func(c *processConfig) {
		c.path = path
	}
}

// WithMinVersion requires the verifier's reported version to satisfy a
// semver constraint such as ">= 1.88"
func WithMinVersion(constraint string) ProcessOption {
	return func(c *processConfig) {
		c.minVersion = constraint
	}
}

// WithEnv appends KEY=value pairs to the verifier's environment
func WithEnv(env ...string) ProcessOption {
	return func(c *processConfig) {
		c.env = append(c.env, env...)
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) ProcessOption {
	return func(c *processConfig) {
		c.logger = logger
	}
}

// NewProcessVerifier creates a verifier backed by an external binary
func NewProcessVerifier(options ...ProcessOption) (*ProcessVerifier, error) {
	cfg := &processConfig{
		path:   DefaultBinary,
		logger: slog.Default(),
	}
	for _, opt := range options {
		opt(cfg)
	}

	if cfg.path == "" {
		return nil, errors.New("verifier binary path is required")
	}

	v := &ProcessVerifier{
		path:   cfg.path,
		env:    cfg.env,
		logger: cfg.logger,
	}

	if cfg.minVersion != "" {
		constraint, err := semver.NewConstraint(cfg.minVersion)
		if err != nil {
			return nil, fmt.Errorf("invalid verifier version constraint %q: %w", cfg.minVersion, err)
		}
		v.constraint = constraint
	}

	return v, nil
}

// Verify implements Verifier. A non-zero exit is a failed outcome; anything
// that prevents the binary from running to completion is a
// *contracts.VerifierError.
func (v *ProcessVerifier) Verify(ctx context.Context, req Request) (*Outcome, error) {
	if req.ProviderBaseURL == "" {
		return nil, &contracts.VerifierError{Op: "prepare", Err: errors.New("provider base URL is required")}
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	if v.constraint != nil {
		if err := v.checkVersion(ctx); err != nil {
			return nil, err
		}
	}

	args := BuildArgs(req)
	v.logger.Info("running verifier",
		"binary", v.path,
		"providerBaseUrl", req.ProviderBaseURL,
		"provider", req.Provider,
		"messageProviders", len(req.MessageProviders))

	var output bytes.Buffer
	cmd := exec.CommandContext(ctx, v.path, args...)
	cmd.Stdout = &output
	cmd.Stderr = &output
	cmd.WaitDelay = time.Second
	if len(v.env) > 0 {
		cmd.Env = append(cmd.Environ(), v.env...)
	}

	start := time.Now()
	err := cmd.Run()
	outcome := &Outcome{
		Output:   output.String(),
		Duration: time.Since(start),
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, &contracts.VerifierError{Op: "run", Err: ctxErr}
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		outcome.Passed = true
	case errors.As(err, &exitErr):
		outcome.ExitCode = exitErr.ExitCode()
	default:
		return nil, &contracts.VerifierError{Op: "start", Err: err}
	}

	v.logger.Info("verifier finished",
		"passed", outcome.Passed,
		"exitCode", outcome.ExitCode,
		"duration", outcome.Duration)

	return outcome, nil
}

func (v *ProcessVerifier) checkVersion(ctx context.Context) error {
	out, err := exec.CommandContext(ctx, v.path, "--version").CombinedOutput()
	if err != nil {
		return &contracts.VerifierError{Op: "version", Err: err}
	}

	version, err := ParseVersion(string(out))
	if err != nil {
		return &contracts.VerifierError{Op: "version", Err: err}
	}

	if !v.constraint.Check(version) {
		return &contracts.VerifierError{
			Op:  "version",
			Err: fmt.Errorf("verifier version %s does not satisfy %s", version, v.constraint),
		}
	}

	v.logger.Debug("verifier version accepted", "version", version.String())
	return nil
}

// ParseVersion extracts the first semantic version found in a --version
// banner such as "pact-provider-verifier v1.92.0"
func ParseVersion(banner string) (*semver.Version, error) {
	for _, field := range strings.Fields(banner) {
		if version, err := semver.NewVersion(strings.Trim(field, "(),")); err == nil {
			return version, nil
		}
	}
	return nil, fmt.Errorf("no version found in %q", strings.TrimSpace(banner))
}

// BuildArgs translates a request into verifier command line arguments. Pact
// URLs are positional.
func BuildArgs(req Request) []string {
	args := []string{"--provider-base-url", req.ProviderBaseURL}

	if req.Provider != "" {
		args = append(args, "--provider", req.Provider)
	}
	if req.ProviderVersion != "" {
		args = append(args, "--provider-app-version", req.ProviderVersion)
	}
	if req.PactBrokerURL != "" {
		args = append(args, "--pact-broker-base-url", req.PactBrokerURL)
	}
	if req.BrokerUsername != "" {
		args = append(args, "--broker-username", req.BrokerUsername)
	}
	if req.BrokerPassword != "" {
		args = append(args, "--broker-password", req.BrokerPassword)
	}
	if req.BrokerToken != "" {
		args = append(args, "--broker-token", req.BrokerToken)
	}
	if req.PublishVerificationResult {
		args = append(args, "--publish-verification-results")
	}
	for _, tag := range req.ProviderVersionTags {
		args = append(args, "--provider-version-tag", tag)
	}
	for _, tag := range req.ConsumerVersionTags {
		args = append(args, "--consumer-version-tag", tag)
	}
	for _, header := range req.CustomProviderHeaders {
		args = append(args, "--custom-provider-header", header)
	}

	return append(args, req.PactURLs...)
}
