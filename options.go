package pact

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/glimte/mmate-pact/messaging"
	"github.com/glimte/mmate-pact/verification"
	"github.com/glimte/mmate-pact/verifier"
)

// Options describes one message provider under verification
type Options struct {
	Provider        string
	Consumer        string
	ProviderVersion string

	// MessageProviders maps each contract description to the function that
	// produces its message
	MessageProviders map[string]messaging.ProducerFunc
	// StateHandlers maps provider state names to their setup functions
	StateHandlers map[string]messaging.StateFunc

	// Pact sources and broker settings, passed through to the verifier
	PactURLs                  []string
	PactBrokerURL             string
	PactBrokerUsername        string
	PactBrokerPassword        string
	PactBrokerToken           string
	PublishVerificationResult bool
	Tags                      []string
	ConsumerVersionTags       []string
	CustomProviderHeaders     []string

	// Host and Port of the verification proxy. Port 0 picks a free port.
	Host string
	Port int

	// LogLevel applies when no logger is injected: debug, info, warn or error
	LogLevel string

	// ReadyTimeout bounds the wait for the proxy to accept connections
	ReadyTimeout time.Duration
	// ProducerTimeout bounds each producer call. Zero means unbounded.
	ProducerTimeout time.Duration
	// VerifierTimeout bounds the verifier run. Zero means unbounded.
	VerifierTimeout time.Duration
}

// Phase is a step of a verification run
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseStarting  Phase = "starting"
	PhaseReady     Phase = "ready"
	PhaseVerifying Phase = "verifying"
	PhaseStopping  Phase = "stopping"
	PhaseDone      Phase = "done"
	PhaseFailed    Phase = "failed"
)

// providerConfig holds constructor configuration
type providerConfig struct {
	logger     *slog.Logger
	verifier   verifier.Verifier
	metrics    *verification.Metrics
	middleware []messaging.Middleware
	observer   func(runID string, phase Phase)
}

// Option configures the MessageProviderPact
type Option func(*providerConfig)

// WithLogger sets the logger for all components. It takes precedence over
// Options.LogLevel.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *providerConfig) {
		cfg.logger = logger
	}
}

// WithVerifier replaces the default pact-provider-verifier process
func WithVerifier(v verifier.Verifier) Option {
	return func(cfg *providerConfig) {
		cfg.verifier = v
	}
}

// WithMetrics records proxy activity on the given metrics
func WithMetrics(metrics *verification.Metrics) Option {
	return func(cfg *providerConfig) {
		cfg.metrics = metrics
	}
}

// WithMiddleware wraps every producer call
func WithMiddleware(middleware ...messaging.Middleware) Option {
	return func(cfg *providerConfig) {
		cfg.middleware = append(cfg.middleware, middleware...)
	}
}

// WithPhaseObserver is called on every phase transition of every run
func WithPhaseObserver(fn func(runID string, phase Phase)) Option {
	return func(cfg *providerConfig) {
		cfg.observer = fn
	}
}

// ParseLogLevel maps a level name to a slog level. An empty name is info.
func ParseLogLevel(name string) (slog.Level, error) {
	var level slog.Level
	if strings.TrimSpace(name) == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(strings.TrimSpace(name))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: %w", name, err)
	}
	return level, nil
}

func newLogger(levelName string) (*slog.Logger, error) {
	level, err := ParseLogLevel(levelName)
	if err != nil {
		return nil, err
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})), nil
}
