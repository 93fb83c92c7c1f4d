// Package pact verifies message producers against consumer contracts by
// exposing them to an HTTP driven verifier through a short-lived proxy.
package pact

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/glimte/mmate-pact/contracts"
	"github.com/glimte/mmate-pact/internal/netutil"
	"github.com/glimte/mmate-pact/messaging"
	"github.com/glimte/mmate-pact/verification"
	"github.com/glimte/mmate-pact/verifier"
	"github.com/google/uuid"
)

const shutdownTimeout = 5 * time.Second

// proxy is the lifecycle surface of verification.ProxyServer
type proxy interface {
	Start(ctx context.Context) error
	URL() string
	Close(ctx context.Context) error
}

// MessageProviderPact provides the main entry point for message verification
type MessageProviderPact struct {
	opts     Options
	handlers *messaging.HandlerRegistry
	states   *messaging.StateRegistry
	handler  *verification.Handler
	verifier verifier.Verifier
	logger   *slog.Logger
	observer func(runID string, phase Phase)

	newProxy func(handler http.Handler, options ...verification.ServerOption) proxy
}

// NewMessageProviderPact creates a verifiable message provider
func NewMessageProviderPact(opts Options, options ...Option) (*MessageProviderPact, error) {
	cfg := &providerConfig{}
	for _, opt := range options {
		opt(cfg)
	}

	if cfg.logger == nil {
		logger, err := newLogger(opts.LogLevel)
		if err != nil {
			return nil, err
		}
		cfg.logger = logger
	}
	logger := cfg.logger.With("provider", opts.Provider)

	if opts.Port < 0 || opts.Port > 65535 {
		return nil, fmt.Errorf("invalid proxy port %d", opts.Port)
	}
	if opts.Host == "" {
		opts.Host = "127.0.0.1"
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = verification.DefaultReadyTimeout
	}

	// Recover sits inside Timeout so it runs on the producer's goroutine
	var middleware []messaging.Middleware
	if opts.ProducerTimeout > 0 {
		middleware = append(middleware, messaging.TimeoutMiddleware(opts.ProducerTimeout))
	}
	middleware = append(middleware, messaging.RecoverMiddleware())
	middleware = append(middleware, cfg.middleware...)

	handlers := messaging.NewHandlerRegistry(
		messaging.WithRegistryLogger(logger),
		messaging.WithMiddleware(middleware...),
	)
	for description, fn := range opts.MessageProviders {
		if err := handlers.RegisterFunc(description, fn); err != nil {
			return nil, fmt.Errorf("failed to register message provider: %w", err)
		}
	}

	states := messaging.NewStateRegistry(messaging.WithStateLogger(logger))
	for name, fn := range opts.StateHandlers {
		if err := states.RegisterFunc(name, fn); err != nil {
			return nil, fmt.Errorf("failed to register state handler: %w", err)
		}
	}

	if handlers.Len() == 0 {
		logger.Warn("no message providers registered, every interaction will fail")
	}

	v := cfg.verifier
	if v == nil {
		process, err := verifier.NewProcessVerifier(verifier.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("failed to create verifier: %w", err)
		}
		v = process
	}

	return &MessageProviderPact{
		opts:     opts,
		handlers: handlers,
		states:   states,
		handler: verification.NewHandler(handlers, states,
			verification.WithHandlerLogger(logger),
			verification.WithMetrics(cfg.metrics),
		),
		verifier: v,
		logger:   logger,
		observer: cfg.observer,
		newProxy: func(handler http.Handler, options ...verification.ServerOption) proxy {
			return verification.NewProxyServer(handler, options...)
		},
	}, nil
}

// Verify runs one verification: it starts a proxy, waits until it accepts
// connections, runs the verifier against it and stops the proxy on every
// path. A completed run that found a mismatch returns the outcome together
// with a *contracts.MismatchError. Every run ends in PhaseDone; failed runs
// pass through PhaseFailed first.
func (p *MessageProviderPact) Verify(ctx context.Context) (outcome *verifier.Outcome, err error) {
	r := p.newRun()

	server := p.newProxy(p.handler,
		verification.WithAddress(p.opts.Host, p.opts.Port),
		verification.WithReadyTimeout(p.opts.ReadyTimeout),
		verification.WithServerLogger(r.logger),
	)

	defer func() {
		r.enter(PhaseStopping)
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if closeErr := server.Close(closeCtx); closeErr != nil {
			r.logger.Warn("failed to close verification proxy", "error", closeErr)
		}
		r.finish(outcome, err)
	}()

	r.enter(PhaseStarting)

	if p.opts.Port != 0 {
		if err := netutil.IsPortAvailable(p.opts.Host, p.opts.Port); err != nil {
			return nil, &contracts.BindError{Addr: netutil.JoinHostPort(p.opts.Host, p.opts.Port), Err: err}
		}
	}

	if err := server.Start(ctx); err != nil {
		return nil, err
	}
	r.enter(PhaseReady)

	r.enter(PhaseVerifying)
	outcome, err = p.verifier.Verify(ctx, p.request(server.URL()))
	if err != nil {
		var verifierErr *contracts.VerifierError
		if !errors.As(err, &verifierErr) {
			err = &contracts.VerifierError{Op: "verify", Err: err}
		}
		return nil, err
	}
	if outcome == nil {
		return nil, &contracts.VerifierError{Op: "verify", Err: errors.New("verifier returned no outcome")}
	}
	if !outcome.Passed {
		return outcome, &contracts.MismatchError{ExitCode: outcome.ExitCode, Output: outcome.Output}
	}

	return outcome, nil
}

// Descriptions returns the registered message descriptions
func (p *MessageProviderPact) Descriptions() []string {
	return p.handlers.Descriptions()
}

// Handlers returns the message producer registry
func (p *MessageProviderPact) Handlers() *messaging.HandlerRegistry {
	return p.handlers
}

// States returns the provider state registry
func (p *MessageProviderPact) States() *messaging.StateRegistry {
	return p.states
}

// Handler returns the HTTP handler served by every verification proxy
func (p *MessageProviderPact) Handler() http.Handler {
	return p.handler
}

func (p *MessageProviderPact) request(baseURL string) verifier.Request {
	return verifier.Request{
		ProviderBaseURL:           baseURL,
		Provider:                  p.opts.Provider,
		Consumer:                  p.opts.Consumer,
		ProviderVersion:           p.opts.ProviderVersion,
		MessageProviders:          p.handlers.Descriptions(),
		PactURLs:                  p.opts.PactURLs,
		PactBrokerURL:             p.opts.PactBrokerURL,
		BrokerUsername:            p.opts.PactBrokerUsername,
		BrokerPassword:            p.opts.PactBrokerPassword,
		BrokerToken:               p.opts.PactBrokerToken,
		PublishVerificationResult: p.opts.PublishVerificationResult,
		ProviderVersionTags:       p.opts.Tags,
		ConsumerVersionTags:       p.opts.ConsumerVersionTags,
		CustomProviderHeaders:     p.opts.CustomProviderHeaders,
		Timeout:                   p.opts.VerifierTimeout,
	}
}

// run tracks the phase of one Verify call
type run struct {
	id       string
	phase    Phase
	started  time.Time
	logger   *slog.Logger
	observer func(runID string, phase Phase)
}

func (p *MessageProviderPact) newRun() *run {
	id := uuid.New().String()
	return &run{
		id:       id,
		phase:    PhaseIdle,
		started:  time.Now(),
		logger:   p.logger.With("runId", id),
		observer: p.observer,
	}
}

func (r *run) enter(phase Phase) {
	r.logger.Debug("verification phase", "from", r.phase, "phase", phase)
	r.phase = phase
	if r.observer != nil {
		r.observer(r.id, phase)
	}
}

func (r *run) finish(outcome *verifier.Outcome, err error) {
	if err != nil {
		r.enter(PhaseFailed)
		r.logger.Error("verification failed",
			"kind", contracts.Kind(err),
			"duration", time.Since(r.started),
			"error", err)
		r.enter(PhaseDone)
		return
	}

	r.enter(PhaseDone)
	r.logger.Info("verification passed", "duration", time.Since(r.started), "verifierDuration", outcome.Duration)
}
