package verifier

import (
	"context"
	"time"
)

// Request describes one verification run. Broker and pact source fields are
// passed through to the verifier untouched.
type Request struct {
	// ProviderBaseURL is the address of the running verification proxy
	ProviderBaseURL string
	Provider        string
	Consumer        string
	ProviderVersion string

	// MessageProviders lists the descriptions the proxy can produce
	MessageProviders []string

	PactURLs                  []string
	PactBrokerURL             string
	BrokerUsername            string
	BrokerPassword            string
	BrokerToken               string
	PublishVerificationResult bool
	ProviderVersionTags       []string
	ConsumerVersionTags       []string
	CustomProviderHeaders     []string

	// Timeout bounds the whole run. Zero means no limit beyond the context.
	Timeout time.Duration
}

// Outcome is the result of a verification run that completed
type Outcome struct {
	Passed   bool
	Output   string
	ExitCode int
	Duration time.Duration
}

// Verifier drives the proxy and judges contract compliance. An error means
// the verifier could not do its job; a contract mismatch is reported as an
// Outcome with Passed set to false.
type Verifier interface {
	Verify(ctx context.Context, req Request) (*Outcome, error)
}

// Func adapts a function to the Verifier interface
type Func func(ctx context.Context, req Request) (*Outcome, error)

// Verify implements Verifier
func (f Func) Verify(ctx context.Context, req Request) (*Outcome, error) {
	return f(ctx, req)
}
