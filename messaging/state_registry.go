package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/glimte/mmate-pact/contracts"
)

// StateHandler establishes a provider state before a message is produced
type StateHandler interface {
	Setup(ctx context.Context, state contracts.ProviderState) (interface{}, error)
}

// StateFunc is a function adapter for StateHandler
type StateFunc func(ctx context.Context, state contracts.ProviderState) (interface{}, error)

// Setup implements StateHandler
func (f StateFunc) Setup(ctx context.Context, state contracts.ProviderState) (interface{}, error) {
	return f(ctx, state)
}

// StateRegistry maps provider state names to setup handlers
type StateRegistry struct {
	handlers map[string]StateHandler
	mu       sync.RWMutex
	logger   *slog.Logger
}

// StateRegistryOption configures a StateRegistry
type StateRegistryOption func(*StateRegistry)

// WithStateLogger sets the logger
func WithStateLogger(logger *slog.Logger) StateRegistryOption {
	return func(r *StateRegistry) {
		r.logger = logger
	}
}

// NewStateRegistry creates an empty state registry
func NewStateRegistry(options ...StateRegistryOption) *StateRegistry {
	r := &StateRegistry{
		handlers: make(map[string]StateHandler),
		logger:   slog.Default(),
	}

	for _, opt := range options {
		opt(r)
	}

	return r
}

// Register binds a setup handler to a state name. A state name can only be
// registered once.
func (r *StateRegistry) Register(name string, handler StateHandler) error {
	if name == "" {
		return fmt.Errorf("state name cannot be empty")
	}
	if handler == nil {
		return fmt.Errorf("state handler cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[name]; exists {
		return fmt.Errorf("%w: state handler %q", contracts.ErrDuplicateRegistration, name)
	}
	r.handlers[name] = handler

	r.logger.Debug("registered state handler", "state", name)
	return nil
}

// RegisterFunc registers a function as a state handler
func (r *StateRegistry) RegisterFunc(name string, fn StateFunc) error {
	if fn == nil {
		return fmt.Errorf("state handler cannot be nil")
	}
	return r.Register(name, fn)
}

// ResolveAll runs the handlers for the message's provider states in
// declaration order and returns their results. States without a handler are
// skipped. The first failing handler aborts the run; earlier setups are not
// rolled back.
func (r *StateRegistry) ResolveAll(ctx context.Context, msg *contracts.Message) ([]interface{}, error) {
	if msg == nil {
		return nil, fmt.Errorf("message cannot be nil")
	}

	results := make([]interface{}, 0, len(msg.ProviderStates))
	for _, state := range msg.ProviderStates {
		r.mu.RLock()
		handler, exists := r.handlers[state.Name]
		r.mu.RUnlock()

		if !exists {
			r.logger.Debug("no state handler registered, skipping", "state", state.Name)
			continue
		}

		if err := ctx.Err(); err != nil {
			return nil, &contracts.StateSetupError{State: state.Name, Err: err}
		}

		result, err := handler.Setup(ctx, state)
		if err != nil {
			r.logger.Error("state setup failed",
				"state", state.Name,
				"description", msg.Description,
				"error", err,
			)
			return nil, &contracts.StateSetupError{State: state.Name, Err: err}
		}
		results = append(results, result)
	}

	return results, nil
}

// Names returns the registered state names in sorted order
func (r *StateRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
