package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/glimte/mmate-pact/contracts"
)

// Producer generates the content of one message, the way the live provider
// would before publishing it
type Producer interface {
	Produce(ctx context.Context) (interface{}, error)
}

// ProducerFunc is a function adapter for Producer
type ProducerFunc func(ctx context.Context) (interface{}, error)

// Produce implements Producer
func (f ProducerFunc) Produce(ctx context.Context) (interface{}, error) {
	return f(ctx)
}

// Middleware wraps producer invocation
type Middleware func(ctx context.Context, description string, next Producer) (interface{}, error)

// HandlerRegistry maps message descriptions to producers
type HandlerRegistry struct {
	producers  map[string]Producer
	mu         sync.RWMutex
	logger     *slog.Logger
	middleware []Middleware
}

// RegistryOption configures a HandlerRegistry
type RegistryOption func(*HandlerRegistry)

// WithRegistryLogger sets the logger
func WithRegistryLogger(logger *slog.Logger) RegistryOption {
	return func(r *HandlerRegistry) {
		r.logger = logger
	}
}

// WithMiddleware adds producer middleware, outermost first
func WithMiddleware(middleware ...Middleware) RegistryOption {
	return func(r *HandlerRegistry) {
		r.middleware = append(r.middleware, middleware...)
	}
}

// NewHandlerRegistry creates an empty handler registry
func NewHandlerRegistry(options ...RegistryOption) *HandlerRegistry {
	r := &HandlerRegistry{
		producers: make(map[string]Producer),
		logger:    slog.Default(),
	}

	for _, opt := range options {
		opt(r)
	}

	return r
}

// Register binds a producer to a description. A description can only be
// registered once.
func (r *HandlerRegistry) Register(description string, producer Producer) error {
	if description == "" {
		return fmt.Errorf("description cannot be empty")
	}
	if producer == nil {
		return fmt.Errorf("producer cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.producers[description]; exists {
		return fmt.Errorf("%w: message provider %q", contracts.ErrDuplicateRegistration, description)
	}
	r.producers[description] = producer

	r.logger.Debug("registered message provider", "description", description)
	return nil
}

// RegisterFunc registers a function as a producer
func (r *HandlerRegistry) RegisterFunc(description string, fn ProducerFunc) error {
	if fn == nil {
		return fmt.Errorf("producer cannot be nil")
	}
	return r.Register(description, fn)
}

// Resolve returns the producer for a description wrapped in the registry
// middleware
func (r *HandlerRegistry) Resolve(ctx context.Context, description string) (Producer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	producer, exists := r.producers[description]
	r.mu.RUnlock()

	if !exists {
		r.logger.Warn("no message provider registered", "description", description)
		return nil, &contracts.HandlerNotFoundError{Description: description}
	}

	return r.buildMiddlewareChain(description, producer), nil
}

// Descriptions returns the registered descriptions in sorted order
func (r *HandlerRegistry) Descriptions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	descriptions := make([]string, 0, len(r.producers))
	for description := range r.producers {
		descriptions = append(descriptions, description)
	}
	sort.Strings(descriptions)
	return descriptions
}

// Len returns the number of registered producers
func (r *HandlerRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.producers)
}

func (r *HandlerRegistry) buildMiddlewareChain(description string, producer Producer) Producer {
	if len(r.middleware) == 0 {
		return producer
	}

	result := producer
	for i := len(r.middleware) - 1; i >= 0; i-- {
		middleware := r.middleware[i]
		next := result
		result = ProducerFunc(func(ctx context.Context) (interface{}, error) {
			return middleware(ctx, description, next)
		})
	}

	return result
}
