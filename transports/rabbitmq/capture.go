package rabbitmq

import (
	"context"
	"errors"
	"sync"

	"github.com/glimte/mmate-pact/contracts"
	"github.com/glimte/mmate-pact/messaging"
	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrNothingPublished is returned when captured production code published no
// message
var ErrNothingPublished = errors.New("no message was published")

// Publisher is the publishing surface production code depends on
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, msg amqp.Publishing) error
}

// Capture is one recorded publishing
type Capture struct {
	Exchange   string
	RoutingKey string
	Message    amqp.Publishing
}

// CapturePublisher records publishings instead of sending them to a broker
type CapturePublisher struct {
	mu       sync.Mutex
	captured []Capture
}

// NewCapturePublisher creates an empty capture
func NewCapturePublisher() *CapturePublisher {
	return &CapturePublisher{}
}

// Publish implements Publisher
func (c *CapturePublisher) Publish(ctx context.Context, exchange, routingKey string, msg amqp.Publishing) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.captured = append(c.captured, Capture{Exchange: exchange, RoutingKey: routingKey, Message: msg})
	return nil
}

// Published returns the recorded publishings in order
func (c *CapturePublisher) Published() []Capture {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Capture, len(c.captured))
	copy(out, c.captured)
	return out
}

// Last returns the most recent publishing
func (c *CapturePublisher) Last() (Capture, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.captured) == 0 {
		return Capture{}, false
	}
	return c.captured[len(c.captured)-1], true
}

// Reset discards recorded publishings
func (c *CapturePublisher) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.captured = nil
}

// CaptureProducer runs fn against a fresh CapturePublisher and produces the
// last message it published. The exchange and routing key are added to the
// metadata.
func CaptureProducer(fn func(ctx context.Context, publisher *CapturePublisher) error) messaging.ProducerFunc {
	return func(ctx context.Context) (interface{}, error) {
		capture := NewCapturePublisher()
		if err := fn(ctx, capture); err != nil {
			return nil, err
		}

		last, ok := capture.Last()
		if !ok {
			return nil, ErrNothingPublished
		}

		produced, err := FromPublishing(last.Message)
		if err != nil {
			return nil, err
		}
		return withRoute(produced, last), nil
	}
}

func withRoute(produced *contracts.ProducedMessage, c Capture) *contracts.ProducedMessage {
	if produced.Metadata == nil {
		produced.Metadata = make(map[string]interface{})
	}
	if c.Exchange != "" {
		produced.Metadata["exchange"] = c.Exchange
	}
	if c.RoutingKey != "" {
		produced.Metadata["routingKey"] = c.RoutingKey
	}
	return produced
}
