// Package rabbitmq lets code that publishes AMQP messages act as a message
// producer during verification, without a broker.
//
// A service whose publishing code takes a Publisher can be verified with the
// exact message it would send:
//
//	"an order created event": rabbitmq.CaptureProducer(func(ctx context.Context, pub *rabbitmq.CapturePublisher) error {
//	    return orders.NewEvents(pub).OrderCreated(ctx, order)
//	}),
package rabbitmq
