// Package messaging holds the provider side registries used during message
// verification.
//
// A HandlerRegistry maps each message description to the Producer that
// generates its content. A StateRegistry maps provider state names to the
// StateHandler that establishes them. Both are populated once, before the
// verification proxy starts serving, and are read concurrently afterwards.
//
// Basic usage:
//
//	handlers := messaging.NewHandlerRegistry(
//	    messaging.WithMiddleware(messaging.RecoverMiddleware()),
//	)
//	handlers.RegisterFunc("a request for a dog", func(ctx context.Context) (interface{}, error) {
//	    return dogs.Create(ctx, 27)
//	})
//
//	states := messaging.NewStateRegistry()
//	states.RegisterFunc("a dog exists", func(ctx context.Context, s contracts.ProviderState) (interface{}, error) {
//	    return nil, fixtures.InsertDog(ctx, s.Params)
//	})
//
// Registering the same description or state name twice fails with
// contracts.ErrDuplicateRegistration.
package messaging
