// Package verification bridges local message producers into the HTTP
// request/response protocol spoken by contract verifiers.
//
// A Handler accepts one message descriptor per request:
//
//	POST / {"description": "...", "contents": {...}, "providerStates": [...]}
//
// runs the setup handlers for its provider states in declaration order,
// invokes the producer registered for its description and answers with:
//   - 200 and the produced contents as the JSON body, plus message metadata
//     in the Pact-Message-Metadata header when the producer attached any
//   - 400 when the body is not a valid descriptor
//   - 500 when a state setup fails, no producer is registered for the
//     description, or the producer fails
//
// Error bodies are JSON ErrorResponse values whose kind field names the
// failure class.
//
// A ProxyServer owns the listener for one verification run. Start returns
// only after the listener accepts connections; Close is idempotent.
//
//	server := verification.NewProxyServer(handler, verification.WithAddress("127.0.0.1", 0))
//	if err := server.Start(ctx); err != nil {
//	    return err
//	}
//	defer server.Close(context.Background())
//	runVerifier(server.URL())
package verification
