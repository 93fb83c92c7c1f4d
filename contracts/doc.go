// Package contracts defines the message descriptors exchanged with a contract
// verifier and the errors raised while verifying a message provider.
//
// A Message is one interaction recorded by a consumer:
//   - Description: identifies the producer that generates the message
//   - ProviderStates: preconditions to establish before producing it
//   - Contents: the expected content, forwarded untouched
//   - Metadata: optional message metadata
//
// Errors come in two groups. Per-request errors (ErrMalformedRequest,
// ErrStateSetupFailed, ErrHandlerNotFound, ErrHandlerFailed) are turned into
// HTTP error responses by the verification proxy. Whole-run errors
// (ErrBindFailed, ErrReadyTimeout, ErrVerifierFault, ErrContractMismatch) are
// returned to the caller of Verify. Typed errors carry context and match
// their sentinel with errors.Is.
package contracts
