// Package verifier defines the boundary to the external process that drives
// a verification proxy and decides whether produced messages match their
// contracts.
//
// The Verifier interface separates two kinds of failure: an error means the
// verifier could not run at all, while a completed run that found a
// mismatch returns an Outcome with Passed set to false. ProcessVerifier is
// the standard implementation and shells out to pact-provider-verifier.
package verifier
