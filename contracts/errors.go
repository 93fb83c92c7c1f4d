package contracts

import (
	"context"
	"errors"
	"fmt"
)

var (
	// Per-request errors, answered with an HTTP error response
	ErrMalformedRequest = errors.New("verification: malformed message descriptor")
	ErrStateSetupFailed = errors.New("verification: provider state setup failed")
	ErrHandlerNotFound  = errors.New("verification: no message provider registered")
	ErrHandlerFailed    = errors.New("verification: message provider failed")

	// Whole-run errors, returned from Verify
	ErrBindFailed       = errors.New("verification: proxy server could not bind")
	ErrReadyTimeout     = errors.New("verification: proxy server did not become ready")
	ErrVerifierFault    = errors.New("verification: verifier could not be run")
	ErrContractMismatch = errors.New("verification: provider does not honour the contract")

	// Configuration errors
	ErrDuplicateRegistration = errors.New("verification: duplicate registration")
)

// HandlerNotFoundError reports a description with no registered producer
type HandlerNotFoundError struct {
	Description string
}

func (e *HandlerNotFoundError) Error() string {
	return fmt.Sprintf("no message provider registered for description %q", e.Description)
}

func (e *HandlerNotFoundError) Is(target error) bool {
	return target == ErrHandlerNotFound
}

// StateSetupError reports a provider state handler failure
type StateSetupError struct {
	State string
	Err   error
}

func (e *StateSetupError) Error() string {
	return fmt.Sprintf("provider state %q setup failed: %v", e.State, e.Err)
}

func (e *StateSetupError) Unwrap() error {
	return e.Err
}

func (e *StateSetupError) Is(target error) bool {
	return target == ErrStateSetupFailed
}

// HandlerError reports a producer failure
type HandlerError struct {
	Description string
	Err         error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("message provider for %q failed: %v", e.Description, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

func (e *HandlerError) Is(target error) bool {
	return target == ErrHandlerFailed
}

// BindError reports a proxy server that could not listen on its address
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("proxy server bind error: cannot listen on %s: %v", e.Addr, e.Err)
}

func (e *BindError) Unwrap() error {
	return e.Err
}

func (e *BindError) Is(target error) bool {
	return target == ErrBindFailed
}

// VerifierError reports a verifier that could not be invoked
type VerifierError struct {
	Op  string
	Err error
}

func (e *VerifierError) Error() string {
	return fmt.Sprintf("verifier error: %s failed: %v", e.Op, e.Err)
}

func (e *VerifierError) Unwrap() error {
	return e.Err
}

func (e *VerifierError) Is(target error) bool {
	return target == ErrVerifierFault
}

// MismatchError reports a verification run that completed and failed
type MismatchError struct {
	ExitCode int
	Output   string
}

func (e *MismatchError) Error() string {
	if e.ExitCode != 0 {
		return fmt.Sprintf("contract verification failed (exit code %d)", e.ExitCode)
	}
	return "contract verification failed"
}

func (e *MismatchError) Is(target error) bool {
	return target == ErrContractMismatch
}

// Kind names the error class for HTTP error bodies and metrics labels
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMalformedRequest):
		return "malformed_request"
	case errors.Is(err, ErrStateSetupFailed):
		return "state_setup_failed"
	case errors.Is(err, ErrHandlerNotFound):
		return "handler_not_found"
	case errors.Is(err, ErrHandlerFailed):
		return "handler_failed"
	case errors.Is(err, ErrBindFailed):
		return "bind_error"
	case errors.Is(err, ErrReadyTimeout):
		return "ready_timeout"
	case errors.Is(err, ErrVerifierFault):
		return "verifier_fault"
	case errors.Is(err, ErrContractMismatch):
		return "contract_mismatch"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "internal_error"
	}
}
