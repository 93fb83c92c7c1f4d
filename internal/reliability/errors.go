package reliability

import (
	"errors"
	"fmt"
	"time"
)

// PollError reports a polling loop that ran out of time
type PollError struct {
	Attempts  int
	Duration  time.Duration
	LastError error
	Err       error
}

func (e *PollError) Error() string {
	if e.LastError != nil {
		return fmt.Sprintf("gave up after %d attempts over %v: %v (last error: %v)",
			e.Attempts, e.Duration.Round(time.Millisecond), e.Err, e.LastError)
	}
	return fmt.Sprintf("gave up after %d attempts over %v: %v",
		e.Attempts, e.Duration.Round(time.Millisecond), e.Err)
}

func (e *PollError) Unwrap() error {
	return e.Err
}

type permanentError struct {
	err error
}

func (p *permanentError) Error() string {
	return p.err.Error()
}

func (p *permanentError) Unwrap() error {
	return p.err
}

// Permanent marks an error that must not be retried
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
