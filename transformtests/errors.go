package transformtests

import (
	"errors"
	"fmt"
)

// ErrSessionClosed is returned by Transform after Close.
var ErrSessionClosed = errors.New("session is closed")

// HandshakeError means the worker started but did not produce the expected startup or allocation
// output. Output holds whatever it did produce, which usually explains why.
type HandshakeError struct {
	Stage  string
	Status string
	Output string
	Err    error
}

func (e *HandshakeError) Error() string {
	msg := fmt.Sprintf("worker handshake failed while %s (read %s)", e.Stage, e.Status)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Output != "" {
		msg += fmt.Sprintf("; worker output was: %q", e.Output)
	}
	return msg
}

func (e *HandshakeError) Unwrap() error { return e.Err }
