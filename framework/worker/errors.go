package worker

import (
	"errors"
	"fmt"
)

// ErrChannelClosed means the worker's output ended or its input could not be written, almost always
// because the process exited. Errors returned by this package wrap it.
var ErrChannelClosed = errors.New("worker channel closed")

// SpawnError is returned when the worker executable cannot be located or started.
type SpawnError struct {
	Path string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("cannot start worker %q: %s", e.Path, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }
