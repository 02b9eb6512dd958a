package workerdef

import "fmt"

// ProtocolParseError means the worker's output did not contain a usable result.
type ProtocolParseError struct {
	Message string
	Raw     string
	Err     error
}

func (e *ProtocolParseError) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Raw != "" {
		msg += fmt.Sprintf(" (output was: %q)", truncate(e.Raw, 300))
	}
	return msg
}

func (e *ProtocolParseError) Unwrap() error { return e.Err }

// WorkerError is a well-formed error result from the worker, such as "bp.transformFailed".
type WorkerError struct {
	Code    string
	Message string
}

func (e *WorkerError) Error() string {
	switch {
	case e.Message == "":
		return fmt.Sprintf("worker reported error %s", e.Code)
	case e.Code == "":
		return fmt.Sprintf("worker reported error: %s", e.Message)
	default:
		return fmt.Sprintf("worker reported error %s: %s", e.Code, e.Message)
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
