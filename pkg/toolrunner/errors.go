package toolrunner

import (
	"context"
	"errors"

	"github.com/harun/gofer/pkg/registry"
)

var (
	// ErrSchemaValidation is returned when input fails the tool's declared
	// schema; no process is started.
	ErrSchemaValidation = errors.New("input schema validation failed")

	// ErrProcess is returned when the tool process exits non-zero
	ErrProcess = errors.New("tool process failed")

	// ErrProcessTimeout is returned when the tool process exceeds its
	// allotted time and is forcibly terminated.
	ErrProcessTimeout = errors.New("tool process timed out")

	// ErrMalformedOutput is returned when the tool process output is not a
	// single well-formed JSON object.
	ErrMalformedOutput = errors.New("tool produced malformed output")
)

// ToolError carries the failure taxonomy for one invocation together with
// the diagnostic text the process emitted. It unwraps to its kind sentinel
// (or registry.ErrUnknownTool) so callers can classify with errors.Is.
type ToolError struct {
	Tool    string
	Kind    error
	Message string
	Stderr  string
}

// Error implements the error interface
func (e *ToolError) Error() string {
	if e.Message == "" {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + e.Message
}

// Unwrap returns the taxonomy sentinel
func (e *ToolError) Unwrap() error {
	return e.Kind
}

// Outcome maps an invocation error to its taxonomy label. A nil error maps
// to "ok". Used for metrics and for the observation envelope fed back to
// the planning engine.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, registry.ErrUnknownTool):
		return "unknown_tool"
	case errors.Is(err, ErrSchemaValidation):
		return "schema_validation"
	case errors.Is(err, ErrProcessTimeout):
		return "process_timeout"
	case errors.Is(err, ErrMalformedOutput):
		return "malformed_output"
	case errors.Is(err, ErrProcess):
		return "process"
	case errors.Is(err, context.Canceled):
		return "interrupted"
	default:
		return "error"
	}
}
