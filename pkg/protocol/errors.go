package protocol

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies node-level execution failures. All kinds here are
// non-fatal to the run: the engine records them on the step and keeps
// going. Anything that is not an ExecutionError escapes the node boundary
// and fails the whole run.
type ErrorKind string

const (
	ErrorKindValidation ErrorKind = "validation"
	ErrorKindUpstream   ErrorKind = "upstream"
	ErrorKindTimeout    ErrorKind = "timeout"
)

// ExecutionError is the error type node executors return for expected
// failure modes.
type ExecutionError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *ExecutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}

	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// NewValidationError reports missing or malformed node configuration.
func NewValidationError(missingFields ...string) *ExecutionError {
	return &ExecutionError{
		Kind:    ErrorKindValidation,
		Message: "missing required fields: " + strings.Join(missingFields, ", "),
	}
}

// NewUpstreamError wraps a third-party collaborator failure.
func NewUpstreamError(message string, err error) *ExecutionError {
	return &ExecutionError{
		Kind:    ErrorKindUpstream,
		Message: message,
		Err:     err,
	}
}

// NewTimeoutError reports a node exceeding its allotted execution time.
func NewTimeoutError(message string) *ExecutionError {
	return &ExecutionError{
		Kind:    ErrorKindTimeout,
		Message: message,
	}
}

// IsExecutionError reports whether err is (or wraps) a node-level
// execution error, returning it when so.
func IsExecutionError(err error) (*ExecutionError, bool) {
	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		return execErr, true
	}

	return nil, false
}
