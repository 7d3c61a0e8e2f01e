package agent

import (
	"errors"
	"fmt"
)

// Common sentinel errors for driver operations.
var (
	// ErrNoProvider indicates no LLM provider is configured.
	ErrNoProvider = errors.New("no provider configured")

	// ErrNoExecutor indicates no tool executor is configured.
	ErrNoExecutor = errors.New("no tool executor configured")

	// ErrNilSession indicates a run was started without a session.
	ErrNilSession = errors.New("session is nil")

	// ErrEmptyMessage indicates a run was started with an empty user turn.
	ErrEmptyMessage = errors.New("user message is empty")
)

// Phase represents a distinct phase in the driver lifecycle.
type Phase string

const (
	// PhaseStream is the provider streaming phase.
	PhaseStream Phase = "stream"

	// PhaseExecuteTools is the tool dispatch phase.
	PhaseExecuteTools Phase = "execute_tools"

	// PhaseComplete is the terminal phase.
	PhaseComplete Phase = "complete"
)

// DriverError wraps a failure with the phase and iteration it occurred in.
type DriverError struct {
	Phase     Phase
	Iteration int
	Cause     error
}

// Error implements the error interface.
func (e *DriverError) Error() string {
	return fmt.Sprintf("driver error at %s (iteration %d): %v", e.Phase, e.Iteration, e.Cause)
}

// Unwrap returns the underlying error.
func (e *DriverError) Unwrap() error {
	return e.Cause
}
