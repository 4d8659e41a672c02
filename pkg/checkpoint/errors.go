// Package checkpoint error types shared by all store backends.
package checkpoint

import (
	"errors"
	"fmt"
)

// Standard checkpoint error types that all backends return.
var (
	// ErrRunNotFound indicates no checkpoint exists for the given workflow ID.
	ErrRunNotFound = errors.New("run not found")

	// ErrAlreadyResolved indicates the run's approval was decided earlier;
	// a second Resolve is a no-op for the caller to report, not retry.
	ErrAlreadyResolved = errors.New("approval already resolved")

	// ErrNotSuspended indicates the run is not waiting at the approval gate.
	ErrNotSuspended = errors.New("run is not suspended")

	// ErrInvalidWorkflowID indicates the workflow ID is unsafe or empty.
	ErrInvalidWorkflowID = errors.New("invalid workflow id")
)

// StoreError wraps checkpoint errors with operation context.
type StoreError struct {
	Op         string // Operation being performed (e.g. "Get", "Resolve")
	WorkflowID string
	Err        error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s failed for run %s: %v", e.Op, e.WorkflowID, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewStoreError creates a checkpoint error with context.
func NewStoreError(op, workflowID string, err error) *StoreError {
	return &StoreError{Op: op, WorkflowID: workflowID, Err: err}
}

// IsRunNotFound checks if an error indicates a missing checkpoint.
func IsRunNotFound(err error) bool {
	return errors.Is(err, ErrRunNotFound)
}

// IsAlreadyResolved checks if an error indicates a duplicate decision.
func IsAlreadyResolved(err error) bool {
	return errors.Is(err, ErrAlreadyResolved)
}

// IsNotSuspended checks if an error indicates a decision for a run that
// never reached the approval gate.
func IsNotSuspended(err error) bool {
	return errors.Is(err, ErrNotSuspended)
}
