// Package persistence provides standardized error types for storage
// operations.
package persistence

import (
	"errors"
	"fmt"
)

var (
	// ErrWorkflowNotFound indicates a workflow was not found by the given id.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrRunNotFound indicates an execution run was not found by the given id.
	ErrRunNotFound = errors.New("execution run not found")
)

// StoreError wraps storage errors with operation context.
type StoreError struct {
	Op         string // operation being performed, e.g. "WorkflowByID"
	WorkflowID string
	Err        error
}

func (e *StoreError) Error() string {
	if e.WorkflowID != "" {
		return fmt.Sprintf("%s failed for workflow %s: %v", e.Op, e.WorkflowID, e.Err)
	}

	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewStoreError creates a StoreError with workflow context.
func NewStoreError(op, workflowID string, err error) *StoreError {
	return &StoreError{Op: op, WorkflowID: workflowID, Err: err}
}

// IsWorkflowNotFound reports whether err wraps ErrWorkflowNotFound.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsRunNotFound reports whether err wraps ErrRunNotFound.
func IsRunNotFound(err error) bool {
	return errors.Is(err, ErrRunNotFound)
}
