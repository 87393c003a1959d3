package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for the engine's failure taxonomy.
var (
	// ErrConfiguration marks a malformed workflow or step configuration:
	// unknown operator, invalid cron, unsupported action type. Fatal to the
	// specific workflow or step, never to the engine.
	ErrConfiguration = errors.New("configuration error")

	// ErrActionExecution marks a handler-reported failure, retried per step
	// policy and then tolerated or escalated.
	ErrActionExecution = errors.New("action execution error")

	// ErrValidation marks malformed input at the DTO boundary, rejected
	// synchronously before a run is created.
	ErrValidation = errors.New("validation error")
)

// ConfigurationError describes a broken workflow or step configuration.
type ConfigurationError struct {
	Subject string // what is misconfigured: "operator", "cron", "action_type", ...
	Detail  string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Subject, e.Detail)
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// NewConfigurationError creates a ConfigurationError for the given subject.
func NewConfigurationError(subject, detail string) *ConfigurationError {
	return &ConfigurationError{Subject: subject, Detail: detail}
}

// ActionExecutionError wraps a failure reported by an action handler.
type ActionExecutionError struct {
	ActionType ActionType
	StepID     string
	Err        error
}

func (e *ActionExecutionError) Error() string {
	return fmt.Sprintf("action %s failed for step %s: %v", e.ActionType, e.StepID, e.Err)
}

func (e *ActionExecutionError) Unwrap() error {
	return e.Err
}

func (e *ActionExecutionError) Is(target error) bool {
	return target == ErrActionExecution
}

// ValidationError describes a rejected field on a boundary DTO.
type ValidationError struct {
	Field  string
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Detail)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewValidationError creates a ValidationError for the given field.
func NewValidationError(field, detail string) *ValidationError {
	return &ValidationError{Field: field, Detail: detail}
}

// IsConfigurationError reports whether err is part of the configuration
// error family.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsValidationError reports whether err is part of the validation error family.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation)
}
