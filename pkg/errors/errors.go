package errors

import (
	"fmt"
)

// ConfigurationError indicates a defect in a pipeline definition: an invalid
// step shape, a mapper that does not conform to its contract, or a referenced
// unit of work that cannot be dispatched. Configuration errors are raised
// immediately via panic and are never converted into context failure.
type ConfigurationError struct {
	Component string
	Message   string
	Err       error
}

// NewConfigurationError constructs a ConfigurationError for the given component.
func NewConfigurationError(component, message string, err error) *ConfigurationError {
	return &ConfigurationError{Component: component, Message: message, Err: err}
}

func (e *ConfigurationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Component != "" {
		return fmt.Sprintf("configuration error [%s]: %s", e.Component, e.Message)
	}
	return fmt.Sprintf("configuration error: %s", e.Message)
}

// Unwrap exposes the underlying error.
func (e *ConfigurationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ExecutionError represents a runtime failure while executing a unit of work.
type ExecutionError struct {
	ActionName string
	Err        error
}

// NewExecutionError constructs an ExecutionError.
func NewExecutionError(actionName string, err error) error {
	return &ExecutionError{ActionName: actionName, Err: err}
}

func (e *ExecutionError) Error() string {
	if e == nil {
		return ""
	}
	if e.ActionName != "" {
		return fmt.Sprintf("execution error in action %s: %v", e.ActionName, e.Err)
	}
	return fmt.Sprintf("execution error: %v", e.Err)
}

// Unwrap exposes the root error.
func (e *ExecutionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
