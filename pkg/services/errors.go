// Package services provides standardized error types for service layer operations.
package services

import (
	"errors"
	"fmt"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest       = errors.New("invalid request")
	ErrWorkflowNil          = errors.New("workflow cannot be nil")
	ErrWorkflowNameRequired = errors.New("workflow name is required")
	ErrInvalidTriggerType   = errors.New("invalid trigger type")
	ErrInvalidStatus        = errors.New("invalid workflow status")
	ErrInvalidGraph         = errors.New("invalid graph document")
	ErrInvalidSchedule      = errors.New("invalid schedule")
	ErrInvalidExport        = errors.New("invalid workflow export")

	// Import Errors (400 Bad Request).
	ErrImportValidation = errors.New("import validation failed")

	// Lookup Errors (404 Not Found).
	ErrNodeTypeNotFound = errors.New("node type not found")
	ErrWebhookNotFound  = errors.New("workflow not found or inactive")

	// Webhook Errors (403 Forbidden).
	ErrWebhookSecretMismatch = errors.New("invalid webhook secret")

	// Business Logic Conflicts (409 Conflict).
	ErrWorkflowArchived = errors.New("archived workflows cannot be activated")
	ErrRetriesExhausted = errors.New("execution cannot be retried")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrWorkflowNil) ||
		errors.Is(err, ErrWorkflowNameRequired) ||
		errors.Is(err, ErrInvalidTriggerType) ||
		errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrInvalidGraph) ||
		errors.Is(err, ErrInvalidSchedule) ||
		errors.Is(err, ErrInvalidExport) ||
		errors.Is(err, ErrImportValidation)
}

// IsConflictError checks if an error is a business logic conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrWorkflowArchived) ||
		errors.Is(err, ErrRetriesExhausted)
}

// IsNotFoundError checks if an error should return HTTP 404.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNodeTypeNotFound) ||
		errors.Is(err, ErrWebhookNotFound)
}

// IsForbiddenError checks if an error should return HTTP 403.
func IsForbiddenError(err error) bool {
	return errors.Is(err, ErrWebhookSecretMismatch)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
