package domain

import (
	"errors"
	"fmt"
)

// Error codes for different failure scenarios
const (
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeDatabase      = "DATABASE_ERROR"
	ErrCodeInternal      = "INTERNAL_SERVER_ERROR"
	ErrCodeRateLimit     = "RATE_LIMIT_EXCEEDED"
	ErrCodeInvalidState  = "INVALID_STATE_TRANSITION"
	ErrCodeClassifcation = "CLASSIFICATION_ERROR"
)

// ValidationError represents malformed or missing feature input. It is
// never silently defaulted: classification refuses to guess.
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}

// NotFoundError represents a lookup against an unknown resource, e.g.
// feedback submitted for a referral that was never classified.
type NotFoundError struct {
	Resource string `json:"resource"`
	ID       string `json:"id"`
}

// Error implements the error interface
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s '%s' not found", e.Resource, e.ID)
}

// Unwrap lets errors.Is(err, ErrNotFound) match typed not-found errors.
func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// NewNotFoundError creates a new NotFoundError
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// TransitionError represents a rejected alert state transition.
type TransitionError struct {
	AlertID string      `json:"alert_id"`
	From    AlertStatus `json:"from"`
	To      AlertStatus `json:"to"`
}

// Error implements the error interface
func (e *TransitionError) Error() string {
	return fmt.Sprintf("alert %s: cannot transition from %s to %s", e.AlertID, e.From, e.To)
}

// Unwrap lets errors.Is(err, ErrInvalidTransition) match typed errors.
func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFound reports whether err is (or wraps) a not-found condition.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInvalidTransition reports whether err is (or wraps) a rejected alert
// state transition.
func IsInvalidTransition(err error) bool {
	return errors.Is(err, ErrInvalidTransition)
}
