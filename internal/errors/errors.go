package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// Fatal categories: these abort the run and surface to the caller.
	ErrTypeNotFound   ErrorType = "SOURCE_NOT_FOUND"
	ErrTypeUnreadable ErrorType = "SOURCE_UNREADABLE"
	ErrTypeStructural ErrorType = "STRUCTURAL_FIELD_MISSING"

	// Recoverable categories: absorbed locally, surfaced only in counters.
	ErrTypeParsing    ErrorType = "ROW_PARSE"
	ErrTypeValidation ErrorType = "VALIDATION_RULE"

	ErrTypeConfig  ErrorType = "CONFIG"
	ErrTypeStorage ErrorType = "STORAGE"
)

// AppError represents an application-specific error
type AppError struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap allows errors.Is and errors.As to work with AppError
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// IsFatal reports whether the error belongs to a category that must abort
// the run. Recoverable categories are absorbed by their component.
func (e *AppError) IsFatal() bool {
	switch e.Type {
	case ErrTypeNotFound, ErrTypeUnreadable, ErrTypeStructural, ErrTypeConfig:
		return true
	}
	return false
}

// NewAppError creates a new application error
func NewAppError(errType ErrorType, message string, cause error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// Helper functions for common error types

// NewNotFoundError creates an error for a missing data source
func NewNotFoundError(resource string) *AppError {
	return NewAppError(ErrTypeNotFound, fmt.Sprintf("%s not found", resource), nil)
}

// NewUnreadableError creates an error for a source that could not be read
// after fallback attempts
func NewUnreadableError(message string, cause error) *AppError {
	return NewAppError(ErrTypeUnreadable, message, cause)
}

// NewStructuralError creates an error for a structurally unusable dataset,
// such as a missing notification-date column
func NewStructuralError(message string) *AppError {
	return NewAppError(ErrTypeStructural, message, nil)
}

// NewParsingError creates a row-level parsing error
func NewParsingError(message string, cause error) *AppError {
	return NewAppError(ErrTypeParsing, message, cause)
}

// NewValidationError creates a rule-level validation error
func NewValidationError(message string, cause error) *AppError {
	return NewAppError(ErrTypeValidation, message, cause)
}

// NewConfigError creates a configuration error
func NewConfigError(message string, cause error) *AppError {
	return NewAppError(ErrTypeConfig, message, cause)
}

// TypeOf returns the ErrorType carried by err, or "" when err is not an
// AppError anywhere in its chain.
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ""
}

// IsType reports whether err carries the given ErrorType.
func IsType(err error, t ErrorType) bool {
	return TypeOf(err) == t
}
