package core

import (
	"fmt"
)

// ErrorCategory classifies the type of error for reporting.
type ErrorCategory int

const (
	ErrCategoryNone         ErrorCategory = iota // No error
	ErrCategoryVerification                      // Expected/actual mismatch
	ErrCategoryTimeout                           // Request timed out
	ErrCategoryNetwork                           // Transport-level failure
	ErrCategoryFlow                              // Flow reference problems
	ErrCategoryCancelled                         // Run aborted
	ErrCategoryConfig                            // Invalid configuration or document
)

// String returns the string representation of ErrorCategory.
func (c ErrorCategory) String() string {
	switch c {
	case ErrCategoryNone:
		return "none"
	case ErrCategoryVerification:
		return "verification"
	case ErrCategoryTimeout:
		return "timeout"
	case ErrCategoryNetwork:
		return "network"
	case ErrCategoryFlow:
		return "flow"
	case ErrCategoryCancelled:
		return "cancelled"
	case ErrCategoryConfig:
		return "config"
	default:
		return "unknown"
	}
}

// ExecutionError represents a structured error with category and details.
type ExecutionError struct {
	Category ErrorCategory
	Code     string // Machine-readable code: verification_failed, timeout, etc.
	Message  string // Human-readable message
	Cause    error  // Underlying error
}

// Error implements the error interface.
func (e *ExecutionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// WithCause returns a copy of the error with the given cause.
func (e *ExecutionError) WithCause(cause error) *ExecutionError {
	return &ExecutionError{
		Category: e.Category,
		Code:     e.Code,
		Message:  e.Message,
		Cause:    cause,
	}
}

// WithMessage returns a copy of the error with a custom message.
func (e *ExecutionError) WithMessage(msg string) *ExecutionError {
	return &ExecutionError{
		Category: e.Category,
		Code:     e.Code,
		Message:  msg,
		Cause:    e.Cause,
	}
}

// Predefined errors.
var (
	ErrVerification = &ExecutionError{
		Category: ErrCategoryVerification,
		Code:     "verification_failed",
		Message:  "verification failed",
	}
	ErrTimeout = &ExecutionError{
		Category: ErrCategoryTimeout,
		Code:     "timeout",
		Message:  "request timed out",
	}
	ErrNetwork = &ExecutionError{
		Category: ErrCategoryNetwork,
		Code:     "network",
		Message:  "request failed",
	}
	ErrFlowNotFound = &ExecutionError{
		Category: ErrCategoryFlow,
		Code:     "flow_not_found",
		Message:  "referenced flow file not found",
	}
	ErrCyclicFlowReference = &ExecutionError{
		Category: ErrCategoryFlow,
		Code:     "cyclic_flow_reference",
		Message:  "cyclic flow reference",
	}
	ErrCancelled = &ExecutionError{
		Category: ErrCategoryCancelled,
		Code:     "cancelled",
		Message:  "run cancelled",
	}
	ErrInvalidDocument = &ExecutionError{
		Category: ErrCategoryConfig,
		Code:     "invalid_document",
		Message:  "invalid flow document",
	}
)

// VerificationError describes a single failed assertion path.
type VerificationError struct {
	Path     string // verify key that failed (status, responseTime, body.<path>)
	Expected any
	Actual   any
}

// Error implements the error interface.
func (e *VerificationError) Error() string {
	if e.Path == "status" {
		return fmt.Sprintf("expected status %v, got %v", e.Expected, e.Actual)
	}
	return fmt.Sprintf("verification failed for %s: expected %v, got %v", e.Path, e.Expected, e.Actual)
}

// NewExecutionError creates a new ExecutionError with the given parameters.
func NewExecutionError(category ErrorCategory, code, message string) *ExecutionError {
	return &ExecutionError{
		Category: category,
		Code:     code,
		Message:  message,
	}
}
