// Package errors provides structured error handling for gridframe
package errors

import (
	"context"
	"errors"
	"fmt"
	"runtime"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeInternal represents internal system errors
	ErrorTypeInternal ErrorType = "internal"
	// ErrorTypeValidation represents validation errors
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeOutOfRange represents a row index or range outside the frame
	ErrorTypeOutOfRange ErrorType = "out_of_range"
	// ErrorTypeUnknownColumn represents a column name missing from the schema
	ErrorTypeUnknownColumn ErrorType = "unknown_column"
	// ErrorTypeCancelled represents a caller-cancelled operation
	ErrorTypeCancelled ErrorType = "cancelled"
	// ErrorTypeUnderlyingRead represents a failed storage or byte source read
	ErrorTypeUnderlyingRead ErrorType = "underlying_read"
	// ErrorTypeTranslation represents a predicate that cannot be pushed down.
	// It is only used internally; callers fall back to residual filtering.
	ErrorTypeTranslation ErrorType = "translation"
	// ErrorTypeConnection represents connection errors
	ErrorTypeConnection ErrorType = "connection"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeQuery represents query parsing and execution errors
	ErrorTypeQuery ErrorType = "query"
)

// Error represents a structured error with context
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}
	Stack   []StackFrame
}

// StackFrame represents a single frame in the call stack
type StackFrame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a key-value detail to the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new error with the given type and message
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Newf creates a new error with a formatted message
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}

	// If already our error type, preserve the stack
	var existingErr *Error
	if errors.As(err, &existingErr) {
		return &Error{
			Type:    errType,
			Message: message,
			Cause:   err,
			Stack:   existingErr.Stack,
		}
	}

	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
		Stack:   captureStack(2),
	}
}

// OutOfRange reports an index or range that falls outside [0, bound).
func OutOfRange(what string, value, bound int) *Error {
	return Newf(ErrorTypeOutOfRange, "%s %d out of range [0, %d)", what, value, bound).
		WithDetail("value", value).
		WithDetail("bound", bound)
}

// UnknownColumn reports a column name that is not part of the frame.
func UnknownColumn(name string) *Error {
	return Newf(ErrorTypeUnknownColumn, "unknown column %q", name).
		WithDetail("column", name)
}

// Cancelled wraps the context error of a cancelled operation.
func Cancelled(cause error) *Error {
	if cause == nil {
		cause = context.Canceled
	}
	return Wrap(cause, ErrorTypeCancelled, "operation cancelled")
}

// UnderlyingRead wraps a storage failure.
func UnderlyingRead(cause error, message string) *Error {
	return Wrap(cause, ErrorTypeUnderlyingRead, message)
}

// IsRetryable returns true if the error is retryable
func IsRetryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}

	switch e.Type {
	case ErrorTypeCancelled, ErrorTypeUnderlyingRead, ErrorTypeConnection:
		return true
	default:
		return false
	}
}

// IsType checks if the error is of the given type
func IsType(err error, errType ErrorType) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == errType
}

// IsCancelled reports whether err is a cancellation, either ours or a bare
// context error.
func IsCancelled(err error) bool {
	if IsType(err, ErrorTypeCancelled) {
		return true
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// captureStack captures the current call stack
func captureStack(skip int) []StackFrame {
	const maxFrames = 32
	frames := make([]StackFrame, 0, maxFrames)

	for i := skip; i < maxFrames+skip; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}

		frames = append(frames, StackFrame{
			Function: fn.Name(),
			File:     file,
			Line:     line,
		})
	}

	return frames
}
