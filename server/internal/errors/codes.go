package errors

import (
	"context"
	stderrors "errors"
	"fmt"
)

// ErrorCode classifies why a sync attempt did not commit.
type ErrorCode string

const (
	// ErrCodeNetwork indicates a transport failure, a timeout or a non-2xx status.
	ErrCodeNetwork ErrorCode = "NETWORK"
	// ErrCodeDecode indicates a malformed or schema-incompatible payload.
	ErrCodeDecode ErrorCode = "DECODE"
	// ErrCodeIO indicates a durable storage read or write failure.
	ErrCodeIO ErrorCode = "IO"
	// ErrCodeCanceled indicates the caller abandoned the operation.
	ErrCodeCanceled ErrorCode = "CANCELED"
)

// SyncError represents a structured error for sync operations.
type SyncError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]any
}

// Error implements the error interface.
func (e *SyncError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *SyncError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error.
func (e *SyncError) WithContext(key string, value any) *SyncError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// GetCode returns the error code.
func (e *SyncError) GetCode() ErrorCode {
	return e.Code
}

// Convenience constructors for common error types.

// Network creates a network error.
func Network(msg string, cause error) *SyncError {
	return &SyncError{Code: ErrCodeNetwork, Message: msg, Cause: cause}
}

// Decode creates a decode error.
func Decode(msg string, cause error) *SyncError {
	return &SyncError{Code: ErrCodeDecode, Message: msg, Cause: cause}
}

// IO creates a storage error.
func IO(msg string, cause error) *SyncError {
	return &SyncError{Code: ErrCodeIO, Message: msg, Cause: cause}
}

// Canceled creates a context canceled error.
func Canceled(cause error) *SyncError {
	return &SyncError{Code: ErrCodeCanceled, Message: "operation canceled", Cause: cause}
}

// Wrap wraps an existing error with additional context.
func Wrap(cause error, code ErrorCode, msg string) *SyncError {
	return &SyncError{Code: code, Message: msg, Cause: cause}
}

// IsCode checks if an error chain carries a specific code.
func IsCode(err error, code ErrorCode) bool {
	var syncErr *SyncError
	if stderrors.As(err, &syncErr) {
		return syncErr.Code == code
	}
	return false
}

// GetCodeFromError extracts the error code from any error.
// Context cancellation maps to ErrCodeCanceled; anything else unclassified returns defaultCode.
func GetCodeFromError(err error, defaultCode ErrorCode) ErrorCode {
	var syncErr *SyncError
	if stderrors.As(err, &syncErr) {
		return syncErr.Code
	}
	if stderrors.Is(err, context.Canceled) {
		return ErrCodeCanceled
	}
	return defaultCode
}
