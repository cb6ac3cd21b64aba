// Package errors provides a structured error system for gdrivefs with error codes, categories, and context.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"syscall"
	"time"
)

// ErrorCode represents a structured error code for gdrivefs operations.
type ErrorCode string

const (
	// Configuration Errors
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG"
	ErrCodeConfigLoad    ErrorCode = "CONFIG_LOAD"

	// Remote Errors
	ErrCodeRemoteFailure ErrorCode = "REMOTE_FAILURE"
	ErrCodeCircuitOpen   ErrorCode = "CIRCUIT_OPEN"

	// Filesystem Errors
	ErrCodeNotFound    ErrorCode = "NOT_FOUND"
	ErrCodeInvalidPath ErrorCode = "INVALID_PATH"
	ErrCodeDecode      ErrorCode = "DECODE_FAILURE"
	ErrCodeMountFailed ErrorCode = "MOUNT_FAILED"

	// Operation Errors
	ErrCodeRetryExhausted    ErrorCode = "RETRY_EXHAUSTED"
	ErrCodeOperationCanceled ErrorCode = "OPERATION_CANCELED"

	// Authentication Errors
	ErrCodeAuthenticationFailed ErrorCode = "AUTHENTICATION_FAILED"
	ErrCodeCredentialsMissing   ErrorCode = "CREDENTIALS_MISSING"

	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// ErrorCategory represents the general category of an error.
type ErrorCategory string

const (
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryRemote        ErrorCategory = "remote"
	CategoryFilesystem    ErrorCategory = "filesystem"
	CategoryOperation     ErrorCategory = "operation"
	CategoryAuth          ErrorCategory = "auth"
	CategoryInternal      ErrorCategory = "internal"
)

// Sentinel values for errors.Is comparisons; matching is by code.
var (
	ErrNotFound      = &FSError{Code: ErrCodeNotFound}
	ErrRemoteFailure = &FSError{Code: ErrCodeRemoteFailure}
	ErrInvalidPath   = &FSError{Code: ErrCodeInvalidPath}
	ErrCircuitOpen   = &FSError{Code: ErrCodeCircuitOpen}
)

// FSError represents a structured error with context and metadata.
type FSError struct {
	Code     ErrorCode     `json:"code"`
	Category ErrorCategory `json:"category"`
	Message  string        `json:"message"`

	Context   map[string]string `json:"context,omitempty"`
	Cause     error             `json:"-"`
	Timestamp time.Time         `json:"timestamp"`

	Component string `json:"component,omitempty"`
	Operation string `json:"operation,omitempty"`

	Retryable bool `json:"retryable"`
}

// Error implements the error interface.
func (e *FSError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Component != "" {
		if e.Operation != "" {
			msg = fmt.Sprintf("[%s:%s] %s", e.Component, e.Operation, msg)
		} else {
			msg = fmt.Sprintf("[%s] %s", e.Component, msg)
		}
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause error for error wrapping compatibility.
func (e *FSError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target error (for errors.Is compatibility).
func (e *FSError) Is(target error) bool {
	if t, ok := target.(*FSError); ok {
		return e.Code == t.Code
	}
	return false
}

// String returns a detailed string representation for logging.
func (e *FSError) String() string {
	parts := []string{
		fmt.Sprintf("Code=%s", e.Code),
		fmt.Sprintf("Category=%s", e.Category),
		fmt.Sprintf("Message=%q", e.Message),
	}
	if e.Component != "" {
		parts = append(parts, fmt.Sprintf("Component=%s", e.Component))
	}
	if e.Operation != "" {
		parts = append(parts, fmt.Sprintf("Operation=%s", e.Operation))
	}
	if e.Retryable {
		parts = append(parts, "Retryable=true")
	}
	if len(e.Context) > 0 {
		ctx, _ := json.Marshal(e.Context)
		parts = append(parts, fmt.Sprintf("Context=%s", ctx))
	}
	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("Cause=%q", e.Cause.Error()))
	}
	return fmt.Sprintf("FSError{%s}", strings.Join(parts, ", "))
}

// NewError creates a new error with default values for the code.
func NewError(code ErrorCode, message string) *FSError {
	return &FSError{
		Code:      code,
		Category:  GetCategory(code),
		Message:   message,
		Timestamp: time.Now(),
		Context:   make(map[string]string),
		Retryable: IsRetryableByDefault(code),
	}
}

// NotFound builds a NOT_FOUND error for path.
func NotFound(path string) *FSError {
	return NewError(ErrCodeNotFound, "no such entry").WithContext("path", path)
}

// Remote wraps a failed remote call as REMOTE_FAILURE.
func Remote(call string, cause error) *FSError {
	return NewError(ErrCodeRemoteFailure, call+" failed").WithOperation(call).WithCause(cause)
}

// AsRemote returns err unchanged when it already carries a code, and wraps
// it as REMOTE_FAILURE otherwise.
func AsRemote(call string, err error) error {
	if err == nil || Code(err) != "" {
		return err
	}
	return Remote(call, err)
}

// GetCategory determines the category based on the error code.
func GetCategory(code ErrorCode) ErrorCategory {
	switch code {
	case ErrCodeInvalidConfig, ErrCodeConfigLoad:
		return CategoryConfiguration
	case ErrCodeRemoteFailure, ErrCodeCircuitOpen:
		return CategoryRemote
	case ErrCodeNotFound, ErrCodeInvalidPath, ErrCodeDecode, ErrCodeMountFailed:
		return CategoryFilesystem
	case ErrCodeRetryExhausted, ErrCodeOperationCanceled:
		return CategoryOperation
	case ErrCodeAuthenticationFailed, ErrCodeCredentialsMissing:
		return CategoryAuth
	default:
		return CategoryInternal
	}
}

// IsRetryableByDefault determines if an error is retryable by default.
// REMOTE_FAILURE is not: providers mark transient failures explicitly.
func IsRetryableByDefault(code ErrorCode) bool {
	return code == ErrCodeInternalError
}

// WithContext adds contextual information to an error
func (e *FSError) WithContext(key, value string) *FSError {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

// WithComponent sets the component for an error
func (e *FSError) WithComponent(component string) *FSError {
	e.Component = component
	return e
}

// WithOperation sets the operation for an error
func (e *FSError) WithOperation(operation string) *FSError {
	e.Operation = operation
	return e
}

// WithCause sets the underlying cause
func (e *FSError) WithCause(cause error) *FSError {
	e.Cause = cause
	return e
}

// WithRetryable overrides the retryable flag
func (e *FSError) WithRetryable(retryable bool) *FSError {
	e.Retryable = retryable
	return e
}

// Transient marks cause as retryable so the retry policy will try again.
func Transient(cause error) error {
	if cause == nil {
		return nil
	}
	return NewError(ErrCodeRemoteFailure, "transient remote failure").WithCause(cause).WithRetryable(true)
}

// IsRetryable reports whether err, or any error it wraps, is marked retryable.
func IsRetryable(err error) bool {
	var fsErr *FSError
	for err != nil {
		if !stderrors.As(err, &fsErr) {
			return false
		}
		if fsErr.Retryable {
			return true
		}
		err = fsErr.Cause
	}
	return false
}

// IsNotFound reports whether err is a NOT_FOUND error.
func IsNotFound(err error) bool {
	return stderrors.Is(err, ErrNotFound)
}

// Code returns the code of the outermost FSError in err's chain.
func Code(err error) ErrorCode {
	var fsErr *FSError
	if stderrors.As(err, &fsErr) {
		return fsErr.Code
	}
	return ""
}

// Errno maps err to the errno reported to the kernel.
func Errno(err error) syscall.Errno {
	switch {
	case err == nil:
		return 0
	case IsNotFound(err):
		return syscall.ENOENT
	case stderrors.Is(err, ErrInvalidPath):
		return syscall.EINVAL
	default:
		return syscall.EIO
	}
}
