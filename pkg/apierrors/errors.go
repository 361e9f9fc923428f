// Package apierrors provides structured error classification and retry configuration for remote platform calls.
package apierrors

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorType represents different categories of platform errors for retry logic.
type ErrorType int8

const (
	// Retryable error types.

	// ErrorTypeTransient represents transient errors (UNAVAILABLE, RESOURCE_EXHAUSTED, ABORTED, connection resets).
	ErrorTypeTransient ErrorType = iota

	// Non-retryable error types.

	// ErrorTypeNotFound represents a missing deployment or session.
	ErrorTypeNotFound
	// ErrorTypeAuth represents authentication and permission errors.
	ErrorTypeAuth
	// ErrorTypeInvalidArgument represents malformed requests.
	ErrorTypeInvalidArgument
	// ErrorTypeUnknown represents default for unclassified errors.
	ErrorTypeUnknown

	// ErrorTypeServiceUnavailable is emitted once retries of a transient error are exhausted.
	ErrorTypeServiceUnavailable
)

// String returns the string representation of the error type.
func (et ErrorType) String() string {
	switch et {
	case ErrorTypeTransient:
		return "transient"
	case ErrorTypeNotFound:
		return "not_found"
	case ErrorTypeAuth:
		return "auth"
	case ErrorTypeInvalidArgument:
		return "invalid_argument"
	case ErrorTypeUnknown:
		return "unknown"
	case ErrorTypeServiceUnavailable:
		return "service_unavailable"
	default:
		return "invalid"
	}
}

// RetryConfig defines exponential backoff configuration for each error type.
type RetryConfig struct {
	MaxRetries    int           // Maximum number of retry attempts
	InitialDelay  time.Duration // Initial delay for exponential backoff
	MaxDelay      time.Duration // Maximum delay between retries
	BackoffFactor float64       // Multiplier for exponential backoff
	Jitter        bool          // Add random jitter to prevent thundering herd
}

// DefaultRetryConfigs provides default retry configurations for each error type.
//
//nolint:gochecknoglobals // Configuration map - acceptable for package defaults
var DefaultRetryConfigs = map[ErrorType]RetryConfig{
	ErrorTypeTransient: {
		MaxRetries:    4,
		InitialDelay:  500 * time.Millisecond,
		MaxDelay:      10 * time.Second,
		BackoffFactor: 2.0,
		Jitter:        true,
	},
	ErrorTypeUnknown: {
		MaxRetries:    1,
		InitialDelay:  1 * time.Second,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
		Jitter:        true,
	},
}

// Error represents a classified platform error.
type Error struct {
	Err     error     // Wrapped underlying error
	Op      string    // Platform operation, e.g. "get_deployment"
	Message string    // Human-readable error message
	Type    ErrorType // Classified error type
	Code    codes.Code
}

// Error implements the error interface.
func (e *Error) Error() string {
	prefix := fmt.Sprintf("platform error (%s)", e.Type.String())
	if e.Op != "" {
		prefix = fmt.Sprintf("%s %s", e.Op, prefix)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", prefix, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", prefix, e.Err)
	}
	return fmt.Sprintf("%s: code %s", prefix, e.Code)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether the error class should be retried.
func (e *Error) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeTransient, ErrorTypeUnknown:
		return true
	default:
		return false
	}
}

// GetRetryConfig returns the retry configuration for this error type.
func (e *Error) GetRetryConfig() RetryConfig {
	if config, exists := DefaultRetryConfigs[e.Type]; exists {
		return config
	}
	return RetryConfig{BackoffFactor: 1.0}
}

// Is checks if an error is of a specific type.
func Is(err error, errorType ErrorType) bool {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Type == errorType
	}
	return false
}

// TypeOf returns the error type of an error, or ErrorTypeUnknown if not classified.
func TypeOf(err error) ErrorType {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Type
	}
	return ErrorTypeUnknown
}

// IsRetryable reports whether err is a classified error worth retrying.
// Context cancellation is never retryable.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.IsRetryable()
	}
	return false
}

// NewError creates a new classified error.
func NewError(errorType ErrorType, op, message string) *Error {
	return &Error{
		Type:    errorType,
		Op:      op,
		Message: message,
	}
}

// Classify wraps err from operation op into an *Error typed by its gRPC status.
// Already classified errors and nil pass through unchanged.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	code := status.Code(err)
	msg := err.Error()
	if st, ok := status.FromError(err); ok {
		msg = st.Message()
	}
	return &Error{
		Err:     err,
		Op:      op,
		Message: msg,
		Type:    typeForCode(code),
		Code:    code,
	}
}

func typeForCode(code codes.Code) ErrorType {
	switch code {
	case codes.NotFound:
		return ErrorTypeNotFound
	case codes.Unauthenticated, codes.PermissionDenied:
		return ErrorTypeAuth
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange, codes.AlreadyExists:
		return ErrorTypeInvalidArgument
	case codes.Unavailable, codes.ResourceExhausted, codes.Aborted, codes.Internal:
		return ErrorTypeTransient
	default:
		return ErrorTypeUnknown
	}
}

// NewServiceUnavailableError creates a ServiceUnavailable error after retries have been exhausted.
func NewServiceUnavailableError(op string, cause error, attempts int) *Error {
	return &Error{
		Type:    ErrorTypeServiceUnavailable,
		Op:      op,
		Err:     cause,
		Message: fmt.Sprintf("service unavailable after %d attempts: %v", attempts, cause),
	}
}
