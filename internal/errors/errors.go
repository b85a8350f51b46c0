// Package errors defines the tagged error variant produced at the accrual
// service boundary. Callers branch on Kind, never on raw responses.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Kind classifies a failure for retry and degradation decisions
type Kind string

const (
	// KindNonRetriable represents client/auth failures (HTTP 400/401); retrying cannot help
	KindNonRetriable Kind = "non_retriable"
	// KindTransient represents server, network and decode failures
	KindTransient Kind = "transient"
	// KindIO represents local persistence failures
	KindIO Kind = "io"
)

// RemoteError is a categorized failure with an optional status code and retry-after hint
type RemoteError struct {
	Kind       Kind
	Operation  string
	StatusCode int           // 0 when no response was received
	RetryAfter time.Duration // 0 when the server gave no hint
	Message    string
	Cause      error
}

// Error implements the error interface
func (e *RemoteError) Error() string {
	var b strings.Builder
	if e.Operation != "" {
		b.WriteString(e.Operation)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, " (caused by: %v)", e.Cause)
	}
	return b.String()
}

// Unwrap returns the underlying cause
func (e *RemoteError) Unwrap() error {
	return e.Cause
}

// NewNonRetriableError creates a client-class error
func NewNonRetriableError(operation string, statusCode int, message string) *RemoteError {
	return &RemoteError{
		Kind:       KindNonRetriable,
		Operation:  operation,
		StatusCode: statusCode,
		Message:    message,
	}
}

// NewTransientError creates a retriable error
func NewTransientError(operation string, statusCode int, retryAfter time.Duration, cause error) *RemoteError {
	msg := "request failed"
	if statusCode != 0 {
		msg = http.StatusText(statusCode)
		if msg == "" {
			msg = "unexpected status"
		}
	}
	return &RemoteError{
		Kind:       KindTransient,
		Operation:  operation,
		StatusCode: statusCode,
		RetryAfter: retryAfter,
		Message:    msg,
		Cause:      cause,
	}
}

// NewIOError creates a persistence error
func NewIOError(operation string, cause error) *RemoteError {
	return &RemoteError{
		Kind:      KindIO,
		Operation: operation,
		Message:   "i/o failure",
		Cause:     cause,
	}
}

// FromHTTPStatus classifies a non-2xx response. 400 and 401 are
// non-retriable; everything else is transient.
func FromHTTPStatus(operation string, statusCode int, retryAfter time.Duration, message string) *RemoteError {
	switch statusCode {
	case http.StatusBadRequest, http.StatusUnauthorized:
		if message == "" {
			message = http.StatusText(statusCode)
		}
		return NewNonRetriableError(operation, statusCode, message)
	default:
		e := NewTransientError(operation, statusCode, retryAfter, nil)
		if message != "" {
			e.Message = message
		}
		return e
	}
}

// ParseRetryAfter parses a Retry-After header given in whole seconds.
// HTTP-date values and garbage yield zero.
func ParseRetryAfter(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	secs, err := strconv.Atoi(header)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// RetriesExhaustedError is returned after every attempt of an operation failed
type RetriesExhaustedError struct {
	Operation string
	Attempts  int
	LastErr   error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts.", e.Operation, e.Attempts)
}

func (e *RetriesExhaustedError) Unwrap() error {
	return e.LastErr
}

// ErrNotRegistered is returned when the service does not know the account
var ErrNotRegistered = stderrors.New("wallet not registered")

// As finds the first RemoteError in err's chain
func As(err error) (*RemoteError, bool) {
	var re *RemoteError
	if stderrors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// IsNonRetriable reports whether err is a client-class failure
func IsNonRetriable(err error) bool {
	re, ok := As(err)
	return ok && re.Kind == KindNonRetriable
}

// IsRetryable determines if an error should be retried. Unclassified
// errors are treated as transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return !IsNonRetriable(err)
}

// RetryAfter returns the server-provided hint carried by err, if any
func RetryAfter(err error) (time.Duration, bool) {
	re, ok := As(err)
	if !ok || re.RetryAfter <= 0 {
		return 0, false
	}
	return re.RetryAfter, true
}

// StatusCode returns the HTTP status carried by err, or 0
func StatusCode(err error) int {
	if re, ok := As(err); ok {
		return re.StatusCode
	}
	return 0
}

// IsRetriesExhausted reports whether err is a RetriesExhaustedError
func IsRetriesExhausted(err error) bool {
	var re *RetriesExhaustedError
	return stderrors.As(err, &re)
}
