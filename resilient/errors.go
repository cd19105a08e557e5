package resilient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Error types for classifying provider errors.

// TransientError represents a temporary error that may succeed on retry.
type TransientError struct {
	err error
}

func (e *TransientError) Error() string {
	return e.err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.err
}

// NewTransientError wraps an error as transient (retryable).
func NewTransientError(err error) error {
	return &TransientError{err: err}
}

// QuotaError signals that the provider rejected the call for exceeding its
// request rate. The client slows the provider down before retrying.
type QuotaError struct {
	err error
}

func (e *QuotaError) Error() string {
	return e.err.Error()
}

func (e *QuotaError) Unwrap() error {
	return e.err
}

// NewQuotaError wraps an error as a quota signal.
func NewQuotaError(err error) error {
	return &QuotaError{err: err}
}

// FatalError represents a permanent error that should not be retried.
type FatalError struct {
	err error
}

func (e *FatalError) Error() string {
	return e.err.Error()
}

func (e *FatalError) Unwrap() error {
	return e.err
}

// NewFatalError wraps an error as fatal (non-retryable).
func NewFatalError(err error) error {
	return &FatalError{err: err}
}

// IsTransient returns true if the error is transient and should be retried.
func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}

// IsQuota returns true if the error is a quota signal.
func IsQuota(err error) bool {
	var quota *QuotaError
	return errors.As(err, &quota)
}

// IsFatal returns true if the error is fatal and should not be retried.
func IsFatal(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal)
}

// ErrorKind names the class of a terminal client error.
type ErrorKind string

const (
	KindTransient ErrorKind = "transient"
	KindQuota     ErrorKind = "quota"
	KindFatal     ErrorKind = "fatal"
	KindCanceled  ErrorKind = "canceled"
)

// KindOf classifies err. Unclassified errors count as transient.
func KindOf(err error) ErrorKind {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	case IsFatal(err):
		return KindFatal
	case IsQuota(err):
		return KindQuota
	default:
		return KindTransient
	}
}

// ClientError is returned by Call once retries are exhausted or the error
// is permanent. Callers fall back to default data.
type ClientError struct {
	Provider string
	Endpoint string
	Attempts int
	Kind     ErrorKind
	Err      error
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("%s %s failed after %d attempt(s) [%s]: %v", e.Provider, e.Endpoint, e.Attempts, e.Kind, e.Err)
}

func (e *ClientError) Unwrap() error {
	return e.Err
}

// ClassifyStatus maps an HTTP status code to an error class.
func ClassifyStatus(statusCode int, body []byte) error {
	bodyStr := string(body)
	if len(bodyStr) > 200 {
		bodyStr = bodyStr[:200] + "..."
	}

	err := fmt.Errorf("provider error (status %d): %s", statusCode, bodyStr)

	switch {
	case statusCode == http.StatusTooManyRequests:
		return NewQuotaError(err)
	case statusCode >= 500:
		return NewTransientError(err)
	case statusCode == http.StatusRequestTimeout:
		return NewTransientError(err)
	default:
		// 400, 401, 403, 404 and anything unexpected
		return NewFatalError(err)
	}
}
