// Package errclass classifies failures from external calls into system,
// critical and business errors, and applies bounded retry to the first
// class only. The classification decides how a phase failure maps to a
// terminal job status and which message the operator gets to see.
package errclass

import "fmt"

// Class is the disposition assigned to a failure.
type Class int

const (
	// ClassSystem covers connection failures, timeouts and retryable HTTP
	// statuses. Retried; message never surfaced to the operator.
	ClassSystem Class = iota
	// ClassCritical covers authentication/authorization failures.
	// Not retried; surfaced.
	ClassCritical
	// ClassBusiness covers domain-data failures such as a missing
	// identifier. Not retried; message surfaced verbatim.
	ClassBusiness
)

func (c Class) String() string {
	switch c {
	case ClassSystem:
		return "system"
	case ClassCritical:
		return "critical"
	case ClassBusiness:
		return "business"
	default:
		return "unknown"
	}
}

// SystemError wraps a transient infrastructure failure after retries are
// exhausted. The operator-visible message is generic; the cause is only
// for server-side logs.
type SystemError struct {
	Operation string
	Cause     error
}

func (e *SystemError) Error() string {
	return fmt.Sprintf("System temporarily unavailable for %s, will retry later", e.Operation)
}

func (e *SystemError) Unwrap() error {
	return e.Cause
}

// NewSystemError creates a SystemError for the given operation.
func NewSystemError(operation string, cause error) *SystemError {
	return &SystemError{Operation: operation, Cause: cause}
}

// BusinessError carries a domain-data failure whose message is actionable
// by the operator and must be preserved verbatim.
type BusinessError struct {
	Message string
	Cause   error
}

func (e *BusinessError) Error() string {
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Cause
}

// NewBusinessError creates a BusinessError with the given message.
func NewBusinessError(message string) *BusinessError {
	return &BusinessError{Message: message}
}

// NewBusinessErrorf creates a BusinessError with a formatted message.
func NewBusinessErrorf(format string, args ...any) *BusinessError {
	return &BusinessError{Message: fmt.Sprintf(format, args...)}
}

// CriticalError carries an authorization failure. Never retried.
type CriticalError struct {
	StatusCode int
	Message    string
}

func (e *CriticalError) Error() string {
	return e.Message
}

// HTTPStatusError is raised by outbound clients for non-2xx responses so
// the classifier can inspect the status code.
type HTTPStatusError struct {
	StatusCode int
	Operation  string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("%s failed with HTTP status %d: %s", e.Operation, e.StatusCode, e.Body)
}
