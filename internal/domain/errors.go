package domain

import "errors"

var (
	// ErrRequestNotFound is returned when a verification request cannot be found
	ErrRequestNotFound = errors.New("verification request not found")

	// ErrRequestAlreadyClaimed is returned when a request is no longer PENDING
	ErrRequestAlreadyClaimed = errors.New("verification request already claimed or not in PENDING status")

	// ErrJobNotFound is returned when the job record for a request is missing
	ErrJobNotFound = errors.New("job record not found")

	// ErrJobBusy is returned when another run already holds the job claim
	ErrJobBusy = errors.New("job is already being processed by another verification run")
)

// RetryableError wraps transient infrastructure failures that should
// trigger a NACK with requeue instead of a terminal state.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}
