package errclass

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"syscall"
)

// Classify decides the disposition of a failure surfaced from an external
// call. Unknown errors are treated conservatively as system-transient so
// internal detail never leaks into the operator-visible discrepancy list.
func Classify(err error) Class {
	if err == nil {
		return ClassBusiness
	}

	var businessErr *BusinessError
	if errors.As(err, &businessErr) {
		return ClassBusiness
	}

	var criticalErr *CriticalError
	if errors.As(err, &criticalErr) {
		return ClassCritical
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		if statusErr.StatusCode == http.StatusUnauthorized || statusErr.StatusCode == http.StatusForbidden {
			return ClassCritical
		}
		if isRetryableStatus(statusErr.StatusCode) {
			return ClassSystem
		}
		// Remaining 4xx responses indicate bad business data
		return ClassBusiness
	}

	if isNetworkError(err) {
		return ClassSystem
	}

	// Unknown errors retry; surfacing them would leak internals
	return ClassSystem
}

// isRetryableStatus reports whether an HTTP status is worth retrying:
// server errors plus request timeout and throttling.
func isRetryableStatus(status int) bool {
	return status >= 500 || status == http.StatusRequestTimeout || status == http.StatusTooManyRequests
}

func isNetworkError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}

	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}

	return false
}
