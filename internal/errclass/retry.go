package errclass

import (
	"context"
	"log/slog"
	"time"
)

// Default retry policy for system-transient failures.
const (
	DefaultMaxAttempts  = 3
	DefaultInitialDelay = 2 * time.Second
	DefaultMaxDelay     = 30 * time.Second
)

// Retryer applies bounded exponential backoff to system-transient
// failures. Business and critical errors are returned immediately.
type Retryer struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Logger       *slog.Logger
}

// NewRetryer creates a Retryer with the default policy.
func NewRetryer(logger *slog.Logger) *Retryer {
	return &Retryer{
		MaxAttempts:  DefaultMaxAttempts,
		InitialDelay: DefaultInitialDelay,
		MaxDelay:     DefaultMaxDelay,
		Logger:       logger,
	}
}

// Do runs op, retrying system-transient failures up to MaxAttempts with
// exponential backoff. When retries exhaust, the error is wrapped in a
// SystemError carrying a generic message; the original cause stays in the
// server-side logs only.
func (r *Retryer) Do(ctx context.Context, operation string, op func(ctx context.Context) error) error {
	delay := r.InitialDelay

	var lastErr error
	for attempt := 1; attempt <= r.MaxAttempts; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}

		switch Classify(err) {
		case ClassBusiness, ClassCritical:
			return err
		}

		lastErr = err

		if attempt < r.MaxAttempts {
			r.Logger.Warn("Retrying operation after system error",
				slog.String("operation", operation),
				slog.Int("attempt", attempt),
				slog.Int("max_attempts", r.MaxAttempts),
				slog.Duration("retry_after", delay),
				slog.Any("error", err),
			)

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return NewSystemError(operation, ctx.Err())
			}

			delay *= 2
			if delay > r.MaxDelay {
				delay = r.MaxDelay
			}
		}
	}

	r.Logger.Error("All retry attempts exhausted",
		slog.String("operation", operation),
		slog.Int("attempts", r.MaxAttempts),
		slog.Any("error", lastErr),
	)

	return NewSystemError(operation, lastErr)
}

// DoValue is Do for operations that return a value.
func DoValue[T any](ctx context.Context, r *Retryer, operation string, op func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := r.Do(ctx, operation, func(ctx context.Context) error {
		var opErr error
		result, opErr = op(ctx)
		return opErr
	})
	return result, err
}
