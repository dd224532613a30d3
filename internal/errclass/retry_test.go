package errclass

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRetryer() *Retryer {
	return &Retryer{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestRetryerDo(t *testing.T) {
	t.Run("succeeds first attempt", func(t *testing.T) {
		r := newTestRetryer()
		calls := 0

		err := r.Do(context.Background(), "test op", func(ctx context.Context) error {
			calls++
			return nil
		})

		require.NoError(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("retries system errors until success", func(t *testing.T) {
		r := newTestRetryer()
		calls := 0

		err := r.Do(context.Background(), "test op", func(ctx context.Context) error {
			calls++
			if calls < 3 {
				return &HTTPStatusError{StatusCode: http.StatusServiceUnavailable, Operation: "test op"}
			}
			return nil
		})

		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("exhaustion wraps in system error", func(t *testing.T) {
		r := newTestRetryer()
		calls := 0
		cause := &HTTPStatusError{StatusCode: http.StatusInternalServerError, Operation: "erp fetch"}

		err := r.Do(context.Background(), "erp fetch", func(ctx context.Context) error {
			calls++
			return cause
		})

		require.Error(t, err)
		assert.Equal(t, 3, calls)

		var sysErr *SystemError
		require.ErrorAs(t, err, &sysErr)
		assert.Equal(t, "erp fetch", sysErr.Operation)
		assert.ErrorIs(t, err, error(cause))
	})

	t.Run("business error returned immediately", func(t *testing.T) {
		r := newTestRetryer()
		calls := 0
		bizErr := NewBusinessError("missing identifier")

		err := r.Do(context.Background(), "extract", func(ctx context.Context) error {
			calls++
			return bizErr
		})

		assert.Equal(t, 1, calls)
		assert.ErrorIs(t, err, error(bizErr))
	})

	t.Run("critical error returned immediately", func(t *testing.T) {
		r := newTestRetryer()
		calls := 0

		err := r.Do(context.Background(), "erp update", func(ctx context.Context) error {
			calls++
			return &CriticalError{StatusCode: http.StatusForbidden, Message: "forbidden"}
		})

		assert.Equal(t, 1, calls)

		var critErr *CriticalError
		assert.ErrorAs(t, err, &critErr)
	})

	t.Run("context cancellation stops retries", func(t *testing.T) {
		r := newTestRetryer()
		r.InitialDelay = time.Second

		ctx, cancel := context.WithCancel(context.Background())
		calls := 0

		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()

		err := r.Do(ctx, "slow op", func(ctx context.Context) error {
			calls++
			return errors.New("transient")
		})

		require.Error(t, err)
		assert.Equal(t, 1, calls)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestDoValue(t *testing.T) {
	r := newTestRetryer()
	calls := 0

	got, err := DoValue(context.Background(), r, "fetch", func(ctx context.Context) (string, error) {
		calls++
		if calls < 2 {
			return "", &HTTPStatusError{StatusCode: http.StatusBadGateway, Operation: "fetch"}
		}
		return "value", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "value", got)
	assert.Equal(t, 2, calls)
}
