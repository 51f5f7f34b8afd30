package resiliency

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Try calling factory function with exponential back-off until it succeeds or
// the passed context expires.
func RetryGet[T any](ctx context.Context, b backoff.BackOff, factory func() (T, error)) (T, error) {
	var lastAttemptErr error

	if b == nil {
		b = backoff.NewExponentialBackOff()
	}

	retval, err := backoff.RetryNotifyWithData(
		factory,
		backoff.WithContext(b, ctx),
		func(err error, d time.Duration) {
			lastAttemptErr = err
		},
	)

	switch {
	case err != nil && errors.Is(err, context.DeadlineExceeded):
		// Inform the caller about the timeout AND the last attempt error.
		return *new(T), errors.Join(lastAttemptErr, err)
	case err != nil:
		return *new(T), err
	default:
		return retval, nil
	}
}

// RetryExponentialWithTimeout retries an operation with exponential back-off
// until it succeeds or the timeout elapses.
func RetryExponentialWithTimeout(ctx context.Context, timeout time.Duration, op func() error) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	_, err := RetryGet(timeoutCtx, nil, func() (struct{}, error) {
		return struct{}{}, op()
	})
	return err
}
