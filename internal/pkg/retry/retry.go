// Package retry wraps cenkalti/backoff for calls that cross a storage boundary.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
)

// Policy bounds one retried call.
type Policy struct {
	// Timeout applies to each attempt separately.
	Timeout         time.Duration
	MaxTries        uint
	MaxElapsed      time.Duration
	InitialInterval time.Duration
	// Retryable decides whether an error is transient. A nil func retries nothing.
	Retryable func(error) bool
}

func Default(timeout time.Duration, retryable func(error) bool) Policy {
	return Policy{
		Timeout:         timeout,
		MaxTries:        4,
		MaxElapsed:      30 * time.Second,
		InitialInterval: 200 * time.Millisecond,
		Retryable:       retryable,
	}
}

// Do runs fn until it succeeds, fails with a non-retryable error or the
// policy is exhausted. The last error is returned unchanged.
func Do[T any](ctx context.Context, p Policy, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}

	opts := []backoff.RetryOption{
		backoff.WithBackOff(b),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warn().Err(err).Str("operation", name).Dur("retry_in", next).Msg("retrying after transient failure")
		}),
	}
	if p.MaxTries > 0 {
		opts = append(opts, backoff.WithMaxTries(p.MaxTries))
	}
	if p.MaxElapsed > 0 {
		opts = append(opts, backoff.WithMaxElapsedTime(p.MaxElapsed))
	}

	return backoff.Retry(ctx, func() (T, error) {
		attemptCtx := ctx
		if p.Timeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, p.Timeout)
			defer cancel()
		}

		res, err := fn(attemptCtx)
		if err != nil && (p.Retryable == nil || !p.Retryable(err)) {
			return res, backoff.Permanent(err)
		}
		return res, err
	}, opts...)
}

// Exec is Do for calls without a result.
func Exec(ctx context.Context, p Policy, name string, fn func(ctx context.Context) error) error {
	_, err := Do(ctx, p, name, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
