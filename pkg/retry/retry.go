// Package retry is the single retry-with-backoff wrapper used by every
// external call that is allowed to be repeated.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Policy parameterizes a retried operation.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	// Multiplier grows the delay between attempts. Zero means 2.
	Multiplier float64
	// Retryable reports whether an error is worth another attempt.
	// A nil predicate retries every error.
	Retryable func(error) bool
	// OnRetry is called before sleeping ahead of the next attempt.
	OnRetry func(attempt int, err error, next time.Duration)
}

// Do runs op until it succeeds, returns a non-retryable error, the attempt
// budget is spent or ctx is done. It returns the number of attempts made.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context, attempt int) (T, error)) (T, int, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	attempt := 0
	operation := func() (T, error) {
		attempt++
		res, err := op(ctx, attempt)
		if err == nil {
			return res, nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return res, backoff.Permanent(err)
		}
		return res, err
	}

	notify := func(err error, next time.Duration) {
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, next)
		}
	}

	res, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(newBackOff(p)),
		backoff.WithMaxTries(uint(maxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(notify),
	)
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Unwrap()
	}
	return res, attempt, err
}

// Delays returns the schedule of waits between attempts for p, useful for
// logging and tests.
func Delays(p Policy) []time.Duration {
	if p.MaxAttempts <= 1 {
		return nil
	}
	b := newBackOff(p)
	out := make([]time.Duration, 0, p.MaxAttempts-1)
	for i := 1; i < p.MaxAttempts; i++ {
		out = append(out, b.NextBackOff())
	}
	return out
}

func newBackOff(p Policy) backoff.BackOff {
	if p.BaseDelay <= 0 {
		return &backoff.ZeroBackOff{}
	}
	multiplier := p.Multiplier
	if multiplier <= 0 {
		multiplier = 2
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.Multiplier = multiplier
	b.RandomizationFactor = 0
	b.MaxInterval = time.Duration(float64(p.BaseDelay) * pow(multiplier, p.MaxAttempts))
	b.Reset()
	return b
}

func pow(base float64, n int) float64 {
	out := 1.0
	for i := 0; i < n; i++ {
		out *= base
	}
	return out
}
