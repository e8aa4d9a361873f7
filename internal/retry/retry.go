// Package retry runs optimistic-concurrency attempts: a bounded loop
// with no backoff, because each retry re-reads current state and the
// condition that failed was only ever a stale version.
package retry

import "context"

// DefaultAttempts bounds the optimistic retry loop.
const DefaultAttempts = 3

// Result is the outcome of one attempt.
type Result[T any] struct {
	ok    bool
	value T
	err   error
}

// Success short-circuits the loop with a value.
func Success[T any](value T) Result[T] {
	return Result[T]{ok: true, value: value}
}

// Failure asks the loop to retry; err surfaces if attempts run out.
func Failure[T any](err error) Result[T] {
	return Result[T]{err: err}
}

// Do runs fn up to attempts times. A returned error from fn (as opposed
// to a Failure result) propagates immediately: only explicit Failure
// results are retried. Context cancellation also stops the loop.
func Do[T any](ctx context.Context, attempts int, fn func(ctx context.Context) (Result[T], error)) (T, error) {
	var zero T
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	var last error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		result, err := fn(ctx)
		if err != nil {
			return zero, err
		}
		if result.ok {
			return result.value, nil
		}
		last = result.err
	}
	return zero, last
}
