package cache

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable is returned when a networked backend cannot be reached.
var ErrUnavailable = errors.New("cache unavailable")

// transientError marks a failure that may succeed when tried again.
type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Retryable marks err as transient so [Backoff.Do] tries again. A nil
// error stays nil.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsRetryable reports whether err, or any error it wraps, was marked with
// [Retryable].
func IsRetryable(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}

// Backoff retries an operation, doubling the wait after each failure.
type Backoff struct {
	Attempts int           // total calls, at least one
	Delay    time.Duration // wait before the second call
}

// DefaultBackoff is used by the networked backends.
var DefaultBackoff = Backoff{Attempts: 3, Delay: 100 * time.Millisecond}

// Do calls fn until it succeeds, returns an error not marked with
// [Retryable], or the attempts run out. A cancelled context ends the wait
// early with the context's error.
func (b Backoff) Do(ctx context.Context, fn func() error) error {
	wait := b.Delay
	err := fn()
	for n := 1; n < b.Attempts && IsRetryable(err); n++ {
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		wait *= 2
		err = fn()
	}
	return err
}

// RetryWithBackoff runs fn under [DefaultBackoff].
func RetryWithBackoff(ctx context.Context, fn func() error) error {
	return DefaultBackoff.Do(ctx, fn)
}
