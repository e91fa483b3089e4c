// Package retry runs an operation under a bounded, linearly growing backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy describes how many times an operation is tried and how long to
// wait between tries. The wait before try n+1 is n*BaseDelay plus up to
// Jitter of random noise.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Jitter      time.Duration
}

func (p Policy) Delay(attempt int) time.Duration {
	d := time.Duration(attempt) * p.BaseDelay
	if p.Jitter > 0 {
		d += rand.N(p.Jitter)
	}
	return d
}

// linear adapts a Policy to backoff.BackOff. One instance per run.
type linear struct {
	policy  Policy
	attempt int
}

func (l *linear) NextBackOff() time.Duration {
	l.attempt++
	return l.policy.Delay(l.attempt)
}

func (l *linear) Reset() { l.attempt = 0 }

type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Operation gets the 1-based attempt number.
type Operation func(ctx context.Context, attempt int) error

// Notify is called after every failed attempt that will be retried.
type Notify func(attempt int, err error, wait time.Duration)

// Do runs op until it succeeds, returns a permanent error, the context is
// done or MaxAttempts is spent. Any failure comes back as *ExhaustedError.
func Do(ctx context.Context, p Policy, op Operation, notify Notify) error {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}

	attempts := 0
	b := backoff.WithContext(
		backoff.WithMaxRetries(&linear{policy: p}, uint64(p.MaxAttempts-1)),
		ctx,
	)

	err := backoff.RetryNotify(func() error {
		attempts++
		return op(ctx, attempts)
	}, b, func(err error, wait time.Duration) {
		if notify != nil {
			notify(attempts, err, wait)
		}
	})
	if err == nil {
		return nil
	}

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Err
	}
	return &ExhaustedError{Attempts: attempts, Err: err}
}
