// Package retry runs an operation with exponential backoff.
//
// The caller decides what is worth retrying: returning an error wrapped
// with Permanent stops the loop at once. Cancellation of the context
// stops it between attempts and during backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultBackoff is the delay before the first retry when Policy.Backoff is unset.
const DefaultBackoff = 500 * time.Millisecond

// Policy configures a retry loop.
type Policy struct {
	// Retries is the number of attempts after the first.
	Retries int
	// Backoff is the delay before the first retry; it doubles per retry.
	Backoff time.Duration
	// MaxDelay caps a single delay. Zero means uncapped.
	MaxDelay time.Duration
	// OnRetry, if set, is called before each backoff sleep.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// Validate rejects negative retry counts.
func (p Policy) Validate() error {
	if p.Retries < 0 {
		return fmt.Errorf("retries must be >= 0, got %d", p.Retries)
	}
	return nil
}

// Attempts is the total number of calls Do makes at most.
func (p Policy) Attempts() int {
	return 1 + max(p.Retries, 0)
}

// Delay returns the sleep before retry n (1-based).
func (p Policy) Delay(n int) time.Duration {
	base := p.Backoff
	if base <= 0 {
		base = DefaultBackoff
	}
	d := base
	for i := 1; i < n; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Do calls fn until it succeeds, returns a Permanent error, the attempts
// run out, or ctx is done. A Permanent error is returned unwrapped.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.Attempts()
	for n := 1; ; n++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("canceled before attempt %d: %w", n, err)
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if n >= attempts {
			return &ExhaustedError{Attempts: attempts, Err: err}
		}

		delay := p.Delay(n)
		if p.OnRetry != nil {
			p.OnRetry(n+1, delay, err)
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("canceled during backoff: %w", ctx.Err())
		case <-timer.C:
		}
	}
}

// ExhaustedError is returned when every attempt failed.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Permanent(nil) is nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}
