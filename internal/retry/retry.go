// retry provides the two retry shapes the driver needs: bounded exponential
// backoff on a transient error class, and poll-until-true waiters bounded by
// an attempt count and a fixed inter-attempt delay.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/smithy-go"
	"github.com/chainguard-dev/clog"
)

// DefaultBackoffTries bounds Backoff when the caller has no opinion.
const DefaultBackoffTries = 5

// IsCode reports whether err is an AWS API error carrying one of the given
// error codes.
func IsCode(err error, codes ...string) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	for _, code := range codes {
		if apiErr.ErrorCode() == code {
			return true
		}
	}
	return false
}

// Backoff invokes fn up to tries times, retrying only when isRetryable
// reports the returned error as transient. Between attempts it sleeps
// attempt² seconds. The last error is returned when the attempt budget is
// exhausted; a non-retryable error is returned immediately.
func Backoff(ctx context.Context, tries int, fn func(ctx context.Context) error, isRetryable func(error) bool) error {
	log := clog.FromContext(ctx)
	if tries < 1 {
		tries = DefaultBackoffTries
	}
	var err error
	for attempt := 1; attempt <= tries; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return err
		}
		if attempt == tries {
			break
		}
		sleep := time.Duration(attempt*attempt) * time.Second
		log.Debug("transient error, backing off",
			"attempt", attempt,
			"sleep", sleep,
			"error", err,
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
	}
	return err
}

// TimeoutError is returned by Waiter.Wait when the attempt budget is
// exhausted without the predicate returning true.
type TimeoutError struct {
	// What describes the condition that was being waited for.
	What string
	// Attempts is the number of attempts made before giving up.
	Attempts int
	// Delay is the fixed sleep between attempts.
	Delay time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf(
		"timed out waiting for %s after %d attempts with %s between attempts",
		e.What, e.Attempts, e.Delay,
	)
}

// IsTimeout reports whether err is (or wraps) a waiter timeout.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// Waiter repeatedly evaluates a predicate against freshly fetched remote
// state until it returns true, the attempt budget runs out, or an error
// propagates.
type Waiter struct {
	// MaxAttempts bounds the number of predicate evaluations.
	MaxAttempts int
	// Delay is the fixed sleep between attempts.
	Delay time.Duration
	// Before, when set, runs before every attempt. Used for progress logs.
	Before func(ctx context.Context, attempt int)
}

// Wait polls pred until it returns true. A false return with a nil error
// schedules another attempt; any error aborts the wait immediately. When
// MaxAttempts is exhausted a *TimeoutError naming the condition is returned.
func (w Waiter) Wait(ctx context.Context, what string, pred func(ctx context.Context) (bool, error)) error {
	for attempt := 1; attempt <= w.MaxAttempts; attempt++ {
		if w.Before != nil {
			w.Before(ctx, attempt)
		}
		done, err := pred(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if attempt == w.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.Delay):
		}
	}
	return &TimeoutError{What: what, Attempts: w.MaxAttempts, Delay: w.Delay}
}
