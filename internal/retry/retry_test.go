package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsCode(t *testing.T) {
	throttle := &smithy.GenericAPIError{Code: "RequestLimitExceeded", Message: "slow down"}
	notFound := &smithy.GenericAPIError{Code: "InvalidInstanceID.NotFound", Message: "nope"}

	assert.True(t, IsCode(throttle, "RequestLimitExceeded"))
	assert.True(t, IsCode(notFound, "RequestLimitExceeded", "InvalidInstanceID.NotFound"))
	assert.False(t, IsCode(throttle, "InvalidInstanceID.NotFound"))
	assert.False(t, IsCode(errors.New("plain"), "RequestLimitExceeded"))
	assert.True(t, IsCode(fmt.Errorf("wrapped: %w", throttle), "RequestLimitExceeded"))
}

func TestBackoffStopsOnNonRetryable(t *testing.T) {
	fatal := errors.New("fatal")
	calls := 0
	err := Backoff(t.Context(), 5, func(context.Context) error {
		calls++
		return fatal
	}, func(error) bool { return false })
	require.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, calls)
}

func TestBackoffSucceedsMidway(t *testing.T) {
	transient := &smithy.GenericAPIError{Code: "RequestLimitExceeded"}
	calls := 0
	err := Backoff(t.Context(), 5, func(context.Context) error {
		calls++
		if calls < 2 {
			return transient
		}
		return nil
	}, func(err error) bool { return IsCode(err, "RequestLimitExceeded") })
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestWaiterTimeout(t *testing.T) {
	before := 0
	w := Waiter{MaxAttempts: 3, Delay: time.Millisecond, Before: func(context.Context, int) { before++ }}
	err := w.Wait(t.Context(), "instance readiness", func(context.Context) (bool, error) {
		return false, nil
	})
	require.Error(t, err)
	assert.True(t, IsTimeout(err))
	assert.Equal(t, 3, before)

	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "instance readiness", te.What)
	assert.Equal(t, 3, te.Attempts)
}

func TestWaiterSucceeds(t *testing.T) {
	attempts := 0
	w := Waiter{MaxAttempts: 10, Delay: time.Millisecond}
	err := w.Wait(t.Context(), "spot fulfillment", func(context.Context) (bool, error) {
		attempts++
		return attempts == 4, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 4, attempts)
}

func TestWaiterPropagatesPredicateError(t *testing.T) {
	boom := errors.New("boom")
	w := Waiter{MaxAttempts: 10, Delay: time.Millisecond}
	err := w.Wait(t.Context(), "anything", func(context.Context) (bool, error) {
		return false, boom
	})
	require.ErrorIs(t, err, boom)
	assert.False(t, IsTimeout(err))
}
