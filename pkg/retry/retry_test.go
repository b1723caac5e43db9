package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(attempts int) Policy {
	return Policy{
		MaxAttempts:     attempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Multiplier:      2.0,
	}
}

func TestDo_SucceedsAfterRetries(t *testing.T) {
	calls := 0
	var retried []int

	err := Do(context.Background(), fastPolicy(3), func() error {
		calls++
		if calls < 3 {
			return errors.New("store unavailable")
		}
		return nil
	}, func(attempt int, err error, nextDelay time.Duration) {
		retried = append(retried, attempt)
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestDo_ReturnsLastErrorWhenExhausted(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(2), func() error {
		calls++
		return errors.New("still down")
	}, nil)

	require.Error(t, err)
	assert.Equal(t, "still down", err.Error())
	assert.Equal(t, 2, calls)
}

func TestDo_StopsOnPermanentError(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(5), func() error {
		calls++
		return Permanent(errors.New("malformed"))
	}, nil)

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDelayFor(t *testing.T) {
	p := Policy{InitialInterval: time.Second, MaxInterval: 3 * time.Second, Multiplier: 2}
	assert.Equal(t, time.Second, delayFor(1, p))
	assert.Equal(t, 2*time.Second, delayFor(2, p))
	assert.Equal(t, 3*time.Second, delayFor(3, p))
}
