package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errNotFound = errors.New("not found")

func testConfig() Config {
	cfg := DefaultConfig("test-ledger")
	cfg.Timeout = time.Minute
	cfg.IsSuccessful = func(err error) bool {
		return err == nil || errors.Is(err, errNotFound)
	}
	return cfg
}

func TestWrapper_OpensAfterFailures(t *testing.T) {
	w := NewWrapper(testConfig())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := w.Execute(ctx, func() (interface{}, error) {
			return nil, errors.New("connection refused")
		})
		require.Error(t, err)
	}

	assert.True(t, w.IsOpen())
	_, err := w.Execute(ctx, func() (interface{}, error) { return "ok", nil })
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
}

func TestWrapper_NotFoundDoesNotTrip(t *testing.T) {
	w := NewWrapper(testConfig())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := w.Execute(ctx, func() (interface{}, error) { return nil, errNotFound })
		assert.ErrorIs(t, err, errNotFound)
	}

	assert.Equal(t, gobreaker.StateClosed, w.State())
}

func TestWrapper_CancelledContext(t *testing.T) {
	w := NewWrapper(testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	_, err := w.Execute(ctx, func() (interface{}, error) {
		called = true
		return nil, nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}
