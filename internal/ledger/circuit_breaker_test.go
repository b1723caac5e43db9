package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loyalty/internal/config"
	"loyalty/internal/ledger"
	"loyalty/internal/ledger/ledgertest"
	apperrors "loyalty/pkg/errors"
)

func TestCircuitBreakerStore_Disabled(t *testing.T) {
	inner := ledgertest.NewMemoryStore()
	store := ledger.NewCircuitBreakerStore(inner, "ledger-disabled", config.CircuitBreakerConfig{Enabled: false})
	assert.Same(t, inner, store)
}

func TestCircuitBreakerStore_OpensOnStoreFailures(t *testing.T) {
	inner := ledgertest.NewMemoryStore()
	inner.FailLookup = true

	store := ledger.NewCircuitBreakerStore(inner, "ledger-test-open", config.CircuitBreakerConfig{
		Enabled:      true,
		Timeout:      time.Minute,
		FailureRatio: 0.5,
		MinRequests:  2,
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := store.GetByTransactionID(ctx, "t1")
		assert.True(t, apperrors.IsStoreUnavailable(err))
	}

	inner.FailLookup = false
	_, err := store.GetByTransactionID(ctx, "t1")
	require.Error(t, err)
	assert.True(t, apperrors.IsStoreUnavailable(err))
	assert.Contains(t, err.Error(), "circuit breaker")
}

func TestCircuitBreakerStore_NotFoundKeepsCircuitClosed(t *testing.T) {
	inner := ledgertest.NewMemoryStore()
	store := ledger.NewCircuitBreakerStore(inner, "ledger-test-notfound", config.CircuitBreakerConfig{
		Enabled:      true,
		Timeout:      time.Minute,
		FailureRatio: 0.5,
		MinRequests:  2,
	})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := store.GetByTransactionID(ctx, "missing")
		assert.True(t, apperrors.IsNotFound(err))
	}

	committed, err := store.Put(ctx, issued("t9"))
	require.NoError(t, err)
	assert.True(t, committed)
	assert.Equal(t, "closed", store.(*ledger.CircuitBreakerStore).State())
}
