//go:build integration

package ledger_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loyalty/internal/config"
	"loyalty/internal/ledger"
	"loyalty/internal/logger"
	"loyalty/internal/testinfra"
	apperrors "loyalty/pkg/errors"
)

func newEntry(txn string, status ledger.Status, points int64, date string) *ledger.Entry {
	return &ledger.Entry{
		ID:            uuid.NewString(),
		UserID:        "user-1",
		Points:        points,
		Status:        status,
		Date:          date,
		Timestamp:     time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC),
		TransactionID: txn,
		Merchant:      "Coffee Co",
	}
}

func storeContract(t *testing.T, store ledger.Store) {
	ctx := context.Background()

	t.Run("conditional put", func(t *testing.T) {
		committed, err := store.Put(ctx, newEntry("txn-1", ledger.StatusIssued, 10, "2024-01-15"))
		require.NoError(t, err)
		assert.True(t, committed)

		committed, err = store.Put(ctx, newEntry("txn-1", ledger.StatusIssued, 10, "2024-01-15"))
		require.NoError(t, err)
		assert.False(t, committed)
	})

	t.Run("empty transaction id is never suppressed", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			committed, err := store.Put(ctx, newEntry("", ledger.StatusIssued, 5, "2024-01-16"))
			require.NoError(t, err)
			assert.True(t, committed)
		}
	})

	t.Run("concurrent duplicates commit once", func(t *testing.T) {
		var wg sync.WaitGroup
		results := make(chan bool, 8)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				committed, err := store.Put(ctx, newEntry("txn-race", ledger.StatusIssued, 7, "2024-01-17"))
				assert.NoError(t, err)
				results <- committed
			}()
		}
		wg.Wait()
		close(results)

		n := 0
		for committed := range results {
			if committed {
				n++
			}
		}
		assert.Equal(t, 1, n)
	})

	t.Run("query by status and date", func(t *testing.T) {
		_, err := store.Put(ctx, newEntry("txn-2", ledger.StatusIssued, 20, "2024-01-15"))
		require.NoError(t, err)
		_, err = store.Put(ctx, newEntry("txn-r1", ledger.StatusRedeemed, 5, "2024-01-15"))
		require.NoError(t, err)

		issued, err := store.Query(ctx, ledger.StatusIssued, "2024-01-15")
		require.NoError(t, err)
		assert.Len(t, issued, 2)

		redeemed, err := store.Query(ctx, ledger.StatusRedeemed, "2024-01-15")
		require.NoError(t, err)
		require.Len(t, redeemed, 1)
		assert.Equal(t, int64(5), redeemed[0].Points)

		none, err := store.Query(ctx, ledger.StatusIssued, "2023-12-31")
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("get by transaction id", func(t *testing.T) {
		entry, err := store.GetByTransactionID(ctx, "txn-1")
		require.NoError(t, err)
		assert.Equal(t, ledger.StatusIssued, entry.Status)
		assert.Equal(t, "2024-01-15", entry.Date)
		assert.Equal(t, int64(10), entry.Points)

		_, err = store.GetByTransactionID(ctx, "missing")
		assert.True(t, apperrors.IsNotFound(err))
	})
}

func TestPostgresStore(t *testing.T) {
	db := testinfra.Postgres(t)
	storeContract(t, ledger.NewPostgresStore(db))
}

func TestMongoStore(t *testing.T) {
	db := testinfra.Mongo(t)
	storeContract(t, ledger.NewMongoStore(db))
}

func TestCachedPostgresStore(t *testing.T) {
	db := testinfra.Postgres(t)
	client := testinfra.Redis(t)

	store := ledger.NewCachedStore(ledger.NewPostgresStore(db), client,
		config.CacheConfig{Enabled: true, TTL: time.Minute, OnError: "error"}, logger.NopLogger())
	storeContract(t, store)

	exists, err := client.Exists(context.Background(), "reward:txn:txn-1").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), exists)
}
