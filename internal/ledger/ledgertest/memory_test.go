package ledgertest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loyalty/internal/ledger"
	apperrors "loyalty/pkg/errors"
)

func entry(id, txn string, status ledger.Status) *ledger.Entry {
	return &ledger.Entry{
		ID: id, UserID: "u1", Points: 1, Status: status, Date: "2024-01-15",
		Timestamp: time.Unix(0, 0).UTC(), TransactionID: txn,
	}
}

func TestMemoryStore_ConditionalPut(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	ok, err := s.Put(ctx, entry("1", "t1", ledger.StatusIssued))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Put(ctx, entry("2", "t1", ledger.StatusIssued))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.Put(ctx, entry("3", "t1", ledger.StatusRedeemed))
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, 1, s.Issued("t1"))
	got, err := s.GetByTransactionID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "1", got.ID)
}

func TestMemoryStore_FailPutAt(t *testing.T) {
	s := NewMemoryStore()
	s.FailPutAt = 2
	ctx := context.Background()

	_, err := s.Put(ctx, entry("1", "", ledger.StatusIssued))
	require.NoError(t, err)
	_, err = s.Put(ctx, entry("2", "", ledger.StatusIssued))
	assert.True(t, apperrors.IsStoreUnavailable(err))
	_, err = s.Put(ctx, entry("3", "", ledger.StatusIssued))
	require.NoError(t, err)

	assert.Len(t, s.Entries(), 2)
}
