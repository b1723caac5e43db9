package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetLogFields(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetLogFields(ctx))

	ctx = WithServiceName(ctx, "reward-consumer")
	ctx = WithBatchID(ctx, "batch-1")
	ctx = WithTransactionID(ctx, "txn-1")

	assert.Equal(t, []interface{}{
		"batch_id", "batch-1",
		"transaction_id", "txn-1",
		"service_name", "reward-consumer",
	}, GetLogFields(ctx))
	assert.Equal(t, "txn-1", GetTransactionID(ctx))
	assert.Equal(t, "", GetTraceID(ctx))
}
