package logging

import (
	"context"
)

type contextKey string

const (
	TraceIDKey       contextKey = "trace_id"
	BatchIDKey       contextKey = "batch_id"
	TransactionIDKey contextKey = "transaction_id"
	ServiceNameKey   contextKey = "service_name"
)

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

func WithBatchID(ctx context.Context, batchID string) context.Context {
	return context.WithValue(ctx, BatchIDKey, batchID)
}

func WithTransactionID(ctx context.Context, transactionID string) context.Context {
	return context.WithValue(ctx, TransactionIDKey, transactionID)
}

func WithServiceName(ctx context.Context, serviceName string) context.Context {
	return context.WithValue(ctx, ServiceNameKey, serviceName)
}

func stringValue(ctx context.Context, key contextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

func GetTraceID(ctx context.Context) string {
	return stringValue(ctx, TraceIDKey)
}

func GetBatchID(ctx context.Context) string {
	return stringValue(ctx, BatchIDKey)
}

func GetTransactionID(ctx context.Context) string {
	return stringValue(ctx, TransactionIDKey)
}

func GetServiceName(ctx context.Context) string {
	return stringValue(ctx, ServiceNameKey)
}

// GetLogFields returns the context values as alternating key/value pairs in
// the order trace_id, batch_id, transaction_id, service_name.
func GetLogFields(ctx context.Context) []interface{} {
	fields := make([]interface{}, 0, 8)

	for _, key := range []contextKey{TraceIDKey, BatchIDKey, TransactionIDKey, ServiceNameKey} {
		if v := stringValue(ctx, key); v != "" {
			fields = append(fields, string(key), v)
		}
	}

	return fields
}
