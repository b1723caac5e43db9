package api

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"loyalty/pkg/metrics"
)

// CachedReportReader keeps recently served report bodies in memory. Reports
// for a past day only change when the aggregator is rerun, so the TTL bounds
// how long a rerun stays invisible.
type CachedReportReader struct {
	next  ReportReader
	cache *expirable.LRU[string, []byte]
}

func NewCachedReportReader(next ReportReader, size int, ttl time.Duration) *CachedReportReader {
	if size <= 0 {
		size = 128
	}
	return &CachedReportReader{
		next:  next,
		cache: expirable.NewLRU[string, []byte](size, nil, ttl),
	}
}

func (r *CachedReportReader) Read(ctx context.Context, date string) ([]byte, error) {
	if body, ok := r.cache.Get(date); ok {
		metrics.ReportCacheRequestsTotal.WithLabelValues("hit").Inc()
		return body, nil
	}
	metrics.ReportCacheRequestsTotal.WithLabelValues("miss").Inc()

	body, err := r.next.Read(ctx, date)
	if err != nil {
		return nil, err
	}

	r.cache.Add(date, body)
	return body, nil
}
