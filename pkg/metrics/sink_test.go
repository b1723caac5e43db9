package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusSink_CounterAdds(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	ctx := context.Background()
	dims := map[string]string{DimUserID: "u1", DimMerchant: "Coffee"}
	require.NoError(t, sink.Increment(ctx, RewardPointsIssued, 10, dims))
	require.NoError(t, sink.Increment(ctx, RewardPointsIssued, 5, dims))

	got := testutil.ToFloat64(sink.metrics[RewardPointsIssued].counter.WithLabelValues("u1", "Coffee"))
	assert.Equal(t, float64(15), got)
}

func TestPrometheusSink_ConcurrentIncrements(t *testing.T) {
	sink, err := NewPrometheusSink(prometheus.NewRegistry())
	require.NoError(t, err)

	ctx := context.Background()
	dims := map[string]string{DimUserID: "u1", DimMerchant: "Coffee"}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				assert.NoError(t, sink.Increment(ctx, RewardPointsIssued, 1, dims))
			}
		}()
	}
	wg.Wait()

	got := testutil.ToFloat64(sink.metrics[RewardPointsIssued].counter.WithLabelValues("u1", "Coffee"))
	assert.Equal(t, float64(800), got)
}

func TestPrometheusSink_GaugeReplaces(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	ctx := context.Background()
	dims := map[string]string{DimDate: "2024-01-15"}
	require.NoError(t, sink.Increment(ctx, NetRewards, 25, dims))
	require.NoError(t, sink.Increment(ctx, NetRewards, 25, dims))

	got := testutil.ToFloat64(sink.metrics[NetRewards].gauge.WithLabelValues("2024-01-15"))
	assert.Equal(t, float64(25), got)
}

func TestPrometheusSink_Errors(t *testing.T) {
	sink, err := NewPrometheusSink(prometheus.NewRegistry())
	require.NoError(t, err)

	ctx := context.Background()
	assert.Error(t, sink.Increment(ctx, "Unknown", 1, nil))
	assert.Error(t, sink.Increment(ctx, RewardPointsIssued, -1, nil))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, sink.Increment(cancelled, RewardPointsIssued, 1, nil), context.Canceled)
}

func TestNewPrometheusSink_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	_, err = NewPrometheusSink(reg)
	assert.Error(t, err)
}

func TestPusher_Push(t *testing.T) {
	var method string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	require.NoError(t, sink.Increment(context.Background(), TotalIssuedRewards, 30, map[string]string{DimDate: "2024-01-15"}))

	err = NewPusher(srv.URL, "reward-aggregator", reg).Push(context.Background())
	require.NoError(t, err)
	assert.Equal(t, http.MethodPut, method)
}
