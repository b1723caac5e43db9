package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	ConsumerEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consumer_events_total",
			Help: "Total number of transaction events handled by the reward consumer (count)",
		},
		[]string{"status"},
	)

	ConsumerBatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consumer_batches_total",
			Help: "Total number of event batches handled by the reward consumer (count)",
		},
		[]string{"status"},
	)

	ConsumerBatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "consumer_batch_duration_ms",
			Help:    "Processing duration of one event batch in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"status"},
	)

	PolicyViolationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "policy_violations_total",
			Help: "Total number of non-positive amounts clamped to zero points (count)",
		},
	)

	AggregatorRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aggregator_runs_total",
			Help: "Total number of daily aggregation runs (count)",
		},
		[]string{"status"},
	)

	AggregatorRunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aggregator_run_duration_ms",
			Help:    "Duration of a daily aggregation run in milliseconds",
			Buckets: []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		},
		[]string{"status"},
	)

	ReportCacheRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "report_cache_requests_total",
			Help: "Total number of report reads served by the API report cache (count)",
		},
		[]string{"result"},
	)

	LedgerCacheRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_cache_requests_total",
			Help: "Total number of transaction id lookups against the ledger cache (count)",
		},
		[]string{"result"},
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Total number of retry attempts (count)",
		},
		[]string{"service", "topic"},
	)

	DLQMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlq_messages_total",
			Help: "Total number of messages sent to DLQ (count)",
		},
		[]string{"service", "topic", "reason"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_requests_total",
			Help: "Total number of requests checked against rate limit (count)",
		},
		[]string{"status"},
	)

	FallbackUsageTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fallback_usage_total",
			Help: "Total number of times fallback strategies were used (count)",
		},
		[]string{"service", "strategy", "reason"},
	)

	KafkaMessagesReadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_read_total",
			Help: "Total number of messages read from Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaMessagesWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_written_total",
			Help: "Total number of messages written to Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaMessageSizeBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_message_size_bytes",
			Help:    "Size of Kafka messages in bytes",
			Buckets: []float64{100, 500, 1000, 5000, 10000, 50000, 100000, 500000},
		},
		[]string{"service", "topic", "direction"},
	)

	KafkaConsumerLag = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kafka_consumer_lag",
			Help: "Kafka consumer lag (difference between latest offset and committed offset) (count)",
		},
		[]string{"service", "topic", "partition"},
	)

	KafkaReadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_read_duration_ms",
			Help:    "Duration of reading messages from Kafka in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"service", "topic"},
	)

	KafkaWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_write_duration_ms",
			Help:    "Duration of writing messages to Kafka in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"service", "topic"},
	)

	DatabaseQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "database_queries_total",
			Help: "Total number of database queries (count)",
		},
		[]string{"service", "database", "operation", "status"},
	)

	DatabaseQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "database_query_duration_ms",
			Help:    "Duration of database queries in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"service", "database", "operation"},
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests served (count)",
		},
		[]string{"method", "route", "status"},
	)
)

// The shared collectors are registered at most once per process because the
// consumer, the API and the tests may all ask for them.
var (
	consumerOnce       sync.Once
	aggregatorOnce     sync.Once
	brokerOnce         sync.Once
	circuitBreakerOnce sync.Once
	ledgerOnce         sync.Once
	apiOnce            sync.Once
)

func RegisterConsumerMetrics() {
	consumerOnce.Do(func() {
		prometheus.MustRegister(ConsumerEventsTotal)
		prometheus.MustRegister(ConsumerBatchesTotal)
		prometheus.MustRegister(ConsumerBatchDuration)
		prometheus.MustRegister(PolicyViolationsTotal)
	})
}

// RegisterAggregatorMetrics registers the run collectors on reg, which is the
// registry pushed to the pushgateway at the end of a batch run.
func RegisterAggregatorMetrics(reg prometheus.Registerer) {
	aggregatorOnce.Do(func() {
		reg.MustRegister(AggregatorRunsTotal)
		reg.MustRegister(AggregatorRunDuration)
	})
}

func RegisterBrokerMetrics() {
	brokerOnce.Do(func() {
		prometheus.MustRegister(RetryAttemptsTotal)
		prometheus.MustRegister(DLQMessagesTotal)
		prometheus.MustRegister(KafkaMessagesReadTotal)
		prometheus.MustRegister(KafkaMessagesWrittenTotal)
		prometheus.MustRegister(KafkaMessageSizeBytes)
		prometheus.MustRegister(KafkaConsumerLag)
		prometheus.MustRegister(KafkaReadDuration)
		prometheus.MustRegister(KafkaWriteDuration)
	})
}

func RegisterCircuitBreakerMetrics() {
	circuitBreakerOnce.Do(func() {
		prometheus.MustRegister(CircuitBreakerState)
		prometheus.MustRegister(CircuitBreakerRequests)
		prometheus.MustRegister(CircuitBreakerFailures)
	})
}

func RegisterLedgerMetrics() {
	ledgerOnce.Do(func() {
		prometheus.MustRegister(LedgerCacheRequestsTotal)
		prometheus.MustRegister(FallbackUsageTotal)
		prometheus.MustRegister(DatabaseQueriesTotal)
		prometheus.MustRegister(DatabaseQueryDuration)
	})
}

func RegisterAPIMetrics() {
	apiOnce.Do(func() {
		prometheus.MustRegister(RateLimitRequestsTotal)
		prometheus.MustRegister(HTTPRequestsTotal)
		prometheus.MustRegister(ReportCacheRequestsTotal)
	})
}

func IncConsumerEvent(status string) {
	ConsumerEventsTotal.WithLabelValues(status).Inc()
}

func ObserveBatch(duration time.Duration, status string) {
	ConsumerBatchesTotal.WithLabelValues(status).Inc()
	ConsumerBatchDuration.WithLabelValues(status).Observe(float64(duration.Milliseconds()))
}

func ObserveAggregatorRun(duration time.Duration, status string) {
	AggregatorRunsTotal.WithLabelValues(status).Inc()
	AggregatorRunDuration.WithLabelValues(status).Observe(float64(duration.Milliseconds()))
}

func ObserveDatabaseQuery(service, database, operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	DatabaseQueriesTotal.WithLabelValues(service, database, operation, status).Inc()
	DatabaseQueryDuration.WithLabelValues(service, database, operation).Observe(float64(duration.Milliseconds()))
}

func IncKafkaMessagesRead(service, topic string) {
	KafkaMessagesReadTotal.WithLabelValues(service, topic).Inc()
}

func IncKafkaMessagesWritten(service, topic string) {
	KafkaMessagesWrittenTotal.WithLabelValues(service, topic).Inc()
}

func ObserveKafkaMessageSize(service, topic, direction string, sizeBytes int) {
	KafkaMessageSizeBytes.WithLabelValues(service, topic, direction).Observe(float64(sizeBytes))
}

func SetKafkaConsumerLag(service, topic string, partition int, lag int64) {
	KafkaConsumerLag.WithLabelValues(service, topic, fmt.Sprintf("%d", partition)).Set(float64(lag))
}

func ObserveKafkaReadDuration(service, topic string, duration time.Duration) {
	KafkaReadDuration.WithLabelValues(service, topic).Observe(float64(duration.Milliseconds()))
}

func ObserveKafkaWriteDuration(service, topic string, duration time.Duration) {
	KafkaWriteDuration.WithLabelValues(service, topic).Observe(float64(duration.Milliseconds()))
}
