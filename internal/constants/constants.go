package constants

import "time"

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)

const (
	DefaultBatchSize = 10
	DefaultBatchWait = 2 * time.Second
)

const (
	DefaultInputTopic = "transactions"
	DefaultDLQTopic   = "transactions_dlq"
)

const (
	CacheKeyPrefixTransaction = "reward:txn:"
	DefaultCacheTTL           = 24 * time.Hour
)

const (
	DefaultMongoDBName       = "loyalty"
	LedgerCollection         = "rewards"
	ReportCollection         = "daily_rewards"
	ReportKeyPrefix          = "daily-rewards"
	DefaultAggregateSchedule = "15 0 * * *"
	DefaultAggregateTimeout  = 10 * time.Minute
)

const (
	ShutdownTimeout = 5 * time.Second
	HealthTimeout   = 5 * time.Second
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

const (
	LedgerBackendPostgres = "postgres"
	LedgerBackendMongoDB  = "mongodb"
)

const (
	ReportSinkPostgres = "postgres"
	ReportSinkMongoDB  = "mongodb"
	ReportSinkFile     = "file"
)

const (
	PolicyFloor      = "floor"
	PolicyExpression = "expression"
)

const (
	FallbackAllow = "allow"
	FallbackError = "error"
)

const (
	ServiceRewardConsumer   = "reward-consumer"
	ServiceRewardAggregator = "reward-aggregator"
	ServiceRewardAPI        = "reward-api"
)

// Metric label values for storage components.
const (
	LedgerServiceLabel = "ledger"
	ReportServiceLabel = "reports"
)
