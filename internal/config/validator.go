package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"loyalty/internal/constants"
	"loyalty/pkg/cel"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// ValidateStatic checks the sections every binary depends on. Broker settings
// are only required by the consumer, see ValidateBroker.
func ValidateStatic(cfg *Config) error {
	var errors []error

	if err := validateServer(cfg.Server); err != nil {
		errors = append(errors, err)
	}

	if err := validateDatabase(cfg.Database); err != nil {
		errors = append(errors, err)
	}

	if err := validateLedger(cfg.Ledger, cfg.Database); err != nil {
		errors = append(errors, err)
	}

	if err := validateRewards(cfg.Rewards); err != nil {
		errors = append(errors, err)
	}

	if err := validateAggregation(cfg.Aggregation, cfg.Database); err != nil {
		errors = append(errors, err)
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errors)
	}

	return nil
}

func validateServer(cfg ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.ReadTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.read_timeout_seconds",
			Message: "read timeout must be positive",
		}
	}

	if cfg.WriteTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.write_timeout_seconds",
			Message: "write timeout must be positive",
		}
	}

	return nil
}

func ValidateBroker(cfg BrokerConfig) error {
	if cfg.Type == "" {
		return &ValidationError{
			Field:   "broker.type",
			Message: "broker type is required",
		}
	}

	if cfg.Type != "kafka" {
		return &ValidationError{
			Field:   "broker.type",
			Message: fmt.Sprintf("unknown broker type: %s (supported: kafka)", cfg.Type),
		}
	}

	return validateKafka(cfg.Kafka)
}

func validateKafka(cfg KafkaConfig) error {
	if len(cfg.Brokers) == 0 {
		return &ValidationError{
			Field:   "broker.kafka.brokers",
			Message: "at least one Kafka broker is required",
		}
	}

	for i, broker := range cfg.Brokers {
		if broker == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("broker.kafka.brokers[%d]", i),
				Message: "broker address cannot be empty",
			}
		}
	}

	if cfg.GroupID == "" {
		return &ValidationError{
			Field:   "broker.kafka.group_id",
			Message: "Kafka consumer group ID is required",
		}
	}

	if cfg.BatchSize < 1 {
		return &ValidationError{
			Field:   "broker.kafka.batch_size",
			Message: "batch_size must be at least 1",
		}
	}

	if cfg.BatchWait <= 0 {
		return &ValidationError{
			Field:   "broker.kafka.batch_wait",
			Message: "batch_wait must be positive",
		}
	}

	if cfg.Retry.MaxAttempts < 0 {
		return &ValidationError{
			Field:   "broker.kafka.retry.max_attempts",
			Message: "max_attempts must be non-negative",
		}
	}

	if cfg.Retry.MaxInterval > 0 && cfg.Retry.InitialInterval > 0 && cfg.Retry.MaxInterval < cfg.Retry.InitialInterval {
		return &ValidationError{
			Field:   "broker.kafka.retry.max_interval",
			Message: "max_interval must be greater than or equal to initial_interval",
		}
	}

	if cfg.Retry.Multiplier <= 0 {
		return &ValidationError{
			Field:   "broker.kafka.retry.multiplier",
			Message: "multiplier must be positive",
		}
	}

	return nil
}

func validateDatabase(cfg DatabaseConfig) error {
	if cfg.Postgres.Host != "" || cfg.Postgres.Port > 0 {
		if err := validatePostgres(cfg.Postgres); err != nil {
			return err
		}
	}

	if cfg.Redis.Host != "" || cfg.Redis.Port > 0 {
		if err := validateRedis(cfg.Redis); err != nil {
			return err
		}
	}

	if cfg.MongoDB.URI != "" {
		if err := validateMongoDB(cfg.MongoDB); err != nil {
			return err
		}
	}

	return nil
}

func validatePostgres(cfg PostgresConfig) error {
	if cfg.Host == "" {
		return &ValidationError{
			Field:   "database.postgres.host",
			Message: "PostgreSQL host is required",
		}
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "database.postgres.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.User == "" {
		return &ValidationError{
			Field:   "database.postgres.user",
			Message: "PostgreSQL user is required",
		}
	}

	if cfg.DBName == "" {
		return &ValidationError{
			Field:   "database.postgres.dbname",
			Message: "PostgreSQL database name is required",
		}
	}

	validSSLModes := map[string]bool{
		"disable": true, "allow": true, "prefer": true,
		"require": true, "verify-ca": true, "verify-full": true,
	}
	if cfg.SSLMode != "" && !validSSLModes[strings.ToLower(cfg.SSLMode)] {
		return &ValidationError{
			Field:   "database.postgres.sslmode",
			Message: fmt.Sprintf("invalid SSL mode: %s (valid: disable, allow, prefer, require, verify-ca, verify-full)", cfg.SSLMode),
		}
	}

	return nil
}

func validateRedis(cfg RedisConfig) error {
	if cfg.Host == "" {
		return &ValidationError{
			Field:   "database.redis.host",
			Message: "Redis host is required",
		}
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "database.redis.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	return nil
}

func validateMongoDB(cfg MongoDBConfig) error {
	if !strings.HasPrefix(cfg.URI, "mongodb://") && !strings.HasPrefix(cfg.URI, "mongodb+srv://") {
		return &ValidationError{
			Field:   "database.mongodb.uri",
			Message: "MongoDB URI must start with mongodb:// or mongodb+srv://",
		}
	}

	if cfg.Database == "" {
		return &ValidationError{
			Field:   "database.mongodb.database",
			Message: "MongoDB database name is required",
		}
	}

	return nil
}

func validateLedger(cfg LedgerConfig, db DatabaseConfig) error {
	switch cfg.Backend {
	case constants.LedgerBackendPostgres:
		if db.Postgres.Host == "" {
			return &ValidationError{
				Field:   "database.postgres.host",
				Message: "postgres ledger backend requires database.postgres",
			}
		}
	case constants.LedgerBackendMongoDB:
		if db.MongoDB.URI == "" {
			return &ValidationError{
				Field:   "database.mongodb.uri",
				Message: "mongodb ledger backend requires database.mongodb",
			}
		}
	default:
		return &ValidationError{
			Field:   "ledger.backend",
			Message: fmt.Sprintf("invalid ledger backend: %s (valid: postgres, mongodb)", cfg.Backend),
		}
	}

	if cfg.Cache.Enabled {
		if db.Redis.Host == "" {
			return &ValidationError{
				Field:   "database.redis.host",
				Message: "ledger cache requires database.redis",
			}
		}
		if cfg.Cache.TTL <= 0 {
			return &ValidationError{
				Field:   "ledger.cache.ttl",
				Message: "cache TTL must be positive",
			}
		}
		onError := strings.ToLower(cfg.Cache.OnError)
		if onError != "" && onError != constants.FallbackAllow && onError != constants.FallbackError {
			return &ValidationError{
				Field:   "ledger.cache.on_error",
				Message: fmt.Sprintf("invalid on_error value: %s (valid: allow, error)", cfg.Cache.OnError),
			}
		}
	}

	return nil
}

func validateRewards(cfg RewardsConfig) error {
	switch cfg.Policy {
	case "", constants.PolicyFloor:
		return nil
	case constants.PolicyExpression:
		if strings.TrimSpace(cfg.Expression) == "" {
			return &ValidationError{
				Field:   "rewards.expression",
				Message: "expression policy requires an expression",
			}
		}
		eval, err := cel.NewEvaluator()
		if err != nil {
			return err
		}
		if err := eval.ValidateExpression(cfg.Expression); err != nil {
			return &ValidationError{
				Field:   "rewards.expression",
				Message: err.Error(),
			}
		}
		return nil
	default:
		return &ValidationError{
			Field:   "rewards.policy",
			Message: fmt.Sprintf("invalid policy: %s (valid: floor, expression)", cfg.Policy),
		}
	}
}

func validateAggregation(cfg AggregationConfig, db DatabaseConfig) error {
	if cfg.Schedule != "" {
		if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
			return &ValidationError{
				Field:   "aggregation.schedule",
				Message: fmt.Sprintf("invalid cron schedule: %v", err),
			}
		}
	}

	if cfg.Timezone != "" {
		if _, err := time.LoadLocation(cfg.Timezone); err != nil {
			return &ValidationError{
				Field:   "aggregation.timezone",
				Message: fmt.Sprintf("unknown timezone: %s", cfg.Timezone),
			}
		}
	}

	switch cfg.ReportSink {
	case constants.ReportSinkPostgres:
		if db.Postgres.Host == "" {
			return &ValidationError{
				Field:   "aggregation.report_sink",
				Message: "postgres report sink requires database.postgres",
			}
		}
	case constants.ReportSinkMongoDB:
		if db.MongoDB.URI == "" {
			return &ValidationError{
				Field:   "aggregation.report_sink",
				Message: "mongodb report sink requires database.mongodb",
			}
		}
	case constants.ReportSinkFile:
		if cfg.ReportDir == "" {
			return &ValidationError{
				Field:   "aggregation.report_dir",
				Message: "file report sink requires report_dir",
			}
		}
	default:
		return &ValidationError{
			Field:   "aggregation.report_sink",
			Message: fmt.Sprintf("invalid report sink: %s (valid: postgres, mongodb, file)", cfg.ReportSink),
		}
	}

	return nil
}
