package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"loyalty/internal/constants"
)

func LoadConfig(configFile string) (*Config, error) {
	viper.Reset()

	viper.SetConfigType("yaml")
	viper.SetConfigFile(configFile)

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(&cfg)

	if err := ValidateStatic(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout_seconds", "10s")
	viper.SetDefault("server.write_timeout_seconds", "10s")

	viper.SetDefault("broker.type", "kafka")
	viper.SetDefault("broker.kafka.input_topic", constants.DefaultInputTopic)
	viper.SetDefault("broker.kafka.batch_size", constants.DefaultBatchSize)
	viper.SetDefault("broker.kafka.batch_wait", constants.DefaultBatchWait)
	viper.SetDefault("broker.kafka.retry.max_attempts", 3)
	viper.SetDefault("broker.kafka.retry.initial_interval", "1s")
	viper.SetDefault("broker.kafka.retry.max_interval", "30s")
	viper.SetDefault("broker.kafka.retry.multiplier", 2.0)

	viper.SetDefault("logging.level", "info")

	viper.SetDefault("ledger.backend", constants.LedgerBackendPostgres)
	viper.SetDefault("ledger.cache.ttl", constants.DefaultCacheTTL)
	viper.SetDefault("ledger.cache.on_error", constants.FallbackAllow)

	viper.SetDefault("rewards.policy", constants.PolicyFloor)

	viper.SetDefault("aggregation.schedule", constants.DefaultAggregateSchedule)
	viper.SetDefault("aggregation.timezone", "UTC")
	viper.SetDefault("aggregation.timeout", constants.DefaultAggregateTimeout)
	viper.SetDefault("aggregation.report_sink", constants.ReportSinkPostgres)

	viper.SetDefault("api.report_cache_size", 128)
	viper.SetDefault("api.report_cache_ttl", "5m")
}

func bindEnvVariables() {
	viper.BindEnv("broker.kafka.brokers", "BROKER_KAFKA_BROKERS")
	viper.BindEnv("broker.kafka.group_id", "BROKER_KAFKA_GROUP_ID")
	viper.BindEnv("broker.kafka.input_topic", "BROKER_KAFKA_INPUT_TOPIC")
	viper.BindEnv("broker.kafka.dlq_topic", "BROKER_KAFKA_DLQ_TOPIC")

	viper.BindEnv("database.postgres.host", "DATABASE_POSTGRES_HOST")
	viper.BindEnv("database.postgres.port", "DATABASE_POSTGRES_PORT")
	viper.BindEnv("database.postgres.user", "DATABASE_POSTGRES_USER")
	viper.BindEnv("database.postgres.password", "DATABASE_POSTGRES_PASSWORD")
	viper.BindEnv("database.postgres.dbname", "DATABASE_POSTGRES_DBNAME")
	viper.BindEnv("database.postgres.sslmode", "DATABASE_POSTGRES_SSLMODE")

	viper.BindEnv("database.redis.host", "DATABASE_REDIS_HOST")
	viper.BindEnv("database.redis.port", "DATABASE_REDIS_PORT")
	viper.BindEnv("database.redis.password", "DATABASE_REDIS_PASSWORD")
	viper.BindEnv("database.redis.db", "DATABASE_REDIS_DB")

	viper.BindEnv("database.mongodb.uri", "DATABASE_MONGODB_URI")
	viper.BindEnv("database.mongodb.database", "DATABASE_MONGODB_DATABASE")

	viper.BindEnv("server.port", "SERVER_PORT")

	viper.BindEnv("logging.level", "LOGGING_LEVEL")

	viper.BindEnv("aggregation.report_dir", "AGGREGATION_REPORT_DIR")
	viper.BindEnv("aggregation.pushgateway_url", "AGGREGATION_PUSHGATEWAY_URL")

	viper.BindEnv("tracing.otlp.endpoint", "TRACING_OTLP_ENDPOINT")
	viper.BindEnv("tracing.otlp.insecure", "TRACING_OTLP_INSECURE")
	viper.BindEnv("tracing.enabled", "TRACING_ENABLED")
	viper.BindEnv("tracing.service_name", "TRACING_SERVICE_NAME")
}

func applyEnvOverrides(cfg *Config) {
	if brokersEnv := viper.GetString("BROKER_KAFKA_BROKERS"); brokersEnv != "" {
		brokers := strings.Split(brokersEnv, ",")
		for i := range brokers {
			brokers[i] = strings.TrimSpace(brokers[i])
		}
		if len(brokers) > 0 && brokers[0] != "" {
			cfg.Broker.Kafka.Brokers = brokers
		}
	}

	if otlpEndpoint := viper.GetString("TRACING_OTLP_ENDPOINT"); otlpEndpoint != "" {
		cfg.Tracing.OTLP.Endpoint = otlpEndpoint
	}
}
