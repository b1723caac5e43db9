package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080, ReadTimeoutSeconds: time.Second, WriteTimeoutSeconds: time.Second},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{Host: "localhost", Port: 5432, User: "loyalty", DBName: "loyalty", SSLMode: "disable"},
		},
		Ledger:      LedgerConfig{Backend: "postgres"},
		Rewards:     RewardsConfig{Policy: "floor"},
		Aggregation: AggregationConfig{Schedule: "15 0 * * *", Timezone: "UTC", ReportSink: "postgres"},
	}
}

func TestValidateStatic_Valid(t *testing.T) {
	require.NoError(t, ValidateStatic(validConfig()))
}

func TestValidateStatic_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{
			name:   "bad port",
			mutate: func(c *Config) { c.Server.Port = 0 },
			field:  "server.port",
		},
		{
			name:   "unknown ledger backend",
			mutate: func(c *Config) { c.Ledger.Backend = "dynamodb" },
			field:  "ledger.backend",
		},
		{
			name:   "mongodb backend without uri",
			mutate: func(c *Config) { c.Ledger.Backend = "mongodb" },
			field:  "database.mongodb.uri",
		},
		{
			name:   "cache without redis",
			mutate: func(c *Config) { c.Ledger.Cache = CacheConfig{Enabled: true, TTL: time.Hour} },
			field:  "database.redis.host",
		},
		{
			name:   "expression policy without expression",
			mutate: func(c *Config) { c.Rewards.Policy = "expression" },
			field:  "rewards.expression",
		},
		{
			name: "expression that does not compile",
			mutate: func(c *Config) {
				c.Rewards = RewardsConfig{Policy: "expression", Expression: `amount > 1.0`}
			},
			field: "rewards.expression",
		},
		{
			name:   "bad cron schedule",
			mutate: func(c *Config) { c.Aggregation.Schedule = "every night" },
			field:  "aggregation.schedule",
		},
		{
			name:   "unknown timezone",
			mutate: func(c *Config) { c.Aggregation.Timezone = "Mars/Olympus" },
			field:  "aggregation.timezone",
		},
		{
			name:   "file sink without dir",
			mutate: func(c *Config) { c.Aggregation.ReportSink = "file" },
			field:  "aggregation.report_dir",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := ValidateStatic(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestValidateBroker(t *testing.T) {
	cfg := BrokerConfig{
		Type: "kafka",
		Kafka: KafkaConfig{
			Brokers:   []string{"localhost:9092"},
			GroupID:   "reward-consumer",
			BatchSize: 10,
			BatchWait: time.Second,
			Retry:     RetryConfig{Multiplier: 2},
		},
	}
	require.NoError(t, ValidateBroker(cfg))

	cfg.Kafka.GroupID = ""
	err := ValidateBroker(cfg)
	require.Error(t, err)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "broker.kafka.group_id", vErr.Field)

	assert.Error(t, ValidateBroker(BrokerConfig{Type: "rabbitmq"}))
}
