package bootstrap

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loyalty/internal/config"
	"loyalty/internal/constants"
	"loyalty/internal/logger"
	"loyalty/pkg/health"
)

func TestNewLedgerStore_RequiresConnection(t *testing.T) {
	tests := []struct {
		name    string
		backend string
		wantErr string
	}{
		{name: "postgres", backend: constants.LedgerBackendPostgres, wantErr: `ledger backend "postgres" requires a postgres connection`},
		{name: "default", backend: "", wantErr: `ledger backend "postgres" requires a postgres connection`},
		{name: "mongodb", backend: constants.LedgerBackendMongoDB, wantErr: `ledger backend "mongodb" requires a mongodb connection`},
		{name: "unknown", backend: "dynamodb", wantErr: "unknown ledger backend: dynamodb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{Ledger: config.LedgerConfig{Backend: tt.backend}}
			_, err := NewLedgerStore(cfg, &Databases{}, logger.NopLogger())
			assert.EqualError(t, err, tt.wantErr)
		})
	}
}

func TestNewReportStore_File(t *testing.T) {
	cfg := &config.Config{Aggregation: config.AggregationConfig{
		ReportSink: constants.ReportSinkFile,
		ReportDir:  t.TempDir(),
	}}

	store, err := NewReportStore(cfg, nil)
	require.NoError(t, err)
	assert.NotNil(t, store)
}

func TestNewHealthRegistry_NoConnections(t *testing.T) {
	registry := NewHealthRegistry(&config.Config{}, &Databases{}, nil)
	h := registry.Check(context.Background())
	assert.Equal(t, health.StatusHealthy, h.Status)
	assert.Empty(t, h.Checks)
}

func TestNewHealthRegistry_UnreachableBroker(t *testing.T) {
	registry := NewHealthRegistry(&config.Config{}, nil, []string{"127.0.0.1:1"})
	h := registry.Check(context.Background())
	assert.Equal(t, health.StatusUnhealthy, h.Status)
	assert.Contains(t, h.Checks, "kafka")
}

func TestDatabases_MongoDatabaseNil(t *testing.T) {
	var dbs *Databases
	assert.Nil(t, dbs.MongoDatabase())
	assert.Nil(t, (&Databases{}).MongoDatabase())
}

func TestConnect_NothingConfigured(t *testing.T) {
	dc := NewDatabaseConnector(&config.Config{}, logger.NopLogger())
	dbs, err := dc.Connect(context.Background())
	require.NoError(t, err)
	assert.Nil(t, dbs.Postgres)
	assert.Nil(t, dbs.Mongo)
	assert.Nil(t, dbs.Redis)
	assert.Empty(t, dc.ShutdownDatabases(context.Background(), dbs))
}

func TestInitBroker_InvalidConfig(t *testing.T) {
	b := NewBase(&config.Config{Broker: config.BrokerConfig{Type: "kafka"}}, logger.NopLogger())
	assert.Error(t, b.InitBroker(constants.ServiceRewardConsumer))
	assert.Nil(t, b.Consumer)
}

func TestSetup_MissingConfig(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	_, _, err := Setup("", constants.ServiceRewardAPI)
	assert.EqualError(t, err, "config file is required")

	_, _, err = Setup("/nonexistent/config.yaml", constants.ServiceRewardAPI)
	assert.Error(t, err)
}

func TestLocation(t *testing.T) {
	loc, err := Location(&config.Config{})
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)

	loc, err = Location(&config.Config{Aggregation: config.AggregationConfig{Timezone: "Asia/Tokyo"}})
	require.NoError(t, err)
	assert.Equal(t, "Asia/Tokyo", loc.String())

	_, err = Location(&config.Config{Aggregation: config.AggregationConfig{Timezone: "Mars/Olympus"}})
	assert.Error(t, err)
}
