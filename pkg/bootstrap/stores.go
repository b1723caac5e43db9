package bootstrap

import (
	"fmt"

	"loyalty/internal/config"
	"loyalty/internal/constants"
	"loyalty/internal/ledger"
	"loyalty/internal/logger"
	"loyalty/internal/reports"
	"loyalty/pkg/health"
)

// NewLedgerStore builds the configured ledger backend, guarded by a circuit
// breaker and fronted by the Redis cache when those are enabled.
func NewLedgerStore(cfg *config.Config, dbs *Databases, log logger.Logger) (ledger.Store, error) {
	var store ledger.Store

	switch cfg.Ledger.Backend {
	case constants.LedgerBackendPostgres, "":
		if dbs == nil || dbs.Postgres == nil {
			return nil, fmt.Errorf("ledger backend %q requires a postgres connection", constants.LedgerBackendPostgres)
		}
		store = ledger.NewPostgresStore(dbs.Postgres)
	case constants.LedgerBackendMongoDB:
		if dbs == nil || dbs.Mongo == nil {
			return nil, fmt.Errorf("ledger backend %q requires a mongodb connection", constants.LedgerBackendMongoDB)
		}
		store = ledger.NewMongoStore(dbs.MongoDatabase())
	default:
		return nil, fmt.Errorf("unknown ledger backend: %s", cfg.Ledger.Backend)
	}

	store = ledger.NewCircuitBreakerStore(store, "ledger-"+backendName(cfg.Ledger.Backend), cfg.CircuitBreaker)

	if cfg.Ledger.Cache.Enabled {
		if dbs.Redis == nil {
			return nil, fmt.Errorf("ledger cache requires a redis connection")
		}
		store = ledger.NewCachedStore(store, dbs.Redis, cfg.Ledger.Cache, log)
	}

	return store, nil
}

func backendName(backend string) string {
	if backend == "" {
		return constants.LedgerBackendPostgres
	}
	return backend
}

func NewReportStore(cfg *config.Config, dbs *Databases) (reports.Store, error) {
	if dbs == nil {
		dbs = &Databases{}
	}
	return reports.NewStore(cfg.Aggregation, dbs.Postgres, dbs.MongoDatabase())
}

// NewHealthRegistry registers a checker per open connection. Redis is only
// optional when cache failures fall through to the store.
func NewHealthRegistry(cfg *config.Config, dbs *Databases, brokers []string) *health.CheckerRegistry {
	registry := health.NewCheckerRegistry()

	if dbs != nil {
		if dbs.Postgres != nil {
			registry.Register(health.NewPostgreSQLChecker(dbs.Postgres))
		}
		if dbs.Mongo != nil {
			registry.Register(health.NewMongoDBChecker(dbs.Mongo))
		}
		if dbs.Redis != nil {
			if cfg.Ledger.Cache.OnError == constants.FallbackError {
				registry.Register(health.NewRedisChecker(dbs.Redis))
			} else {
				registry.RegisterOptional(health.NewRedisChecker(dbs.Redis))
			}
		}
	}

	if len(brokers) > 0 {
		registry.Register(health.NewKafkaChecker(brokers))
	}

	return registry
}
