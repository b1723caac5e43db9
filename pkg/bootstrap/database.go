package bootstrap

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"loyalty/internal/config"
	"loyalty/internal/constants"
	"loyalty/internal/logger"
	"loyalty/pkg/migrations"
)

type DatabaseConnector struct {
	Config *config.Config
	Logger logger.Logger
}

func NewDatabaseConnector(cfg *config.Config, log logger.Logger) *DatabaseConnector {
	return &DatabaseConnector{
		Config: cfg,
		Logger: log,
	}
}

// Databases holds whichever connections the configuration asked for. Any of
// the fields may be nil.
type Databases struct {
	Postgres  *sql.DB
	Mongo     *mongo.Client
	Redis     *redis.Client
	mongoName string
}

// MongoDatabase returns the configured database handle, or nil when MongoDB
// is not connected.
func (d *Databases) MongoDatabase() *mongo.Database {
	if d == nil || d.Mongo == nil {
		return nil
	}
	return d.Mongo.Database(d.mongoName)
}

// Connect opens every configured backend. Redis is only dialled when the
// ledger cache is enabled. Connections opened before a failure are closed.
func (dc *DatabaseConnector) Connect(ctx context.Context) (*Databases, error) {
	dbs := &Databases{mongoName: dc.Config.Database.MongoDB.Database}
	if dbs.mongoName == "" {
		dbs.mongoName = constants.DefaultMongoDBName
	}

	var err error
	if dbs.Postgres, err = dc.InitPostgreSQL(ctx); err != nil {
		return nil, err
	}

	if dbs.Mongo, err = dc.InitMongoDB(ctx); err != nil {
		dc.ShutdownDatabases(ctx, dbs)
		return nil, err
	}

	if dc.Config.Ledger.Cache.Enabled {
		if dbs.Redis, err = dc.InitRedis(ctx); err != nil {
			dc.ShutdownDatabases(ctx, dbs)
			return nil, err
		}
	}

	return dbs, nil
}

func (dc *DatabaseConnector) InitRedis(ctx context.Context) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", dc.Config.Database.Redis.Host, dc.Config.Database.Redis.Port),
		Password: dc.Config.Database.Redis.Password,
		DB:       dc.Config.Database.Redis.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		if dc.Config.Ledger.Cache.OnError == constants.FallbackError {
			rdb.Close()
			return nil, fmt.Errorf("failed to ping Redis: %w", err)
		}
		// The cache tolerates an absent Redis and will fall through to the
		// store on every call until it comes back.
		dc.Logger.Warnw("Redis unreachable at startup, ledger cache will fall through", "error", err)
		return rdb, nil
	}

	dc.Logger.Info("Redis connected successfully")
	return rdb, nil
}

func (dc *DatabaseConnector) InitPostgreSQL(ctx context.Context) (*sql.DB, error) {
	if dc.Config.Database.Postgres.Host == "" {
		return nil, nil
	}

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		dc.Config.Database.Postgres.User,
		dc.Config.Database.Postgres.Password,
		dc.Config.Database.Postgres.Host,
		dc.Config.Database.Postgres.Port,
		dc.Config.Database.Postgres.DBName,
		dc.Config.Database.Postgres.SSLMode,
	)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if dc.Config.Database.RunMigrations {
		if err := migrations.RunPostgres(db); err != nil {
			db.Close()
			return nil, err
		}
		dc.Logger.Info("PostgreSQL migrations applied")
	}

	dc.Logger.Info("PostgreSQL connected successfully")
	return db, nil
}

func (dc *DatabaseConnector) InitMongoDB(ctx context.Context) (*mongo.Client, error) {
	if dc.Config.Database.MongoDB.URI == "" {
		return nil, nil
	}

	mongoOpts := options.Client().ApplyURI(dc.Config.Database.MongoDB.URI)
	mongoClient, err := mongo.Connect(ctx, mongoOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := mongoClient.Ping(ctx, nil); err != nil {
		mongoClient.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	if dc.Config.Database.RunMigrations {
		name := dc.Config.Database.MongoDB.Database
		if name == "" {
			name = constants.DefaultMongoDBName
		}
		if err := migrations.EnsureMongoIndexes(ctx, mongoClient.Database(name)); err != nil {
			mongoClient.Disconnect(ctx)
			return nil, err
		}
		dc.Logger.Info("MongoDB indexes ensured")
	}

	dc.Logger.Info("MongoDB connected successfully")
	return mongoClient, nil
}

func (dc *DatabaseConnector) ShutdownDatabases(ctx context.Context, dbs *Databases) []error {
	var errs []error
	if dbs == nil {
		return errs
	}

	if dbs.Redis != nil {
		if err := dbs.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close error: %w", err))
		}
	}

	if dbs.Postgres != nil {
		if err := dbs.Postgres.Close(); err != nil {
			errs = append(errs, fmt.Errorf("postgres close error: %w", err))
		}
	}

	if dbs.Mongo != nil {
		if err := dbs.Mongo.Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("mongodb disconnect error: %w", err))
		}
	}

	return errs
}
