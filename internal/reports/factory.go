package reports

import (
	"context"
	"database/sql"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"

	"loyalty/internal/config"
	"loyalty/internal/constants"
)

// Store writes and reads reports keyed by date.
type Store interface {
	Write(ctx context.Context, date string, body []byte) error
	Read(ctx context.Context, date string) ([]byte, error)
}

func NewStore(cfg config.AggregationConfig, db *sql.DB, mongoDB *mongo.Database) (Store, error) {
	switch cfg.ReportSink {
	case constants.ReportSinkPostgres:
		if db == nil {
			return nil, fmt.Errorf("report sink postgres requires a PostgreSQL connection")
		}
		return NewPostgresSink(db), nil
	case constants.ReportSinkMongoDB:
		if mongoDB == nil {
			return nil, fmt.Errorf("report sink mongodb requires a MongoDB connection")
		}
		return NewMongoSink(mongoDB), nil
	case constants.ReportSinkFile:
		return NewFileSink(cfg.ReportDir), nil
	default:
		return nil, fmt.Errorf("unsupported report sink: %s", cfg.ReportSink)
	}
}
