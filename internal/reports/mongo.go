package reports

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"loyalty/internal/constants"
	apperrors "loyalty/pkg/errors"
	"loyalty/pkg/metrics"
)

type reportDocument struct {
	Date      string    `bson:"_id"`
	Key       string    `bson:"key"`
	Report    Report    `bson:"report"`
	Body      []byte    `bson:"body"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type MongoSink struct {
	coll *mongo.Collection
}

func NewMongoSink(db *mongo.Database) *MongoSink {
	return &MongoSink{coll: db.Collection(constants.ReportCollection)}
}

func (s *MongoSink) Write(ctx context.Context, date string, body []byte) error {
	report, err := Unmarshal(body)
	if err != nil {
		return err
	}

	doc := reportDocument{
		Date:      date,
		Key:       Key(date),
		Report:    *report,
		Body:      body,
		UpdatedAt: time.Now().UTC(),
	}

	start := time.Now()
	_, err = s.coll.ReplaceOne(ctx, bson.D{{Key: "_id", Value: date}}, doc, options.Replace().SetUpsert(true))
	metrics.ObserveDatabaseQuery(constants.ReportServiceLabel, "mongodb", "write", time.Since(start), err)
	if err != nil {
		return apperrors.StoreUnavailable("reports.write", err)
	}
	return nil
}

func (s *MongoSink) Read(ctx context.Context, date string) ([]byte, error) {
	start := time.Now()
	var doc reportDocument
	err := s.coll.FindOne(ctx, bson.D{{Key: "_id", Value: date}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		metrics.ObserveDatabaseQuery(constants.ReportServiceLabel, "mongodb", "read", time.Since(start), nil)
		return nil, apperrors.ErrNotFound.WithDetail("date", date)
	}
	metrics.ObserveDatabaseQuery(constants.ReportServiceLabel, "mongodb", "read", time.Since(start), err)
	if err != nil {
		return nil, apperrors.StoreUnavailable("reports.read", err)
	}
	return doc.Body, nil
}
