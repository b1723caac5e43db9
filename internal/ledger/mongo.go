package ledger

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

// MongoStore relies on the partial unique index created by
// migrations.EnsureMongoIndexes for its conditional write.
type MongoStore struct {
	coll *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{coll: db.Collection(constants.LedgerCollection)}
}

func (s *MongoStore) Put(ctx context.Context, entry *Entry) (bool, error) {
	if err := entry.Validate(); err != nil {
		return false, apperrors.ErrValidation.WithCause(err)
	}

	start := time.Now()
	_, err := s.coll.InsertOne(ctx, entry)
	if mongo.IsDuplicateKeyError(err) {
		metrics.ObserveDatabaseQuery(constants.LedgerServiceLabel, "mongodb", "put", time.Since(start), nil)
		return false, nil
	}
	metrics.ObserveDatabaseQuery(constants.LedgerServiceLabel, "mongodb", "put", time.Since(start), err)
	if err != nil {
		return false, apperrors.StoreUnavailable("ledger.put", err)
	}

	return true, nil
}

func (s *MongoStore) Query(ctx context.Context, status Status, date string) ([]Entry, error) {
	filter := bson.D{{Key: "status", Value: status}, {Key: "date", Value: date}}
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}, {Key: "_id", Value: 1}})

	start := time.Now()
	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		metrics.ObserveDatabaseQuery(constants.LedgerServiceLabel, "mongodb", "query", time.Since(start), err)
		return nil, apperrors.StoreUnavailable("ledger.query", err)
	}
	defer cursor.Close(ctx)

	entries := make([]Entry, 0)
	err = cursor.All(ctx, &entries)
	metrics.ObserveDatabaseQuery(constants.LedgerServiceLabel, "mongodb", "query", time.Since(start), err)
	if err != nil {
		return nil, apperrors.StoreUnavailable("ledger.query", err)
	}

	for i := range entries {
		entries[i].Timestamp = entries[i].Timestamp.UTC()
	}
	return entries, nil
}

func (s *MongoStore) GetByTransactionID(ctx context.Context, id string) (*Entry, error) {
	// "ISSUED" sorts before "REDEEMED".
	opts := options.FindOne().SetSort(bson.D{{Key: "status", Value: 1}, {Key: "timestamp", Value: -1}})

	start := time.Now()
	var entry Entry
	err := s.coll.FindOne(ctx, bson.D{{Key: "transaction_id", Value: id}}, opts).Decode(&entry)
	if errors.Is(err, mongo.ErrNoDocuments) {
		metrics.ObserveDatabaseQuery(constants.LedgerServiceLabel, "mongodb", "get", time.Since(start), nil)
		return nil, apperrors.ErrNotFound.WithDetail("transaction_id", id)
	}
	metrics.ObserveDatabaseQuery(constants.LedgerServiceLabel, "mongodb", "get", time.Since(start), err)
	if err != nil {
		return nil, apperrors.StoreUnavailable("ledger.get", err)
	}

	entry.Timestamp = entry.Timestamp.UTC()
	return &entry, nil
}
