package migrations

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"loyalty/internal/constants"
)

// EnsureMongoIndexes creates the ledger and report indexes. Collections are
// created implicitly on first insert.
func EnsureMongoIndexes(ctx context.Context, db *mongo.Database) error {
	ledgerIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "date", Value: 1}},
			Options: options.Index().SetName("idx_rewards_status_date"),
		},
		{
			Keys: bson.D{{Key: "transaction_id", Value: 1}},
			Options: options.Index().
				SetName("uq_rewards_issued_transaction").
				SetUnique(true).
				SetPartialFilterExpression(bson.D{
					{Key: "status", Value: "ISSUED"},
					{Key: "transaction_id", Value: bson.D{{Key: "$gt", Value: ""}}},
				}),
		},
		{
			Keys:    bson.D{{Key: "transaction_id", Value: 1}, {Key: "status", Value: 1}},
			Options: options.Index().SetName("idx_rewards_transaction_status"),
		},
	}

	if err := createIndexes(ctx, db.Collection(constants.LedgerCollection), ledgerIndexes); err != nil {
		return err
	}

	reportIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "updated_at", Value: -1}},
			Options: options.Index().SetName("idx_daily_rewards_updated_at"),
		},
	}

	return createIndexes(ctx, db.Collection(constants.ReportCollection), reportIndexes)
}

func createIndexes(ctx context.Context, coll *mongo.Collection, indexes []mongo.IndexModel) error {
	_, err := coll.Indexes().CreateMany(ctx, indexes)
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return fmt.Errorf("failed to create indexes on %s: %w", coll.Name(), err)
	}
	return nil
}
