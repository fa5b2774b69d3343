package migrations

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureDeliveryLogCollection creates the delivery_logs indexes. Safe
// to call on every startup.
func EnsureDeliveryLogCollection(ctx context.Context, db *mongo.Database) error {
	collection := db.Collection("delivery_logs")

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "farmer_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_delivery_logs_farmer_created"),
		},
		{
			Keys:    bson.D{{Key: "dedup_key", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_delivery_logs_dedup_key"),
		},
		{
			Keys:    bson.D{{Key: "status", Value: 1}},
			Options: options.Index().SetName("idx_delivery_logs_status"),
		},
	}

	if _, err := collection.Indexes().CreateMany(ctx, indexes); err != nil {
		if !strings.Contains(err.Error(), "already exists") {
			return fmt.Errorf("failed to create delivery_logs indexes: %w", err)
		}
	}

	return nil
}
