package delivery

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Repository interface {
	Create(ctx context.Context, log *Log) error
	GetByID(ctx context.Context, id string) (*Log, error)
	Update(ctx context.Context, log *Log) error
	FindActiveByDedupKey(ctx context.Context, dedupKey string) (*Log, error)
	List(ctx context.Context, filter ListFilter, cursor string, limit int) (*HistoryPage, error)
	ListByFarmer(ctx context.Context, farmerID, cursor string, limit int) (*HistoryPage, error)
	CountByStatus(ctx context.Context) (map[Status]int64, error)
}

type MongoRepository struct {
	collection *mongo.Collection
}

func NewRepository(db *mongo.Database) Repository {
	return &MongoRepository{
		collection: db.Collection("delivery_logs"),
	}
}

func (r *MongoRepository) Create(ctx context.Context, log *Log) error {
	_, err := r.collection.InsertOne(ctx, log)
	if err != nil {
		return fmt.Errorf("failed to create delivery log: %w", err)
	}
	return nil
}

func (r *MongoRepository) GetByID(ctx context.Context, id string) (*Log, error) {
	var log Log
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&log)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get delivery log: %w", err)
	}
	return &log, nil
}

func (r *MongoRepository) Update(ctx context.Context, log *Log) error {
	filter := bson.M{"_id": log.ID}
	update := bson.M{"$set": log}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to update delivery log: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("delivery log not found: %s", log.ID)
	}
	return nil
}

// FindActiveByDedupKey returns the newest non-deduped log for the key,
// or nil when the key is unseen.
func (r *MongoRepository) FindActiveByDedupKey(ctx context.Context, dedupKey string) (*Log, error) {
	filter := bson.M{
		"dedup_key": dedupKey,
		"status":    bson.M{"$ne": StatusDeduped},
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})

	var log Log
	err := r.collection.FindOne(ctx, filter, opts).Decode(&log)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find delivery log by dedup key: %w", err)
	}
	return &log, nil
}

func (r *MongoRepository) ListByFarmer(ctx context.Context, farmerID, cursor string, limit int) (*HistoryPage, error) {
	return r.List(ctx, ListFilter{FarmerID: farmerID}, cursor, limit)
}

// List pages newest first. The cursor is the created_at of the last
// log on the previous page, RFC3339Nano encoded.
func (r *MongoRepository) List(ctx context.Context, lf ListFilter, cursor string, limit int) (*HistoryPage, error) {
	filter := bson.M{}
	if lf.FarmerID != "" {
		filter["farmer_id"] = lf.FarmerID
	}
	if lf.Status != "" {
		filter["status"] = lf.Status
	}
	if lf.District != "" {
		filter["district"] = lf.District
	}
	if lf.Signal != "" {
		filter["signal"] = lf.Signal
	}
	if cursor != "" {
		before, err := time.Parse(time.RFC3339Nano, cursor)
		if err != nil {
			return nil, fmt.Errorf("invalid cursor: %w", err)
		}
		filter["created_at"] = bson.M{"$lt": before}
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit + 1))

	mongoCursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list delivery logs: %w", err)
	}
	defer mongoCursor.Close(ctx)

	var logs []Log
	if err := mongoCursor.All(ctx, &logs); err != nil {
		return nil, fmt.Errorf("failed to decode delivery logs: %w", err)
	}

	page := &HistoryPage{}
	if len(logs) > limit {
		logs = logs[:limit]
		page.NextCursor = logs[len(logs)-1].CreatedAt.Format(time.RFC3339Nano)
	}
	page.Logs = logs
	return page, nil
}

func (r *MongoRepository) CountByStatus(ctx context.Context) (map[Status]int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.M{
			"_id":   "$status",
			"count": bson.M{"$sum": 1},
		}}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to count delivery logs: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Status Status `bson:"_id"`
		Count  int64  `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode delivery log counts: %w", err)
	}

	counts := make(map[Status]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}
