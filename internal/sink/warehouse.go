package sink

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
)

// MongoWarehouseSink appends rows to a warehouse collection. Rows are never
// updated or deleted.
type MongoWarehouseSink struct {
	collection *mongo.Collection
}

func NewMongoWarehouseSink(client *mongo.Client, database, collection string) *MongoWarehouseSink {
	return &MongoWarehouseSink{
		collection: client.Database(database).Collection(collection),
	}
}

func (s *MongoWarehouseSink) Insert(ctx context.Context, row Row) error {
	if _, err := s.collection.InsertOne(ctx, row); err != nil {
		return fmt.Errorf("failed to insert warehouse row: %w", err)
	}
	return nil
}
