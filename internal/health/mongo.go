package health

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DefaultBatchSize is the number of documents per InsertMany call.
const DefaultBatchSize = 1000

// MongoStore appends health records to one MongoDB collection.
type MongoStore struct {
	client    *mongo.Client
	coll      *mongo.Collection
	batchSize int
}

// NewMongoStore connects to uri and targets database.collection.
func NewMongoStore(ctx context.Context, uri, database, collection string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	return &MongoStore{
		client:    client,
		coll:      client.Database(database).Collection(collection),
		batchSize: DefaultBatchSize,
	}, nil
}

// Insert writes docs in unordered batches.
func (s *MongoStore) Insert(ctx context.Context, docs []map[string]interface{}) error {
	for _, batch := range batches(docs, s.batchSize) {
		if _, err := s.coll.InsertMany(ctx, batch, options.InsertMany().SetOrdered(false)); err != nil {
			return err
		}
	}
	return nil
}

// Close disconnects from MongoDB.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func batches(docs []map[string]interface{}, size int) [][]interface{} {
	if size <= 0 {
		size = DefaultBatchSize
	}
	var out [][]interface{}
	for i := 0; i < len(docs); i += size {
		end := i + size
		if end > len(docs) {
			end = len(docs)
		}
		batch := make([]interface{}, 0, end-i)
		for _, d := range docs[i:end] {
			batch = append(batch, d)
		}
		out = append(out, batch)
	}
	return out
}
