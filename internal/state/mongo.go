package state

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// stateDocument stores one key as the document _id so that the default _id
// index provides both uniqueness and key order.
type stateDocument struct {
	Key   string `bson:"_id"`
	Value []byte `bson:"value"`
}

// MongoStore keeps the world state in a single MongoDB collection.
type MongoStore struct {
	coll *mongo.Collection
}

func NewMongoStore(coll *mongo.Collection) *MongoStore {
	return &MongoStore{coll: coll}
}

// ConnectMongo establishes and verifies a client connection.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	log.Debug().Str("uri", uri).Msg("Connecting to MongoDB")

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	log.Info().Msg("Connected to MongoDB")
	return client, nil
}

func (s *MongoStore) Get(ctx context.Context, key string) ([]byte, error) {
	var doc stateDocument
	err := s.coll.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("key %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %w", ErrUnavailable, key, err)
	}
	return doc.Value, nil
}

func (s *MongoStore) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.coll.ReplaceOne(ctx,
		bson.M{"_id": key},
		stateDocument{Key: key, Value: value},
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("%w: put %s: %w", ErrUnavailable, key, err)
	}
	return nil
}

func (s *MongoStore) Delete(ctx context.Context, key string) error {
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": key})
	if err != nil {
		return fmt.Errorf("%w: delete %s: %w", ErrUnavailable, key, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("key %s: %w", key, ErrNotFound)
	}
	return nil
}

// Scan reads the collection sorted by _id and releases the server cursor
// before returning, so writes made while the caller iterates are not seen.
// The read itself is not a snapshot: a write that lands while the batches are
// being fetched may or may not be included. Use SQLStore or MemoryStore where
// scans must be point-in-time.
func (s *MongoStore) Scan(ctx context.Context) (Iterator, error) {
	cur, err := s.coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("%w: scan: %w", ErrUnavailable, err)
	}

	var docs []stateDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("%w: scan: %w", ErrUnavailable, err)
	}

	entries := make([]KV, 0, len(docs))
	for _, doc := range docs {
		entries = append(entries, KV{Key: doc.Key, Value: doc.Value})
	}
	return newSliceIterator(entries), nil
}
