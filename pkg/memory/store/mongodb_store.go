package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Protocol-Lattice/stroke-agent/pkg/models"
)

// MongoStore keeps one document per session, keyed by session id.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

const mongoCloseTimeout = 5 * time.Second

type historyDocument struct {
	SessionID string           `bson:"_id"`
	Messages  []models.Message `bson:"messages"`
	UpdatedAt time.Time        `bson:"updated_at"`
}

func NewMongoStore(ctx context.Context, uri, database, collection string) (*MongoStore, error) {
	if uri == "" {
		return nil, errors.New("mongo uri is required")
	}
	if database == "" {
		return nil, errors.New("mongo database name is required")
	}
	if collection == "" {
		return nil, errors.New("mongo collection name is required")
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return &MongoStore{
		client:     client,
		collection: client.Database(database).Collection(collection),
	}, nil
}

func (ms *MongoStore) Load(ctx context.Context, sessionID string) ([]models.Message, error) {
	if ms == nil || ms.collection == nil {
		return nil, nil
	}
	var doc historyDocument
	err := ms.collection.FindOne(ctx, bson.M{"_id": sessionID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load history %s: %w", sessionID, err)
	}
	return doc.Messages, nil
}

func (ms *MongoStore) Save(ctx context.Context, sessionID string, history []models.Message) error {
	if ms == nil || ms.collection == nil {
		return nil
	}
	doc := newHistoryDocument(sessionID, history, time.Now().UTC())
	_, err := ms.collection.ReplaceOne(ctx, bson.M{"_id": sessionID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save history %s: %w", sessionID, err)
	}
	return nil
}

func (ms *MongoStore) Delete(ctx context.Context, sessionID string) error {
	if ms == nil || ms.collection == nil {
		return nil
	}
	if _, err := ms.collection.DeleteOne(ctx, bson.M{"_id": sessionID}); err != nil {
		return fmt.Errorf("delete history %s: %w", sessionID, err)
	}
	return nil
}

// Close releases the underlying MongoDB client.
func (ms *MongoStore) Close() error {
	if ms == nil || ms.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), mongoCloseTimeout)
	defer cancel()
	return ms.client.Disconnect(ctx)
}

func newHistoryDocument(sessionID string, history []models.Message, now time.Time) historyDocument {
	if history == nil {
		history = []models.Message{}
	}
	return historyDocument{SessionID: sessionID, Messages: history, UpdatedAt: now}
}

var _ HistoryStore = (*MongoStore)(nil)
