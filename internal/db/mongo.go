package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/wuwenbin0122/agent-platform/internal/models"
	"github.com/wuwenbin0122/agent-platform/internal/utils"
)

// Mongo stores chat messages when MONGO_URI is configured.
type Mongo struct {
	Client   *mongo.Client
	Database *mongo.Database
	Messages *mongo.Collection
}

type messageDocument struct {
	ID             string         `bson:"_id"`
	ConversationID string         `bson:"conversation_id"`
	Role           string         `bson:"role"`
	Content        string         `bson:"content"`
	Metadata       map[string]any `bson:"metadata,omitempty"`
	CreatedAt      time.Time      `bson:"created_at"`
}

func NewMongo(ctx context.Context, cfg utils.MongoConfig) (*Mongo, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("mongo: uri is required")
	}

	clientOpts := options.Client().ApplyURI(cfg.URI)
	if cfg.ConnectTimeout > 0 {
		clientOpts.SetServerSelectionTimeout(cfg.ConnectTimeout)
	}

	ctx, cancel := context.WithTimeout(ctx, timeoutOrDefault(cfg.ConnectTimeout))
	defer cancel()

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("mongo: connect: %w", err)
	}

	db := client.Database(cfg.Database)
	return &Mongo{
		Client:   client,
		Database: db,
		Messages: db.Collection("messages"),
	}, nil
}

func (m *Mongo) Close(ctx context.Context) error {
	if m == nil || m.Client == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return m.Client.Disconnect(ctx)
}

func (m *Mongo) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return m.Client.Ping(ctx, readpref.Primary())
}

func (m *Mongo) EnsureCollections(ctx context.Context) error {
	if m == nil || m.Database == nil {
		return fmt.Errorf("mongo: database not initialised")
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := m.Messages.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("mongo: ensure message index: %w", err)
	}

	return nil
}

func (m *Mongo) AppendMessages(ctx context.Context, messages ...models.Message) error {
	if len(messages) == 0 {
		return nil
	}

	docs := make([]interface{}, 0, len(messages))
	for _, msg := range messages {
		docs = append(docs, messageDocument{
			ID:             msg.ID,
			ConversationID: msg.ConversationID,
			Role:           msg.Role,
			Content:        msg.Content,
			Metadata:       msg.Metadata,
			CreatedAt:      msg.CreatedAt,
		})
	}

	if _, err := m.Messages.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("mongo insert messages: %w", err)
	}
	return nil
}

// ListMessages returns the newest limit messages in chronological order.
func (m *Mongo) ListMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := m.Messages.Find(ctx, bson.M{"conversation_id": conversationID}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo query messages: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []messageDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongo decode messages: %w", err)
	}

	result := make([]models.Message, len(docs))
	for i, doc := range docs {
		result[len(docs)-1-i] = models.Message{
			ID:             doc.ID,
			ConversationID: doc.ConversationID,
			Role:           doc.Role,
			Content:        doc.Content,
			Metadata:       doc.Metadata,
			CreatedAt:      doc.CreatedAt.UTC(),
		}
	}
	return result, nil
}

func (m *Mongo) DeleteMessages(ctx context.Context, conversationID string) error {
	if _, err := m.Messages.DeleteMany(ctx, bson.M{"conversation_id": conversationID}); err != nil {
		return fmt.Errorf("mongo delete messages: %w", err)
	}
	return nil
}
