// Package store provides storage backends for the Prim backend.
//
// This file implements the MongoDB-backed store, the reference backend for
// production deployments. Users live in the "users" collection with a unique
// index on the normalized phone; messages live in "messages" indexed by user
// and timestamp.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prim-health/prim-backend/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Mongo store configuration constants
const (
	// DefaultMongoDatabase is used when no database name is configured.
	DefaultMongoDatabase = "prim"
	// DefaultMongoConnectTimeout bounds the initial connection attempt.
	DefaultMongoConnectTimeout = 10 * time.Second
)

// MongoStore persists users and messages in MongoDB.
type MongoStore struct {
	client   *mongo.Client
	users    *mongo.Collection
	messages *mongo.Collection
}

// NewMongoStore creates a new MongoDB store based on provided options.
func NewMongoStore(ctx context.Context, opts ...Option) (*MongoStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("MongoStore.NewMongoStore: creating Mongo store", "DSN_set", cfg.DSN != "", "database", cfg.Database)
	if cfg.DSN == "" {
		slog.Error("MongoStore DSN not set")
		return nil, fmt.Errorf("mongodb DSN not set")
	}
	dbName := cfg.Database
	if dbName == "" {
		dbName = DefaultMongoDatabase
	}

	connectCtx, cancel := context.WithTimeout(ctx, DefaultMongoConnectTimeout)
	defer cancel()
	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.DSN))
	if err != nil {
		slog.Error("MongoStore connect failed", "error", err)
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		slog.Error("MongoStore ping failed", "error", err)
		return nil, fmt.Errorf("mongodb ping failed: %w", err)
	}
	slog.Debug("MongoStore connected", "database", dbName)

	db := client.Database(dbName)
	return &MongoStore{
		client:   client,
		users:    db.Collection("users"),
		messages: db.Collection("messages"),
	}, nil
}

// EnsureIndexes creates the unique phone index and message lookup indexes.
// The unique phone index is what turns the find-or-create race into a clean
// models.ErrConflict for the losing writer.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "phone", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "email", Value: 1}}},
	})
	if err != nil {
		slog.Error("MongoStore.EnsureIndexes: user indexes failed", "error", err)
		return fmt.Errorf("failed to create user indexes: %w", err)
	}
	_, err = s.messages.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}}},
		{Keys: bson.D{{Key: "timestamp", Value: 1}}},
	})
	if err != nil {
		slog.Error("MongoStore.EnsureIndexes: message indexes failed", "error", err)
		return fmt.Errorf("failed to create message indexes: %w", err)
	}
	slog.Debug("MongoStore.EnsureIndexes: indexes ensured")
	return nil
}

func (s *MongoStore) CreateUser(ctx context.Context, u *models.User) error {
	if u.ID == "" {
		u.ID = primitive.NewObjectID().Hex()
	}
	_, err := s.users.InsertOne(ctx, u)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			slog.Debug("MongoStore.CreateUser: duplicate phone", "phone", u.Phone)
			return models.ErrConflict
		}
		slog.Error("MongoStore.CreateUser failed", "error", err, "phone", u.Phone)
		return fmt.Errorf("failed to insert user: %w", err)
	}
	slog.Debug("MongoStore.CreateUser succeeded", "id", u.ID)
	return nil
}

func (s *MongoStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return s.findUser(ctx, bson.M{"_id": id})
}

func (s *MongoStore) GetUserByPhone(ctx context.Context, phone string) (*models.User, error) {
	return s.findUser(ctx, bson.M{"phone": phone})
}

func (s *MongoStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findUser(ctx, bson.M{"email": email})
}

func (s *MongoStore) findUser(ctx context.Context, filter bson.M) (*models.User, error) {
	var u models.User
	err := s.users.FindOne(ctx, filter).Decode(&u)
	if err == mongo.ErrNoDocuments {
		return nil, models.ErrNotFound
	}
	if err != nil {
		slog.Error("MongoStore.findUser failed", "error", err)
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &u, nil
}

func (s *MongoStore) ListUsers(ctx context.Context) ([]models.User, error) {
	cursor, err := s.users.Find(ctx, bson.M{})
	if err != nil {
		slog.Error("MongoStore.ListUsers query failed", "error", err)
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	var users []models.User
	if err := cursor.All(ctx, &users); err != nil {
		slog.Error("MongoStore.ListUsers decode failed", "error", err)
		return nil, fmt.Errorf("failed to decode users: %w", err)
	}
	return users, nil
}

func (s *MongoStore) UpdateUser(ctx context.Context, id string, update models.UserUpdate) (bool, error) {
	if update.IsEmpty() {
		return false, nil
	}
	res, err := s.users.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": update})
	if err != nil {
		slog.Error("MongoStore.UpdateUser failed", "error", err, "id", id)
		return false, fmt.Errorf("failed to update user %s: %w", id, err)
	}
	slog.Debug("MongoStore.UpdateUser", "id", id, "matched", res.MatchedCount)
	return res.MatchedCount > 0, nil
}

func (s *MongoStore) AddMessage(ctx context.Context, m *models.Message) error {
	if m.ID == "" {
		m.ID = primitive.NewObjectID().Hex()
	}
	_, err := s.messages.InsertOne(ctx, m)
	if err != nil {
		slog.Error("MongoStore.AddMessage failed", "error", err, "user_id", m.UserID)
		return fmt.Errorf("failed to insert message for user %s: %w", m.UserID, err)
	}
	slog.Debug("MongoStore.AddMessage succeeded", "user_id", m.UserID, "channel", m.Channel)
	return nil
}

func (s *MongoStore) GetMessages(ctx context.Context, userID string, limit int) ([]models.Message, error) {
	findOpts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	if limit > 0 {
		findOpts = findOpts.SetLimit(int64(limit))
	}
	cursor, err := s.messages.Find(ctx, bson.M{"user_id": userID}, findOpts)
	if err != nil {
		slog.Error("MongoStore.GetMessages query failed", "error", err, "user_id", userID)
		return nil, fmt.Errorf("failed to query messages for user %s: %w", userID, err)
	}
	var msgs []models.Message
	if err := cursor.All(ctx, &msgs); err != nil {
		slog.Error("MongoStore.GetMessages decode failed", "error", err)
		return nil, fmt.Errorf("failed to decode messages: %w", err)
	}
	slog.Debug("MongoStore.GetMessages succeeded", "user_id", userID, "count", len(msgs))
	return msgs, nil
}

// Close disconnects from MongoDB.
func (s *MongoStore) Close() error {
	slog.Debug("Closing MongoDB connection")
	ctx, cancel := context.WithTimeout(context.Background(), DefaultMongoConnectTimeout)
	defer cancel()
	if err := s.client.Disconnect(ctx); err != nil {
		slog.Error("Failed to close MongoDB connection", "error", err)
		return err
	}
	slog.Debug("MongoDB connection closed successfully")
	return nil
}
