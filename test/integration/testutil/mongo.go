package testutil

import (
	"context"
	"testing"
	"time"

	"exambook/internal/bookings/repository"
	"exambook/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	DefaultMongoURI     = "mongodb://localhost:27017"
	DefaultDatabaseName = "exambook"
	ConnectionTimeout   = 10 * time.Second
)

// MongoHelper provides MongoDB test utilities
type MongoHelper struct {
	Client   *mongo.Client
	Database *mongo.Database
	DBName   string
}

func NewMongoHelper(t *testing.T, mongoURI, dbName string) *MongoHelper {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), ConnectionTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI))
	if err != nil {
		t.Fatalf("failed to connect to MongoDB: %v", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		t.Fatalf("failed to ping MongoDB: %v", err)
	}

	return &MongoHelper{
		Client:   client,
		Database: client.Database(dbName),
		DBName:   dbName,
	}
}

func (m *MongoHelper) Close(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := m.Client.Disconnect(ctx); err != nil {
		t.Logf("warning: failed to disconnect from MongoDB: %v", err)
	}
}

// SeedSession inserts the session and removes it, its bookings and its
// associations when the test ends.
func (m *MongoHelper) SeedSession(t *testing.T, session *model.Session) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := m.Database.Collection(repository.SessionsCollection).InsertOne(ctx, session); err != nil {
		t.Fatalf("failed to seed session %s: %v", session.ID, err)
	}

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		m.deleteMany(ctx, t, repository.SessionsCollection, bson.M{"_id": session.ID})
		m.deleteMany(ctx, t, repository.BookingsCollection, bson.M{"session_id": session.ID})
		m.deleteMany(ctx, t, repository.AssociationsCollection, bson.M{"to_id": session.ID})
	})
}

func (m *MongoHelper) CountDocuments(t *testing.T, collectionName string, filter bson.M) int64 {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	count, err := m.Database.Collection(collectionName).CountDocuments(ctx, filter)
	if err != nil {
		t.Fatalf("failed to count documents in %s: %v", collectionName, err)
	}
	return count
}

func (m *MongoHelper) deleteMany(ctx context.Context, t *testing.T, collectionName string, filter bson.M) {
	if _, err := m.Database.Collection(collectionName).DeleteMany(ctx, filter); err != nil {
		t.Logf("warning: failed to clean %s: %v", collectionName, err)
	}
}
