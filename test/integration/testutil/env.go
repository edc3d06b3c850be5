package testutil

import (
	"os"
	"testing"
	"time"

	"exambook/pkg/client"
)

const (
	EnvServerURL = "TEST_SERVER_URL"

	DefaultHealthCheckTimeout = 30 * time.Second
)

type TestEnv struct {
	MongoURI     string
	DatabaseName string
	ServerURL    string
}

// NewTestEnv skips the calling test unless a running bookings service is
// configured through TEST_SERVER_URL.
func NewTestEnv(t *testing.T) *TestEnv {
	t.Helper()

	serverURL := os.Getenv(EnvServerURL)
	if serverURL == "" {
		t.Skipf("%s not set, skipping integration tests", EnvServerURL)
	}

	return &TestEnv{
		MongoURI:     getEnv("TEST_MONGO_URI", DefaultMongoURI),
		DatabaseName: getEnv("TEST_DB_NAME", DefaultDatabaseName),
		ServerURL:    serverURL,
	}
}

func (e *TestEnv) Setup(t *testing.T) (*MongoHelper, *client.BookingClient) {
	t.Helper()

	mongo := NewMongoHelper(t, e.MongoURI, e.DatabaseName)

	bookings := client.NewBookingClient(e.ServerURL)
	if err := bookings.WaitForHealthy(DefaultHealthCheckTimeout); err != nil {
		t.Fatalf("bookings service not ready: %v", err)
	}

	return mongo, bookings
}

func (e *TestEnv) Cleanup(t *testing.T, mongo *MongoHelper) {
	t.Helper()

	if mongo != nil {
		mongo.Close(t)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
