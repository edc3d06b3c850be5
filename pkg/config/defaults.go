package config

import "time"

const (
	DefaultMongoURI          = "mongodb://localhost:27017"
	DefaultMongoDatabaseName = "exambook"
	DefaultMongoConnTimeout  = 10 * time.Second

	DefaultRedisURL         = "redis://localhost:6379/0"
	DefaultRedisDialTimeout = 5 * time.Second

	DefaultPort     = "8080"
	DefaultLogLevel = "info"

	DefaultRateLimitRequests = 20
	DefaultRateLimitWindow   = 1 * time.Minute

	DefaultRequestTimeout = 30 * time.Second
	DefaultMaxRequestSize = 1 * 1024 * 1024 // 1MB

	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	DefaultLockTTL              = 10 * time.Second
	DefaultUserLockRetries      = 3
	DefaultUserLockBaseDelay    = 100 * time.Millisecond
	DefaultSessionLockRetries   = 5
	DefaultSessionLockBaseDelay = 100 * time.Millisecond

	DefaultIdempotencyBucket = 5 * time.Minute
	DefaultCounterTTL        = 30 * 24 * time.Hour
	DefaultDuplicateTTL      = 24 * time.Hour

	DefaultReconcileInterval   = 5 * time.Minute
	DefaultCompletionBatchSize = 200

	DefaultResponseCacheTTL        = 30 * time.Second
	DefaultResponseCacheMaxEntries = 10000

	TasksBackendKafka  = "kafka"
	TasksBackendMemory = "memory"

	DefaultTasksBackend  = TasksBackendKafka
	DefaultTasksTopic    = "exambook.tasks"
	DefaultTasksDLQTopic = "exambook.tasks.dlq"
	DefaultTasksGroupID  = "exambook-notifier"

	// Worst-case lock wait must stay inside one request.
	MaxLockWaitBudget = 5 * time.Second
)
