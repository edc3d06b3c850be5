package config

const (
	EnvMongoURI          = "MONGO_URI"
	EnvMongoDatabaseName = "MONGO_DATABASE_NAME"
	EnvMongoConnTimeout  = "MONGO_CONN_TIMEOUT"

	EnvRedisURL         = "REDIS_URL"
	EnvRedisDialTimeout = "REDIS_DIAL_TIMEOUT"

	EnvPort     = "PORT"
	EnvLogLevel = "LOG_LEVEL"

	EnvRateLimitRequests = "RATE_LIMIT_REQUESTS"
	EnvRateLimitWindow   = "RATE_LIMIT_WINDOW"

	EnvRequestTimeout = "REQUEST_TIMEOUT"
	EnvMaxRequestSize = "MAX_REQUEST_SIZE"

	EnvReadTimeout     = "READ_TIMEOUT"
	EnvWriteTimeout    = "WRITE_TIMEOUT"
	EnvIdleTimeout     = "IDLE_TIMEOUT"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"

	EnvLockTTL              = "LOCK_TTL"
	EnvUserLockRetries      = "USER_LOCK_RETRIES"
	EnvUserLockBaseDelay    = "USER_LOCK_BASE_DELAY"
	EnvSessionLockRetries   = "SESSION_LOCK_RETRIES"
	EnvSessionLockBaseDelay = "SESSION_LOCK_BASE_DELAY"

	EnvIdempotencyBucket = "IDEMPOTENCY_BUCKET"
	EnvCounterTTL        = "COUNTER_TTL"
	EnvDuplicateTTL      = "DUPLICATE_TTL"

	EnvReconcileInterval   = "RECONCILE_INTERVAL"
	EnvCompletionBatchSize = "COMPLETION_BATCH_SIZE"

	EnvResponseCacheTTL        = "RESPONSE_CACHE_TTL"
	EnvResponseCacheMaxEntries = "RESPONSE_CACHE_MAX_ENTRIES"

	EnvTasksBackend  = "TASKS_BACKEND"
	EnvTasksTopic    = "TASKS_TOPIC"
	EnvTasksDLQTopic = "TASKS_DLQ_TOPIC"
	EnvTasksGroupID  = "TASKS_GROUP_ID"
	EnvWebhookURL    = "WEBHOOK_URL"
)
