package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"exambook/pkg/client"
	"exambook/pkg/logger"
)

type Config struct {
	MongoURI          string
	MongoDatabaseName string
	MongoConnTimeout  time.Duration

	RedisURL         string
	RedisDialTimeout time.Duration

	Port string

	RateLimitRequests int
	RateLimitWindow   time.Duration

	RequestTimeout time.Duration
	MaxRequestSize int

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	LockTTL              time.Duration
	UserLockRetries      int
	UserLockBaseDelay    time.Duration
	SessionLockRetries   int
	SessionLockBaseDelay time.Duration

	IdempotencyBucket time.Duration
	CounterTTL        time.Duration
	DuplicateTTL      time.Duration

	ReconcileInterval   time.Duration
	CompletionBatchSize int

	ResponseCacheTTL        time.Duration
	ResponseCacheMaxEntries int

	TasksBackend  string
	TasksTopic    string
	TasksDLQTopic string
	TasksGroupID  string
	WebhookURL    string

	Log    *logger.Logger
	Client *client.Client
}

// Defaults returns a configuration with every setting at its default, a
// discarding logger and no connected clients.
func Defaults() *Config {
	return &Config{
		MongoURI:          DefaultMongoURI,
		MongoDatabaseName: DefaultMongoDatabaseName,
		MongoConnTimeout:  DefaultMongoConnTimeout,

		RedisURL:         DefaultRedisURL,
		RedisDialTimeout: DefaultRedisDialTimeout,

		Port: DefaultPort,

		RateLimitRequests: DefaultRateLimitRequests,
		RateLimitWindow:   DefaultRateLimitWindow,

		RequestTimeout: DefaultRequestTimeout,
		MaxRequestSize: DefaultMaxRequestSize,

		ReadTimeout:     DefaultReadTimeout,
		WriteTimeout:    DefaultWriteTimeout,
		IdleTimeout:     DefaultIdleTimeout,
		ShutdownTimeout: DefaultShutdownTimeout,

		LockTTL:              DefaultLockTTL,
		UserLockRetries:      DefaultUserLockRetries,
		UserLockBaseDelay:    DefaultUserLockBaseDelay,
		SessionLockRetries:   DefaultSessionLockRetries,
		SessionLockBaseDelay: DefaultSessionLockBaseDelay,

		IdempotencyBucket: DefaultIdempotencyBucket,
		CounterTTL:        DefaultCounterTTL,
		DuplicateTTL:      DefaultDuplicateTTL,

		ReconcileInterval:   DefaultReconcileInterval,
		CompletionBatchSize: DefaultCompletionBatchSize,

		ResponseCacheTTL:        DefaultResponseCacheTTL,
		ResponseCacheMaxEntries: DefaultResponseCacheMaxEntries,

		TasksBackend:  DefaultTasksBackend,
		TasksTopic:    DefaultTasksTopic,
		TasksDLQTopic: DefaultTasksDLQTopic,
		TasksGroupID:  DefaultTasksGroupID,

		Log:    logger.Discard(),
		Client: client.NewClient(),
	}
}

func Load(serviceName string) *Config {
	cfg := &Config{
		MongoURI:          getEnvStr(EnvMongoURI, DefaultMongoURI),
		MongoDatabaseName: getEnvStr(EnvMongoDatabaseName, DefaultMongoDatabaseName),
		MongoConnTimeout:  getEnvDuration(EnvMongoConnTimeout, DefaultMongoConnTimeout),

		RedisURL:         getEnvStr(EnvRedisURL, DefaultRedisURL),
		RedisDialTimeout: getEnvDuration(EnvRedisDialTimeout, DefaultRedisDialTimeout),

		Port: getEnvStr(EnvPort, DefaultPort),

		RateLimitRequests: getEnvNum(EnvRateLimitRequests, DefaultRateLimitRequests),
		RateLimitWindow:   getEnvDuration(EnvRateLimitWindow, DefaultRateLimitWindow),

		RequestTimeout: getEnvDuration(EnvRequestTimeout, DefaultRequestTimeout),
		MaxRequestSize: getEnvNum(EnvMaxRequestSize, DefaultMaxRequestSize),

		ReadTimeout:     getEnvDuration(EnvReadTimeout, DefaultReadTimeout),
		WriteTimeout:    getEnvDuration(EnvWriteTimeout, DefaultWriteTimeout),
		IdleTimeout:     getEnvDuration(EnvIdleTimeout, DefaultIdleTimeout),
		ShutdownTimeout: getEnvDuration(EnvShutdownTimeout, DefaultShutdownTimeout),

		LockTTL:              getEnvDuration(EnvLockTTL, DefaultLockTTL),
		UserLockRetries:      getEnvNum(EnvUserLockRetries, DefaultUserLockRetries),
		UserLockBaseDelay:    getEnvDuration(EnvUserLockBaseDelay, DefaultUserLockBaseDelay),
		SessionLockRetries:   getEnvNum(EnvSessionLockRetries, DefaultSessionLockRetries),
		SessionLockBaseDelay: getEnvDuration(EnvSessionLockBaseDelay, DefaultSessionLockBaseDelay),

		IdempotencyBucket: getEnvDuration(EnvIdempotencyBucket, DefaultIdempotencyBucket),
		CounterTTL:        getEnvDuration(EnvCounterTTL, DefaultCounterTTL),
		DuplicateTTL:      getEnvDuration(EnvDuplicateTTL, DefaultDuplicateTTL),

		ReconcileInterval:   getEnvDuration(EnvReconcileInterval, DefaultReconcileInterval),
		CompletionBatchSize: getEnvNum(EnvCompletionBatchSize, DefaultCompletionBatchSize),

		ResponseCacheTTL:        getEnvDuration(EnvResponseCacheTTL, DefaultResponseCacheTTL),
		ResponseCacheMaxEntries: getEnvNum(EnvResponseCacheMaxEntries, DefaultResponseCacheMaxEntries),

		TasksBackend:  getEnvStr(EnvTasksBackend, DefaultTasksBackend),
		TasksTopic:    getEnvStr(EnvTasksTopic, DefaultTasksTopic),
		TasksDLQTopic: getEnvStr(EnvTasksDLQTopic, DefaultTasksDLQTopic),
		TasksGroupID:  getEnvStr(EnvTasksGroupID, DefaultTasksGroupID),
		WebhookURL:    getEnvStr(EnvWebhookURL, ""),

		Log: logger.New(logger.Config{
			Level:     getEnvStr(EnvLogLevel, DefaultLogLevel),
			Format:    logger.JSON,
			AddSource: true,
			Service:   serviceName,
		}),
		Client: client.NewClient(),
	}

	err := cfg.Validate()
	if err != nil {
		cfg.Log.Fatal(err.Error())
	}
	cfg.LogConfiguration()
	return cfg
}

func (cfg *Config) SetMongo() {
	cfg.Client.SetMongo(cfg.Log, cfg.MongoURI, cfg.MongoConnTimeout)
}

func (cfg *Config) SetRedis() {
	cfg.Client.SetRedis(cfg.Log, cfg.RedisURL, cfg.RedisDialTimeout)
}

// lockWaitBudget is the longest AcquireWithRetry can sleep, jitter excluded.
func lockWaitBudget(retries int, base time.Duration) time.Duration {
	if retries <= 1 {
		return 0
	}
	return base * time.Duration((1<<(retries-1))-1)
}

func (cfg *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("Port must be between 1 and 65535, got: %s", cfg.Port))
	}

	if cfg.MongoURI == "" {
		errors = append(errors, "MongoURI cannot be empty")
	} else if len(cfg.MongoURI) < 10 || !regexp.MustCompile(`^mongodb(\+srv)?://`).MatchString(cfg.MongoURI) {
		errors = append(errors, fmt.Sprintf("MongoURI must start with 'mongodb://' or 'mongodb+srv://', got: %s", redactMongoURI(cfg.MongoURI)))
	}
	if cfg.MongoDatabaseName == "" {
		errors = append(errors, "MongoDatabaseName cannot be empty")
	}
	if cfg.MongoConnTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("MongoConnTimeout must be positive, got: %s", cfg.MongoConnTimeout))
	}

	if !regexp.MustCompile(`^rediss?://`).MatchString(cfg.RedisURL) {
		errors = append(errors, fmt.Sprintf("RedisURL must start with 'redis://' or 'rediss://', got: %s", redactRedisURL(cfg.RedisURL)))
	}
	if cfg.RedisDialTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("RedisDialTimeout must be positive, got: %s", cfg.RedisDialTimeout))
	}

	if cfg.RateLimitWindow <= 0 {
		errors = append(errors, fmt.Sprintf("RateLimitWindow must be positive, got: %s", cfg.RateLimitWindow))
	}
	if cfg.RateLimitRequests <= 0 {
		errors = append(errors, fmt.Sprintf("RateLimitRequests must be positive, got: %d", cfg.RateLimitRequests))
	}
	if cfg.RequestTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("RequestTimeout must be positive, got: %s", cfg.RequestTimeout))
	}
	if cfg.MaxRequestSize <= 0 {
		errors = append(errors, fmt.Sprintf("MaxRequestSize must be positive, got: %d", cfg.MaxRequestSize))
	}
	if cfg.ReadTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("ReadTimeout must be positive, got: %s", cfg.ReadTimeout))
	}
	if cfg.WriteTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("WriteTimeout must be positive, got: %s", cfg.WriteTimeout))
	}
	if cfg.IdleTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("IdleTimeout must be positive, got: %s", cfg.IdleTimeout))
	}
	if cfg.ShutdownTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("ShutdownTimeout must be positive, got: %s", cfg.ShutdownTimeout))
	}

	if cfg.LockTTL <= 0 {
		errors = append(errors, fmt.Sprintf("LockTTL must be positive, got: %s", cfg.LockTTL))
	}
	if cfg.UserLockRetries <= 0 {
		errors = append(errors, fmt.Sprintf("UserLockRetries must be positive, got: %d", cfg.UserLockRetries))
	}
	if cfg.SessionLockRetries <= 0 {
		errors = append(errors, fmt.Sprintf("SessionLockRetries must be positive, got: %d", cfg.SessionLockRetries))
	}
	if cfg.UserLockBaseDelay <= 0 || cfg.SessionLockBaseDelay <= 0 {
		errors = append(errors, fmt.Sprintf("Lock base delays must be positive, got: user=%s session=%s", cfg.UserLockBaseDelay, cfg.SessionLockBaseDelay))
	}
	if budget := lockWaitBudget(cfg.UserLockRetries, cfg.UserLockBaseDelay) + lockWaitBudget(cfg.SessionLockRetries, cfg.SessionLockBaseDelay); budget > MaxLockWaitBudget {
		errors = append(errors, fmt.Sprintf("Combined lock retry budget %s exceeds %s", budget, MaxLockWaitBudget))
	}
	if cfg.LockTTL <= lockWaitBudget(cfg.SessionLockRetries, cfg.SessionLockBaseDelay) {
		errors = append(errors, fmt.Sprintf("LockTTL (%s) must exceed the session lock retry budget", cfg.LockTTL))
	}

	if cfg.IdempotencyBucket < time.Second {
		errors = append(errors, fmt.Sprintf("IdempotencyBucket must be at least 1s, got: %s", cfg.IdempotencyBucket))
	}
	if cfg.CounterTTL <= 0 {
		errors = append(errors, fmt.Sprintf("CounterTTL must be positive, got: %s", cfg.CounterTTL))
	}
	if cfg.DuplicateTTL <= 0 {
		errors = append(errors, fmt.Sprintf("DuplicateTTL must be positive, got: %s", cfg.DuplicateTTL))
	}
	if cfg.ReconcileInterval <= 0 {
		errors = append(errors, fmt.Sprintf("ReconcileInterval must be positive, got: %s", cfg.ReconcileInterval))
	}
	if cfg.CompletionBatchSize <= 0 {
		errors = append(errors, fmt.Sprintf("CompletionBatchSize must be positive, got: %d", cfg.CompletionBatchSize))
	}

	if cfg.ResponseCacheTTL <= 0 {
		errors = append(errors, fmt.Sprintf("ResponseCacheTTL must be positive, got: %s", cfg.ResponseCacheTTL))
	}
	if cfg.ResponseCacheMaxEntries <= 0 {
		errors = append(errors, fmt.Sprintf("ResponseCacheMaxEntries must be positive, got: %d", cfg.ResponseCacheMaxEntries))
	}

	if cfg.TasksBackend != TasksBackendKafka && cfg.TasksBackend != TasksBackendMemory {
		errors = append(errors, fmt.Sprintf("TasksBackend must be one of [kafka, memory], got: %s", cfg.TasksBackend))
	}
	if cfg.TasksTopic == "" || cfg.TasksDLQTopic == "" {
		errors = append(errors, "TasksTopic and TasksDLQTopic cannot be empty")
	}
	if cfg.WebhookURL != "" && !regexp.MustCompile(`^https?://`).MatchString(cfg.WebhookURL) {
		errors = append(errors, fmt.Sprintf("WebhookURL must be an http(s) URL, got: %s", cfg.WebhookURL))
	}

	if len(errors) > 0 {
		errMsg := "Configuration validation failed:\n"
		for i, err := range errors {
			errMsg += fmt.Sprintf("  %d. %s\n", i+1, err)
		}
		return fmt.Errorf("%s", errMsg)
	}

	return nil
}

func (cfg *Config) LogConfiguration() {
	cfg.Log.Info("Configuration loaded successfully",
		"mongo_uri", redactMongoURI(cfg.MongoURI),
		"mongo_database", cfg.MongoDatabaseName,
		"mongo_conn_timeout", cfg.MongoConnTimeout,
		"redis_url", redactRedisURL(cfg.RedisURL),
		"redis_dial_timeout", cfg.RedisDialTimeout,
		"port", cfg.Port,
		"rate_limit_requests", cfg.RateLimitRequests,
		"rate_limit_window", cfg.RateLimitWindow,
		"request_timeout", cfg.RequestTimeout,
		"max_request_size", cfg.MaxRequestSize,
		"read_timeout", cfg.ReadTimeout,
		"write_timeout", cfg.WriteTimeout,
		"idle_timeout", cfg.IdleTimeout,
		"shutdown_timeout", cfg.ShutdownTimeout,
		"lock_ttl", cfg.LockTTL,
		"user_lock_retries", cfg.UserLockRetries,
		"user_lock_base_delay", cfg.UserLockBaseDelay,
		"session_lock_retries", cfg.SessionLockRetries,
		"session_lock_base_delay", cfg.SessionLockBaseDelay,
		"idempotency_bucket", cfg.IdempotencyBucket,
		"counter_ttl", cfg.CounterTTL,
		"duplicate_ttl", cfg.DuplicateTTL,
		"reconcile_interval", cfg.ReconcileInterval,
		"completion_batch_size", cfg.CompletionBatchSize,
		"response_cache_ttl", cfg.ResponseCacheTTL,
		"response_cache_max_entries", cfg.ResponseCacheMaxEntries,
		"tasks_backend", cfg.TasksBackend,
		"tasks_topic", cfg.TasksTopic,
		"tasks_dlq_topic", cfg.TasksDLQTopic,
		"webhook_set", cfg.WebhookURL != "",
	)
}

func redactMongoURI(uri string) string {
	credentialRegex := regexp.MustCompile(`(mongodb(\+srv)?://)[^:]+:[^@]+@`)
	return credentialRegex.ReplaceAllString(uri, "${1}***:***@")
}

func redactRedisURL(uri string) string {
	credentialRegex := regexp.MustCompile(`(rediss?://)[^@/]*@`)
	return credentialRegex.ReplaceAllString(uri, "${1}***@")
}

func getEnvStr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvNum(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func (cfg *Config) GracefulShutdown() {
	cfg.Client.GracefulShutdown(cfg.Log)
}
