package kafka_config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"exambook/pkg/logger"
)

// Config holds the broker settings for the booking task stream. Tasks are
// delivered at least once, so producer writes are always synchronous and
// acknowledged by at least the partition leader.
type Config struct {
	Brokers []string

	ProducerMaxAttempts  int
	ProducerBatchTimeout time.Duration
	ProducerRequireAcks  int    // -1 = all replicas, 1 = leader only
	ProducerCompression  string // "none", "gzip", "snappy", "lz4", "zstd"

	ConsumerStartOffset       int64 // -1 = newest, -2 = oldest
	ConsumerMinBytes          int
	ConsumerMaxBytes          int
	ConsumerMaxWait           time.Duration
	ConsumerCommitInterval    time.Duration
	ConsumerHeartbeatInterval time.Duration
	ConsumerSessionTimeout    time.Duration
	ConsumerRebalanceTimeout  time.Duration
	ConsumerMaxRetries        int
	ConsumerRetryBaseDelay    time.Duration

	EnableMiddleware bool
}

var validCompressions = []string{"none", "gzip", "snappy", "lz4", "zstd"}

// Load reads the Kafka settings from the environment and validates them.
func Load() (*Config, error) {
	var brokers []string
	for _, broker := range strings.Split(getEnv(EnvKafkaBrokers, DefaultKafkaBrokers, parseString), ",") {
		brokers = append(brokers, strings.TrimSpace(broker))
	}

	cfg := &Config{
		Brokers: brokers,

		ProducerMaxAttempts:  getEnv(EnvKafkaProducerMaxAttempts, DefaultProducerMaxAttempts, strconv.Atoi),
		ProducerBatchTimeout: getEnv(EnvKafkaProducerBatchTimeout, DefaultProducerBatchTimeout, time.ParseDuration),
		ProducerRequireAcks:  getEnv(EnvKafkaProducerRequireAcks, DefaultProducerRequireAcks, strconv.Atoi),
		ProducerCompression:  strings.ToLower(getEnv(EnvKafkaProducerCompression, DefaultProducerCompression, parseString)),

		ConsumerStartOffset:       getEnv(EnvKafkaConsumerStartOffset, int64(DefaultConsumerStartOffset), parseInt64),
		ConsumerMinBytes:          getEnv(EnvKafkaConsumerMinBytes, DefaultConsumerMinBytes, strconv.Atoi),
		ConsumerMaxBytes:          getEnv(EnvKafkaConsumerMaxBytes, DefaultConsumerMaxBytes, strconv.Atoi),
		ConsumerMaxWait:           getEnv(EnvKafkaConsumerMaxWait, DefaultConsumerMaxWait, time.ParseDuration),
		ConsumerCommitInterval:    getEnv(EnvKafkaConsumerCommitInterval, DefaultConsumerCommitInterval, time.ParseDuration),
		ConsumerHeartbeatInterval: getEnv(EnvKafkaConsumerHeartbeatInterval, DefaultConsumerHeartbeatInterval, time.ParseDuration),
		ConsumerSessionTimeout:    getEnv(EnvKafkaConsumerSessionTimeout, DefaultConsumerSessionTimeout, time.ParseDuration),
		ConsumerRebalanceTimeout:  getEnv(EnvKafkaConsumerRebalanceTimeout, DefaultConsumerRebalanceTimeout, time.ParseDuration),
		ConsumerMaxRetries:        getEnv(EnvKafkaConsumerMaxRetries, DefaultConsumerMaxRetries, strconv.Atoi),
		ConsumerRetryBaseDelay:    getEnv(EnvKafkaConsumerRetryBaseDelay, DefaultConsumerRetryBaseDelay, time.ParseDuration),

		EnableMiddleware: getEnv(EnvKafkaEnableMiddleware, DefaultEnableMiddleware, strconv.ParseBool),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("kafka configuration: %w", err)
	}

	return cfg, nil
}

func (cfg *Config) Validate() error {
	var problems []string

	if len(cfg.Brokers) == 0 {
		problems = append(problems, "At least one Kafka broker is required")
	}
	for i, broker := range cfg.Brokers {
		if broker == "" {
			problems = append(problems, fmt.Sprintf("Broker %d cannot be empty", i))
		}
	}

	if cfg.ProducerMaxAttempts <= 0 {
		problems = append(problems, fmt.Sprintf("ProducerMaxAttempts must be positive, got: %d", cfg.ProducerMaxAttempts))
	}
	if cfg.ProducerBatchTimeout <= 0 {
		problems = append(problems, fmt.Sprintf("ProducerBatchTimeout must be positive, got: %s", cfg.ProducerBatchTimeout))
	}
	// acks=0 would let a booking task vanish without the producer noticing
	if cfg.ProducerRequireAcks != -1 && cfg.ProducerRequireAcks != 1 {
		problems = append(problems, fmt.Sprintf("ProducerRequireAcks must be -1 or 1, got: %d", cfg.ProducerRequireAcks))
	}
	if !contains(validCompressions, cfg.ProducerCompression) {
		problems = append(problems, fmt.Sprintf("ProducerCompression must be one of %v, got: %s", validCompressions, cfg.ProducerCompression))
	}

	if cfg.ConsumerStartOffset < -2 {
		problems = append(problems, fmt.Sprintf("ConsumerStartOffset must be -1 (newest), -2 (oldest), or >= 0, got: %d", cfg.ConsumerStartOffset))
	}
	if cfg.ConsumerMinBytes <= 0 || cfg.ConsumerMaxBytes < cfg.ConsumerMinBytes {
		problems = append(problems, fmt.Sprintf("Consumer byte bounds must satisfy 0 < min <= max, got: min=%d max=%d", cfg.ConsumerMinBytes, cfg.ConsumerMaxBytes))
	}

	positive := []struct {
		name  string
		value time.Duration
	}{
		{"ConsumerMaxWait", cfg.ConsumerMaxWait},
		{"ConsumerHeartbeatInterval", cfg.ConsumerHeartbeatInterval},
		{"ConsumerSessionTimeout", cfg.ConsumerSessionTimeout},
		{"ConsumerRebalanceTimeout", cfg.ConsumerRebalanceTimeout},
		{"ConsumerRetryBaseDelay", cfg.ConsumerRetryBaseDelay},
	}
	for _, p := range positive {
		if p.value <= 0 {
			problems = append(problems, fmt.Sprintf("%s must be positive, got: %s", p.name, p.value))
		}
	}
	// zero commits each offset synchronously
	if cfg.ConsumerCommitInterval < 0 {
		problems = append(problems, fmt.Sprintf("ConsumerCommitInterval cannot be negative, got: %s", cfg.ConsumerCommitInterval))
	}
	if cfg.ConsumerHeartbeatInterval >= cfg.ConsumerSessionTimeout && cfg.ConsumerSessionTimeout > 0 {
		problems = append(problems, fmt.Sprintf("ConsumerHeartbeatInterval (%s) must be shorter than ConsumerSessionTimeout (%s)", cfg.ConsumerHeartbeatInterval, cfg.ConsumerSessionTimeout))
	}

	if cfg.ConsumerMaxRetries < 0 {
		problems = append(problems, fmt.Sprintf("ConsumerMaxRetries cannot be negative, got: %d", cfg.ConsumerMaxRetries))
	}

	if len(problems) > 0 {
		errMsg := "Configuration validation failed:\n"
		for i, p := range problems {
			errMsg += fmt.Sprintf("  %d. %s\n", i+1, p)
		}
		return fmt.Errorf("%s", errMsg)
	}

	return nil
}

func (cfg *Config) LogConfiguration(log *logger.Logger) {
	log.Info("Kafka configuration loaded successfully",
		"brokers", cfg.Brokers,
		"producer_max_attempts", cfg.ProducerMaxAttempts,
		"producer_require_acks", cfg.ProducerRequireAcks,
		"producer_compression", cfg.ProducerCompression,
		"consumer_start_offset", cfg.ConsumerStartOffset,
		"consumer_commit_interval", cfg.ConsumerCommitInterval,
		"consumer_max_retries", cfg.ConsumerMaxRetries,
		"consumer_retry_base_delay", cfg.ConsumerRetryBaseDelay,
		"enable_middleware", cfg.EnableMiddleware,
	)
}

// getEnv falls back to def when the variable is unset or does not parse.
func getEnv[T any](key string, def T, parse func(string) (T, error)) T {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := parse(raw)
	if err != nil {
		return def
	}
	return v
}

func parseString(s string) (string, error) { return s, nil }

func parseInt64(s string) (int64, error) { return strconv.ParseInt(s, 10, 64) }

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
