package kafka_config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Brokers:                   []string{"localhost:9092"},
		ProducerMaxAttempts:       DefaultProducerMaxAttempts,
		ProducerBatchTimeout:      DefaultProducerBatchTimeout,
		ProducerRequireAcks:       DefaultProducerRequireAcks,
		ProducerCompression:       DefaultProducerCompression,
		ConsumerStartOffset:       DefaultConsumerStartOffset,
		ConsumerMinBytes:          DefaultConsumerMinBytes,
		ConsumerMaxBytes:          DefaultConsumerMaxBytes,
		ConsumerMaxWait:           DefaultConsumerMaxWait,
		ConsumerCommitInterval:    DefaultConsumerCommitInterval,
		ConsumerHeartbeatInterval: DefaultConsumerHeartbeatInterval,
		ConsumerSessionTimeout:    DefaultConsumerSessionTimeout,
		ConsumerRebalanceTimeout:  DefaultConsumerRebalanceTimeout,
		ConsumerMaxRetries:        DefaultConsumerMaxRetries,
		ConsumerRetryBaseDelay:    DefaultConsumerRetryBaseDelay,
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv(EnvKafkaBrokers, " broker-a:9092 , broker-b:9092")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Brokers) != 2 || cfg.Brokers[0] != "broker-a:9092" || cfg.Brokers[1] != "broker-b:9092" {
		t.Errorf("Brokers = %v", cfg.Brokers)
	}
	if cfg.ConsumerStartOffset != -2 {
		t.Errorf("ConsumerStartOffset = %d, want -2", cfg.ConsumerStartOffset)
	}
	if cfg.ConsumerCommitInterval != 0 {
		t.Errorf("ConsumerCommitInterval = %s, want synchronous commits", cfg.ConsumerCommitInterval)
	}
}

func TestLoadIgnoresUnparsableValues(t *testing.T) {
	t.Setenv(EnvKafkaConsumerMaxRetries, "many")
	t.Setenv(EnvKafkaConsumerRetryBaseDelay, "1s")
	t.Setenv(EnvKafkaProducerCompression, "GZIP")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ConsumerMaxRetries != DefaultConsumerMaxRetries {
		t.Errorf("ConsumerMaxRetries = %d, want default", cfg.ConsumerMaxRetries)
	}
	if cfg.ConsumerRetryBaseDelay != time.Second {
		t.Errorf("ConsumerRetryBaseDelay = %s, want 1s", cfg.ConsumerRetryBaseDelay)
	}
	if cfg.ProducerCompression != "gzip" {
		t.Errorf("ProducerCompression = %q, want gzip", cfg.ProducerCompression)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name:    "empty broker",
			mutate:  func(c *Config) { c.Brokers = []string{"a:9092", ""} },
			wantErr: "Broker 1 cannot be empty",
		},
		{
			name:    "fire and forget acks rejected",
			mutate:  func(c *Config) { c.ProducerRequireAcks = 0 },
			wantErr: "ProducerRequireAcks",
		},
		{
			name:    "unknown compression",
			mutate:  func(c *Config) { c.ProducerCompression = "brotli" },
			wantErr: "ProducerCompression",
		},
		{
			name:    "max bytes below min bytes",
			mutate:  func(c *Config) { c.ConsumerMaxBytes = 0 },
			wantErr: "Consumer byte bounds",
		},
		{
			name:    "heartbeat not shorter than session timeout",
			mutate:  func(c *Config) { c.ConsumerHeartbeatInterval = c.ConsumerSessionTimeout },
			wantErr: "ConsumerHeartbeatInterval",
		},
		{
			name:    "negative commit interval",
			mutate:  func(c *Config) { c.ConsumerCommitInterval = -time.Second },
			wantErr: "ConsumerCommitInterval",
		},
		{
			name:    "zero retry delay",
			mutate:  func(c *Config) { c.ConsumerRetryBaseDelay = 0 },
			wantErr: "ConsumerRetryBaseDelay must be positive",
		},
		{
			name:    "offset below oldest",
			mutate:  func(c *Config) { c.ConsumerStartOffset = -3 },
			wantErr: "ConsumerStartOffset",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}
