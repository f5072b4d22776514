package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Sentimentflow SentimentflowConfig `yaml:"sentimentflow"`
	Channels      ChannelsConfig      `yaml:"channels"`
	Ingest        IngestConfig        `yaml:"ingest"`
	Storage       StorageConfig       `yaml:"storage"`
	Cache         CacheConfig         `yaml:"cache"`
	Stream        StreamConfig        `yaml:"stream"`
	Server        ServerConfig        `yaml:"server"`
	Logging       LoggingConfig       `yaml:"logging"`
}

type SentimentflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type ChannelsConfig struct {
	MeasurementBuffer int `yaml:"measurement_buffer"`
	EventBuffer       int `yaml:"event_buffer"`
}

type IngestConfig struct {
	MaxWorkers int           `yaml:"max_workers"`
	Timeout    time.Duration `yaml:"timeout"`
	Retry      RetryConfig   `yaml:"retry"`
}

type RetryConfig struct {
	MaxAttempts       int           `yaml:"max_attempts"`
	BaseDelay         time.Duration `yaml:"base_delay"`
	MaxDelay          time.Duration `yaml:"max_delay"`
	BackoffMultiplier int           `yaml:"backoff_multiplier"`
}

type StorageConfig struct {
	// Backend selects the store adapter: "dynamodb" or "memory".
	Backend  string         `yaml:"backend"`
	DynamoDB DynamoDBConfig `yaml:"dynamodb"`
}

type DynamoDBConfig struct {
	Table           string `yaml:"table"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type CacheConfig struct {
	MaxEntries int `yaml:"max_entries"`
}

type StreamConfig struct {
	DebounceInterval  time.Duration `yaml:"debounce_interval"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	SendBuffer        int           `yaml:"send_buffer"`
}

type ServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Output     string `yaml:"output"`
	MaxAge     int    `yaml:"max_age"`
	CloudWatch bool   `yaml:"cloudwatch"`
	Namespace  string `yaml:"namespace"`
}

func LoadConfig(path string) (*Config, error) {
	// Read configuration file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		Channels: ChannelsConfig{
			MeasurementBuffer: 1024,
			EventBuffer:       1024,
		},
		Ingest: IngestConfig{
			MaxWorkers: 4,
			Timeout:    5 * time.Second,
			Retry: RetryConfig{
				MaxAttempts:       3,
				BaseDelay:         50 * time.Millisecond,
				MaxDelay:          time.Second,
				BackoffMultiplier: 2,
			},
		},
		Storage: StorageConfig{Backend: "memory"},
		Cache:   CacheConfig{MaxEntries: 512},
		Stream: StreamConfig{
			DebounceInterval:  time.Second,
			HeartbeatInterval: 30 * time.Second,
			SendBuffer:        64,
		},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override DynamoDB settings from environment variables if available
	if config.Storage.Backend == "dynamodb" {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Storage.DynamoDB.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Storage.DynamoDB.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Storage.DynamoDB.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("DYNAMODB_TABLE"); v != "" {
			config.Storage.DynamoDB.Table = strings.TrimSpace(v)
		}
	}

	config.Storage.DynamoDB.Table = strings.TrimSpace(config.Storage.DynamoDB.Table)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Sentimentflow.Name == "" {
		return fmt.Errorf("sentimentflow.name is required")
	}

	if cfg.Sentimentflow.Version == "" {
		return fmt.Errorf("sentimentflow.version is required")
	}

	if cfg.Channels.MeasurementBuffer <= 0 {
		return fmt.Errorf("channels.measurement_buffer must be greater than 0")
	}
	if cfg.Channels.EventBuffer <= 0 {
		return fmt.Errorf("channels.event_buffer must be greater than 0")
	}

	if cfg.Ingest.MaxWorkers <= 0 {
		return fmt.Errorf("ingest.max_workers must be greater than 0")
	}
	if cfg.Ingest.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("ingest.retry.max_attempts must be greater than 0")
	}

	if cfg.Cache.MaxEntries <= 0 {
		return fmt.Errorf("cache.max_entries must be greater than 0")
	}

	if cfg.Stream.DebounceInterval < 0 {
		return fmt.Errorf("stream.debounce_interval must not be negative")
	}

	switch cfg.Storage.Backend {
	case "memory":
	case "dynamodb":
		if cfg.Storage.DynamoDB.Table == "" {
			return fmt.Errorf("storage.dynamodb.table is required when the dynamodb backend is enabled")
		}
		if cfg.Storage.DynamoDB.Region == "" {
			return fmt.Errorf("storage.dynamodb.region is required when the dynamodb backend is enabled")
		}
	default:
		return fmt.Errorf("storage.backend '%s' is not supported", cfg.Storage.Backend)
	}

	return nil
}
