// Package config loads the service configuration from a YAML file and
// RETRIEVAL_-prefixed environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/chatmimic/retrieval/internal/api"
	"github.com/chatmimic/retrieval/pkg/database"
	"github.com/chatmimic/retrieval/pkg/embedding"
	"github.com/chatmimic/retrieval/pkg/observability"
	"github.com/chatmimic/retrieval/pkg/retrieval"
)

// EmbeddingConfig selects and configures the embedding provider
type EmbeddingConfig struct {
	// Provider is one of "openai", "bedrock", "deterministic"
	Provider string                  `mapstructure:"provider"`
	OpenAI   OpenAIConfig            `mapstructure:"openai"`
	Bedrock  BedrockConfig           `mapstructure:"bedrock"`
	Breaker  embedding.BreakerConfig `mapstructure:"breaker"`
	Cache    embedding.CacheConfig   `mapstructure:"cache"`
}

// OpenAIConfig configures the OpenAI provider
type OpenAIConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// BedrockConfig configures the Amazon Bedrock provider
type BedrockConfig struct {
	Region string `mapstructure:"region"`
	Model  string `mapstructure:"model"`
}

// RedisConfig configures the embedding cache backend
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Config holds the complete application configuration
type Config struct {
	API       api.Config                  `mapstructure:"api"`
	Database  database.Config             `mapstructure:"database"`
	Vector    database.VectorConfig       `mapstructure:"vector"`
	Retrieval retrieval.Config            `mapstructure:"retrieval"`
	Embedding EmbeddingConfig             `mapstructure:"embedding"`
	Redis     RedisConfig                 `mapstructure:"redis"`
	Tracing   observability.TracingConfig `mapstructure:"tracing"`
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	configFile := os.Getenv("RETRIEVAL_CONFIG_FILE")
	if configFile == "" {
		configFile = "configs/config.yaml"
	}

	v.SetConfigFile(configFile)

	v.SetEnvPrefix("RETRIEVAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// Config file is not required if environment variables are set
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

// Validate checks the parts of the configuration that have no usable
// defaults
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}

	switch c.Embedding.Provider {
	case "openai":
		if c.Embedding.OpenAI.APIKey == "" {
			return fmt.Errorf("embedding.openai.api_key is required for the openai provider")
		}
	case "bedrock":
		if c.Embedding.Bedrock.Region == "" {
			return fmt.Errorf("embedding.bedrock.region is required for the bedrock provider")
		}
	case "deterministic":
	default:
		return fmt.Errorf("unknown embedding provider: %s", c.Embedding.Provider)
	}

	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// API defaults
	v.SetDefault("api.listen_address", ":8080")
	v.SetDefault("api.read_timeout", 30*time.Second)
	v.SetDefault("api.write_timeout", 30*time.Second)
	v.SetDefault("api.idle_timeout", 90*time.Second)
	v.SetDefault("api.base_path", "/api/v1")
	v.SetDefault("api.rate_limit.enabled", true)
	v.SetDefault("api.rate_limit.per_second", 25)
	v.SetDefault("api.rate_limit.burst", 50)

	// Database defaults. The empty dsn default exists so the
	// RETRIEVAL_DATABASE_DSN environment variable binds without a
	// config file.
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.connect_timeout", 30*time.Second)

	// Vector store defaults
	v.SetDefault("vector.dimensions", 1536)
	v.SetDefault("vector.index_lists", 100)

	// Retrieval policy defaults
	v.SetDefault("retrieval.max_content_length", 8192)
	v.SetDefault("retrieval.default_threshold", 0.7)
	v.SetDefault("retrieval.default_limit", 10)
	v.SetDefault("retrieval.max_limit", 100)
	v.SetDefault("retrieval.operation_timeout", 30*time.Second)

	// Embedding provider defaults
	v.SetDefault("embedding.provider", "openai")
	v.SetDefault("embedding.openai.model", "text-embedding-3-small")
	v.SetDefault("embedding.bedrock.model", "titan-embed-text-v2")
	v.SetDefault("embedding.breaker.max_failures", 5)
	v.SetDefault("embedding.breaker.open_timeout", 30*time.Second)
	v.SetDefault("embedding.breaker.half_open_max", 2)
	v.SetDefault("embedding.breaker.rate_per_sec", 50)
	v.SetDefault("embedding.breaker.rate_burst", 100)
	v.SetDefault("embedding.cache.enabled", true)
	v.SetDefault("embedding.cache.local_size", 1024)
	v.SetDefault("embedding.cache.ttl", 1*time.Hour)

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.address", "localhost:6379")

	// Tracing defaults
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "retrieval")
	v.SetDefault("tracing.endpoint", "localhost:4317")
	v.SetDefault("tracing.insecure", true)
	v.SetDefault("tracing.sample_rate", 1.0)
}
