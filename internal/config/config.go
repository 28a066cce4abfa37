// Package config provides application configuration with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (DOCULAKE_ prefix, runtime override)
//  2. Config file (~/.doculake/config.yaml or ./config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - AI: provider, embedding model, insight model, dimensions, max tokens
//   - Storage: PostgreSQL connection for vectors and status records (storage.go)
//   - Cache: Redis connection and insight TTL
//   - Processing: chunking, batching, retry and timeout policy
//   - Watch: upload directory for ingestion triggers
//   - Server: HTTP listen address
//
// Validation lives in validation.go with sentinel errors checked via errors.Is.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// AI provider identifiers used in Config.Provider.
const (
	ProviderGemini   = "gemini"
	ProviderGoogleAI = "googleai"
)

const (
	// DefaultEmbedderModel is the default embedding model. Its output
	// dimensionality must match vector.Dimension (1024).
	DefaultEmbedderModel = "gemini-embedding-001"

	// DefaultInsightModel is the default generative model for insight
	// extraction and OCR.
	DefaultInsightModel = "gemini-2.5-flash"

	// DefaultChunkSize is the target chunk size in embedding input units.
	DefaultChunkSize = 8192

	// DefaultOverlapRatio is the fraction of a chunk shared with its successor.
	DefaultOverlapRatio = 0.10

	// DefaultPageBatchSize is the number of pages accumulated before a
	// chunk/embed/index flush.
	DefaultPageBatchSize = 10

	// DefaultRetryAttempts bounds embedding-call retries per chunk.
	DefaultRetryAttempts = 3

	// DefaultTopK is the number of chunks retrieved per insight query.
	DefaultTopK = 5

	// DefaultCacheTTL is how long a generated insight stays servable.
	DefaultCacheTTL = 24 * time.Hour

	// DefaultDocumentTimeout bounds one document's entire ingestion.
	DefaultDocumentTimeout = 600 * time.Second

	// DefaultModelCallTimeout bounds a single embedding or generation call.
	DefaultModelCallTimeout = 60 * time.Second
)

// Config stores application configuration.
type Config struct {
	// AI provider and model configuration
	Provider      string `mapstructure:"provider" json:"provider"`
	EmbedderModel string `mapstructure:"embedder_model" json:"embedder_model"`
	InsightModel  string `mapstructure:"insight_model" json:"insight_model"`
	MaxTokens     int    `mapstructure:"max_tokens" json:"max_tokens"`

	// Storage configuration (see storage.go)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"-"`
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Cache configuration
	RedisAddr     string        `mapstructure:"redis_addr" json:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password" json:"-"`
	RedisDB       int           `mapstructure:"redis_db" json:"redis_db"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl" json:"cache_ttl"`

	// Processing configuration
	ChunkSize        int           `mapstructure:"chunk_size" json:"chunk_size"`
	OverlapRatio     float64       `mapstructure:"overlap_ratio" json:"overlap_ratio"`
	PageBatchSize    int           `mapstructure:"page_batch_size" json:"page_batch_size"`
	RetryAttempts    int           `mapstructure:"retry_attempts" json:"retry_attempts"`
	TopK             int           `mapstructure:"top_k" json:"top_k"`
	DocumentTimeout  time.Duration `mapstructure:"document_timeout" json:"document_timeout"`
	ModelCallTimeout time.Duration `mapstructure:"model_call_timeout" json:"model_call_timeout"`
	EmbedRateLimit   float64       `mapstructure:"embed_rate_limit" json:"embed_rate_limit"`

	// Watch configuration
	UploadDir string `mapstructure:"upload_dir" json:"upload_dir"`

	// Server configuration
	ServerAddr string `mapstructure:"server_addr" json:"server_addr"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > defaults.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".doculake")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v)

	v.SetEnvPrefix("DOCULAKE")
	v.AutomaticEnv()
	// Secrets are env-only by convention; never written to the config file.
	_ = v.BindEnv("postgres_password", "DOCULAKE_POSTGRES_PASSWORD")
	_ = v.BindEnv("redis_password", "DOCULAKE_REDIS_PASSWORD")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values on v.
func setDefaults(v *viper.Viper) {
	v.SetDefault("provider", ProviderGemini)
	v.SetDefault("embedder_model", DefaultEmbedderModel)
	v.SetDefault("insight_model", DefaultInsightModel)
	v.SetDefault("max_tokens", 8192)

	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "doculake")
	v.SetDefault("postgres_password", "doculake_dev_password")
	v.SetDefault("postgres_db_name", "doculake")
	v.SetDefault("postgres_ssl_mode", "disable")

	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_db", 0)
	v.SetDefault("cache_ttl", DefaultCacheTTL)

	v.SetDefault("chunk_size", DefaultChunkSize)
	v.SetDefault("overlap_ratio", DefaultOverlapRatio)
	v.SetDefault("page_batch_size", DefaultPageBatchSize)
	v.SetDefault("retry_attempts", DefaultRetryAttempts)
	v.SetDefault("top_k", DefaultTopK)
	v.SetDefault("document_timeout", DefaultDocumentTimeout)
	v.SetDefault("model_call_timeout", DefaultModelCallTimeout)
	v.SetDefault("embed_rate_limit", 10.0)

	v.SetDefault("upload_dir", "uploads")
	v.SetDefault("server_addr", "127.0.0.1:3500")
}
