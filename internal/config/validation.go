package config

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidProvider indicates the AI provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidEmbedderModel indicates the embedder model is empty.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidInsightModel indicates the insight model is empty.
	ErrInvalidInsightModel = errors.New("invalid insight model")

	// ErrInvalidChunkSize indicates the chunk size is out of range.
	ErrInvalidChunkSize = errors.New("invalid chunk size")

	// ErrInvalidOverlapRatio indicates the overlap ratio is out of range.
	ErrInvalidOverlapRatio = errors.New("invalid overlap ratio")

	// ErrInvalidBatchSize indicates the page batch size is out of range.
	ErrInvalidBatchSize = errors.New("invalid page batch size")

	// ErrInvalidTopK indicates the retrieval top-k is out of range.
	ErrInvalidTopK = errors.New("invalid top-k")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is empty.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is empty.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is unknown.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrInvalidRedisAddr indicates the Redis address is empty.
	ErrInvalidRedisAddr = errors.New("invalid Redis address")

	// ErrInvalidCacheTTL indicates the cache TTL is not positive.
	ErrInvalidCacheTTL = errors.New("invalid cache TTL")

	// ErrInvalidTimeout indicates a timeout value is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout")

	// ErrInvalidRetryAttempts indicates the retry bound is out of range.
	ErrInvalidRetryAttempts = errors.New("invalid retry attempts")
)

var validSSLModes = map[string]bool{
	"disable":     true,
	"require":     true,
	"verify-ca":   true,
	"verify-full": true,
	"prefer":      true,
	"allow":       true,
}

// Validate checks the configuration for out-of-range or missing values.
// It fails fast on the first invalid field.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	switch c.Provider {
	case ProviderGemini, ProviderGoogleAI:
	default:
		return fmt.Errorf("%w: %q (must be gemini or googleai)", ErrInvalidProvider, c.Provider)
	}

	if strings.TrimSpace(c.EmbedderModel) == "" {
		return fmt.Errorf("%w: embedder model must not be empty", ErrInvalidEmbedderModel)
	}
	if strings.TrimSpace(c.InsightModel) == "" {
		return fmt.Errorf("%w: insight model must not be empty", ErrInvalidInsightModel)
	}

	if c.ChunkSize < 256 || c.ChunkSize > 32768 {
		return fmt.Errorf("%w: %d (must be between 256 and 32768)", ErrInvalidChunkSize, c.ChunkSize)
	}
	if c.OverlapRatio < 0 || c.OverlapRatio >= 0.5 {
		return fmt.Errorf("%w: %.2f (must be in [0, 0.5))", ErrInvalidOverlapRatio, c.OverlapRatio)
	}
	if c.PageBatchSize < 1 || c.PageBatchSize > 100 {
		return fmt.Errorf("%w: %d (must be between 1 and 100)", ErrInvalidBatchSize, c.PageBatchSize)
	}
	if c.TopK < 1 || c.TopK > 30 {
		return fmt.Errorf("%w: %d (must be between 1 and 30)", ErrInvalidTopK, c.TopK)
	}
	if c.RetryAttempts < 1 || c.RetryAttempts > 10 {
		return fmt.Errorf("%w: %d (must be between 1 and 10)", ErrInvalidRetryAttempts, c.RetryAttempts)
	}

	if strings.TrimSpace(c.PostgresHost) == "" {
		return fmt.Errorf("%w: host must not be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if strings.TrimSpace(c.PostgresDBName) == "" {
		return fmt.Errorf("%w: database name must not be empty", ErrInvalidPostgresDBName)
	}
	if !validSSLModes[c.PostgresSSLMode] {
		return fmt.Errorf("%w: %q", ErrInvalidPostgresSSLMode, c.PostgresSSLMode)
	}

	if strings.TrimSpace(c.RedisAddr) == "" {
		return fmt.Errorf("%w: address must not be empty", ErrInvalidRedisAddr)
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidCacheTTL, c.CacheTTL)
	}

	if c.DocumentTimeout <= 0 {
		return fmt.Errorf("%w: document timeout %v", ErrInvalidTimeout, c.DocumentTimeout)
	}
	if c.ModelCallTimeout <= 0 {
		return fmt.Errorf("%w: model call timeout %v", ErrInvalidTimeout, c.ModelCallTimeout)
	}

	return nil
}

// OverlapUnits returns the absolute overlap length derived from the chunk
// size and overlap ratio.
func (c *Config) OverlapUnits() int {
	return int(float64(c.ChunkSize) * c.OverlapRatio)
}
