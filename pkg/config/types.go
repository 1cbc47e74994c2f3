package config

import "time"

// Config represents the complete configuration structure.
//
// The top-level source fields describe the single source given on the
// command line. Entries of Sources describe further sources; fields they
// leave unset are inherited from the top level.
type Config struct {
	SourceConfig `mapstructure:",squash"`

	Sources []SourceConfig `mapstructure:"sources"`

	// Concurrency is the number of sources harvested at once.
	Concurrency int `mapstructure:"concurrency"`

	// Sink selects the output: dir, jsonl or redis.
	Sink string `mapstructure:"sink"`

	Redis   RedisConfig   `mapstructure:"redis"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Retry   RetryConfig   `mapstructure:"retry"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// SourceConfig describes one paginated collection.
type SourceConfig struct {
	Name string `mapstructure:"name"`
	URL  string `mapstructure:"url"`

	// APIKey is sent in the APIKeyHeader header.
	APIKey       string `mapstructure:"api_key"`
	APIKeyHeader string `mapstructure:"api_key_header"`

	// Headers are KEY=value pairs.
	Headers []string `mapstructure:"headers"`

	PaginationType string `mapstructure:"pagination_type"`
	PageSize       int    `mapstructure:"page_size"`
	StartPage      int    `mapstructure:"start_page"`
	MaxPages       int    `mapstructure:"max_pages"`
	CursorParam    string `mapstructure:"cursor_param"`
	SizeParam      string `mapstructure:"size_param"`

	DataPath       string `mapstructure:"data_path"`
	TotalCountPath string `mapstructure:"total_count_path"`

	// RateLimit is the minimum delay between requests in milliseconds.
	RateLimit int `mapstructure:"rate_limit"`

	Timeout time.Duration `mapstructure:"timeout"`

	OutputDir string `mapstructure:"output_dir"`
}

// RedisConfig holds the Redis connection used by the page cache and the
// redis sink.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	// StreamPrefix prefixes the record streams of the redis sink.
	StreamPrefix string `mapstructure:"stream_prefix"`
	StreamMaxLen int64  `mapstructure:"stream_max_len"`
}

// CacheConfig controls the Redis page cache.
type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// RetryConfig controls transport retries.
type RetryConfig struct {
	MaxAttempts    int           `mapstructure:"max_attempts"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
	MaxRetryAfter  time.Duration `mapstructure:"max_retry_after"`
}

// MetricsConfig controls the optional /metrics and /health server.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Color  bool   `mapstructure:"color"`
}
