// Package config loads harvester configuration from a YAML or JSON file,
// HARVESTER_* environment variables and command-line flags, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Sternrassler/api-harvester/pkg/logging"
	"github.com/Sternrassler/api-harvester/pkg/pagination"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of configuration environment variables.
const EnvPrefix = "HARVESTER"

// Sink names.
const (
	SinkDir   = "dir"
	SinkJSONL = "jsonl"
	SinkRedis = "redis"
)

// Load loads the configuration. configPath may be empty, in which case only
// defaults, environment and flags apply. Flags bind to the key named by
// FlagKeys, or to their name with dashes replaced by underscores.
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	cfg, err := unmarshal(configPath, flags)
	if err != nil {
		return nil, err
	}

	cfg.Sources = cfg.resolveSources()

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadRedis loads only the Redis connection settings, from the same layers
// as Load. Sources are neither required nor validated.
func LoadRedis(configPath string, flags *pflag.FlagSet) (RedisConfig, error) {
	cfg, err := unmarshal(configPath, flags)
	if err != nil {
		return RedisConfig{}, err
	}
	if cfg.Redis.Addr == "" {
		return RedisConfig{}, errors.New("invalid configuration: redis.addr is required")
	}
	return cfg.Redis, nil
}

func unmarshal(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := bindFlags(v, flags); err != nil {
			return nil, err
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// FlagKeys maps flag names to configuration keys where they differ from
// the dash-to-underscore rule.
var FlagKeys = map[string]string{
	"redis-addr":     "redis.addr",
	"redis-password": "redis.password",
	"redis-db":       "redis.db",
	"metrics-addr":   "metrics.addr",
	"cache":          "cache.enabled",
	"cache-ttl":      "cache.ttl",
	"log-level":      "logging.level",
	"log-format":     "logging.format",
	"max-retries":    "retry.max_attempts",
	"header":         "headers",
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var err error
	flags.VisitAll(func(f *pflag.Flag) {
		if f.Name == "config" || err != nil {
			return
		}
		key, ok := FlagKeys[f.Name]
		if !ok {
			key = strings.ReplaceAll(f.Name, "-", "_")
		}
		if bindErr := v.BindPFlag(key, f); bindErr != nil {
			err = fmt.Errorf("bind flag %s: %w", f.Name, bindErr)
		}
	})
	return err
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Source defaults
	v.SetDefault("name", "default")
	v.SetDefault("url", "")
	v.SetDefault("api_key", "")
	v.SetDefault("api_key_header", "X-API-Key")
	v.SetDefault("pagination_type", "page")
	v.SetDefault("page_size", 250)
	v.SetDefault("data_path", "data")
	v.SetDefault("total_count_path", "totalCount")
	v.SetDefault("rate_limit", 100)
	v.SetDefault("timeout", "30s")
	v.SetDefault("output_dir", "output")

	v.SetDefault("concurrency", 4)
	v.SetDefault("sink", SinkDir)

	// Redis defaults
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.stream_prefix", "harvester")
	v.SetDefault("redis.stream_max_len", 1_000_000)

	// Cache defaults
	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.ttl", "5m")

	// Retry defaults
	v.SetDefault("retry.max_attempts", 4)
	v.SetDefault("retry.initial_backoff", "500ms")
	v.SetDefault("retry.max_backoff", "30s")
	v.SetDefault("retry.max_retry_after", "2m")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.color", true)
}

// resolveSources returns the sources to harvest: the top-level source when
// it has a URL, followed by the configured list with inherited fields.
func (c *Config) resolveSources() []SourceConfig {
	var out []SourceConfig
	if c.URL != "" {
		out = append(out, c.SourceConfig)
	}
	for _, s := range c.Sources {
		out = append(out, inherit(s, c.SourceConfig))
	}
	return out
}

// inherit fills zero fields of s from base. Identity fields are not inherited.
func inherit(s, base SourceConfig) SourceConfig {
	if s.APIKey == "" {
		s.APIKey = base.APIKey
	}
	if s.APIKeyHeader == "" {
		s.APIKeyHeader = base.APIKeyHeader
	}
	if s.PaginationType == "" {
		s.PaginationType = base.PaginationType
	}
	if s.PageSize == 0 {
		s.PageSize = base.PageSize
	}
	if s.StartPage == 0 {
		s.StartPage = base.StartPage
	}
	if s.MaxPages == 0 {
		s.MaxPages = base.MaxPages
	}
	if s.CursorParam == "" {
		s.CursorParam = base.CursorParam
	}
	if s.SizeParam == "" {
		s.SizeParam = base.SizeParam
	}
	if s.DataPath == "" {
		s.DataPath = base.DataPath
	}
	if s.TotalCountPath == "" {
		s.TotalCountPath = base.TotalCountPath
	}
	if s.RateLimit == 0 {
		s.RateLimit = base.RateLimit
	}
	if s.Timeout == 0 {
		s.Timeout = base.Timeout
	}
	if s.OutputDir == "" {
		s.OutputDir = base.OutputDir
	}
	s.Headers = append(append([]string(nil), base.Headers...), s.Headers...)
	return s
}

// validate checks if the configuration is valid.
func validate(cfg *Config) error {
	if len(cfg.Sources) == 0 {
		return errors.New("url is required (or at least one entry in sources)")
	}

	names := make(map[string]bool, len(cfg.Sources))
	for i, s := range cfg.Sources {
		if s.Name == "" {
			return fmt.Errorf("sources[%d].name is required", i)
		}
		if names[s.Name] {
			return fmt.Errorf("duplicate source name: %s", s.Name)
		}
		names[s.Name] = true

		if err := validateSource(s); err != nil {
			return fmt.Errorf("source %s: %w", s.Name, err)
		}
	}

	switch cfg.Sink {
	case SinkDir, SinkJSONL, SinkRedis:
	default:
		return fmt.Errorf("invalid sink: %s (must be dir, jsonl or redis)", cfg.Sink)
	}

	if (cfg.Sink == SinkRedis || cfg.Cache.Enabled) && cfg.Redis.Addr == "" {
		return errors.New("redis.addr is required for the redis sink and the page cache")
	}

	if cfg.Concurrency < 1 {
		return fmt.Errorf("concurrency must be >= 1 (got %d)", cfg.Concurrency)
	}
	if cfg.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be >= 1 (got %d)", cfg.Retry.MaxAttempts)
	}

	if !logging.IsValidLevel(cfg.Logging.Level) {
		return fmt.Errorf("invalid logging level: %s", cfg.Logging.Level)
	}
	switch cfg.Logging.Format {
	case string(logging.FormatConsole), string(logging.FormatJSON):
	default:
		return fmt.Errorf("invalid logging format: %s", cfg.Logging.Format)
	}

	return nil
}

func validateSource(s SourceConfig) error {
	if s.URL == "" {
		return errors.New("url is required")
	}
	if _, err := pagination.ParseKind(s.PaginationType); err != nil {
		return fmt.Errorf("pagination_type: %w", err)
	}
	if s.PageSize < 1 {
		return fmt.Errorf("page_size must be >= 1 (got %d)", s.PageSize)
	}
	if s.RateLimit < 0 {
		return fmt.Errorf("rate_limit must not be negative (got %d)", s.RateLimit)
	}
	if s.MaxPages < 0 {
		return fmt.Errorf("max_pages must not be negative (got %d)", s.MaxPages)
	}
	if _, err := ParseHeaders(s.Headers); err != nil {
		return err
	}
	return nil
}

// ParseHeaders parses KEY=value pairs. The value may contain '='.
func ParseHeaders(pairs []string) (map[string]string, error) {
	headers := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid header %q (want KEY=value)", pair)
		}
		headers[key] = value
	}
	return headers, nil
}
