package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Sternrassler/api-harvester/pkg/logging"
	"github.com/Sternrassler/api-harvester/pkg/pagination"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func testFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("config", "", "")
	fs.String("url", "", "")
	fs.String("api-key", "", "")
	fs.StringArray("header", nil, "")
	fs.Int("page-size", 250, "")
	fs.String("pagination-type", "page", "")
	fs.String("sink", "dir", "")
	fs.String("redis-addr", "localhost:6379", "")
	fs.Bool("cache", false, "")
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", testFlags(t, "--url", "https://api.example.com/items"))
	require.NoError(t, err)

	require.Len(t, cfg.Sources, 1)
	s := cfg.Sources[0]
	assert.Equal(t, "default", s.Name)
	assert.Equal(t, "https://api.example.com/items", s.URL)
	assert.Equal(t, "page", s.PaginationType)
	assert.Equal(t, 250, s.PageSize)
	assert.Equal(t, "data", s.DataPath)
	assert.Equal(t, "totalCount", s.TotalCountPath)
	assert.Equal(t, 100, s.RateLimit)
	assert.Equal(t, 30*time.Second, s.Timeout)
	assert.Equal(t, "output", s.OutputDir)

	assert.Equal(t, SinkDir, cfg.Sink)
	assert.Equal(t, 4, cfg.Concurrency)
	assert.Equal(t, 4, cfg.Retry.MaxAttempts)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_FlagsOverrideFile(t *testing.T) {
	path := writeConfig(t, "harvester.yaml", `
url: https://file.example.com/items
page_size: 50
pagination_type: offset
logging:
  level: debug
  format: json
`)

	cfg, err := Load(path, testFlags(t, "--page-size", "10", "--header", "X-Tenant=acme", "--header", "X-Trace=a=b"))
	require.NoError(t, err)

	s := cfg.Sources[0]
	assert.Equal(t, "https://file.example.com/items", s.URL)
	assert.Equal(t, 10, s.PageSize, "flag wins over file")
	assert.Equal(t, "offset", s.PaginationType, "file wins over flag default")
	assert.Equal(t, []string{"X-Tenant=acme", "X-Trace=a=b"}, s.Headers)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_HeaderValueWithComma(t *testing.T) {
	cfg, err := Load("", testFlags(t,
		"--url", "https://api.example.com/items",
		"--header", "Accept=application/json, text/plain",
		"--header", "Cookie=a=1, b=2",
	))
	require.NoError(t, err)

	s := cfg.Sources[0]
	assert.Equal(t, []string{"Accept=application/json, text/plain", "Cookie=a=1, b=2"}, s.Headers)
	headers, err := s.HeaderMap()
	require.NoError(t, err)
	assert.Equal(t, "application/json, text/plain", headers["Accept"])
	assert.Equal(t, "a=1, b=2", headers["Cookie"])
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("HARVESTER_URL", "https://env.example.com/items")
	t.Setenv("HARVESTER_REDIS_ADDR", "redis:6380")

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "https://env.example.com/items", cfg.Sources[0].URL)
	assert.Equal(t, "redis:6380", cfg.Redis.Addr)
}

func TestLoad_MultipleSources(t *testing.T) {
	path := writeConfig(t, "sources.yaml", `
page_size: 100
api_key: secret
max_pages: 2
start_page: 3
cursor_param: p
size_param: size
headers:
  - "X-Client=harvester"
sources:
  - name: orders
    url: https://api.example.com/orders
    headers:
      - "X-Scope=orders"
  - name: users
    url: https://api.example.com/users
    pagination_type: offset
    page_size: 20
    max_pages: 5
    size_param: limit
    total_count_path: meta.total
`)

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	require.Len(t, cfg.Sources, 2, "top level has no url and is not a source")

	orders, users := cfg.Sources[0], cfg.Sources[1]
	assert.Equal(t, 100, orders.PageSize)
	assert.Equal(t, "page", orders.PaginationType)
	assert.Equal(t, []string{"X-Client=harvester", "X-Scope=orders"}, orders.Headers)
	assert.Equal(t, "secret", orders.APIKey)
	assert.Equal(t, 2, orders.MaxPages)
	assert.Equal(t, 3, orders.StartPage)
	assert.Equal(t, "p", orders.CursorParam)
	assert.Equal(t, "size", orders.SizeParam)

	assert.Equal(t, 20, users.PageSize)
	assert.Equal(t, "offset", users.PaginationType)
	assert.Equal(t, "meta.total", users.TotalCountPath)
	assert.Equal(t, "data", users.DataPath)
	assert.Equal(t, "secret", users.APIKey)
	assert.Equal(t, 5, users.MaxPages, "own value wins over top level")
	assert.Equal(t, "limit", users.SizeParam)
}

func TestLoad_JSONFile(t *testing.T) {
	path := writeConfig(t, "schema.json", `{"url": "https://api.example.com/items", "data_path": "/results/items"}`)

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "/results/items", cfg.Sources[0].DataPath)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	assert.Error(t, err)
}

func TestLoadRedis(t *testing.T) {
	path := writeConfig(t, "harvester.yaml", `
redis:
  addr: cache.internal:6379
  password: from-file
  db: 3
`)

	t.Run("file without sources", func(t *testing.T) {
		rc, err := LoadRedis(path, nil)
		require.NoError(t, err)
		assert.Equal(t, "cache.internal:6379", rc.Addr)
		assert.Equal(t, "from-file", rc.Password)
		assert.Equal(t, 3, rc.DB)
	})

	t.Run("env over file", func(t *testing.T) {
		t.Setenv("HARVESTER_REDIS_PASSWORD", "from-env")
		rc, err := LoadRedis(path, nil)
		require.NoError(t, err)
		assert.Equal(t, "from-env", rc.Password)
	})

	t.Run("flags over file", func(t *testing.T) {
		fs := pflag.NewFlagSet("purge", pflag.ContinueOnError)
		fs.String("redis-addr", "localhost:6379", "")
		fs.String("redis-password", "", "")
		fs.Int("redis-db", 0, "")
		require.NoError(t, fs.Parse([]string{"--redis-db", "7"}))

		rc, err := LoadRedis(path, fs)
		require.NoError(t, err)
		assert.Equal(t, "cache.internal:6379", rc.Addr, "unset flag does not override the file")
		assert.Equal(t, 7, rc.DB)
	})

	t.Run("defaults", func(t *testing.T) {
		rc, err := LoadRedis("", nil)
		require.NoError(t, err)
		assert.Equal(t, "localhost:6379", rc.Addr)
		assert.Empty(t, rc.Password)
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Sources: []SourceConfig{{
				Name:           "orders",
				URL:            "https://api.example.com/orders",
				PaginationType: "page",
				PageSize:       10,
			}},
			Sink:        SinkDir,
			Concurrency: 1,
			Retry:       RetryConfig{MaxAttempts: 3},
			Redis:       RedisConfig{Addr: "localhost:6379"},
			Logging:     LoggingConfig{Level: "info", Format: "console"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "no sources", mutate: func(c *Config) { c.Sources = nil }, wantErr: "url is required"},
		{name: "missing url", mutate: func(c *Config) { c.Sources[0].URL = "" }, wantErr: "url is required"},
		{name: "cursor pagination", mutate: func(c *Config) { c.Sources[0].PaginationType = "cursor" }, wantErr: "pagination_type"},
		{name: "zero page size", mutate: func(c *Config) { c.Sources[0].PageSize = 0 }, wantErr: "page_size"},
		{name: "negative rate limit", mutate: func(c *Config) { c.Sources[0].RateLimit = -1 }, wantErr: "rate_limit"},
		{name: "bad header", mutate: func(c *Config) { c.Sources[0].Headers = []string{"novalue"} }, wantErr: "invalid header"},
		{name: "duplicate names", mutate: func(c *Config) { c.Sources = append(c.Sources, c.Sources[0]) }, wantErr: "duplicate source name"},
		{name: "unknown sink", mutate: func(c *Config) { c.Sink = "s3" }, wantErr: "invalid sink"},
		{name: "redis sink without addr", mutate: func(c *Config) { c.Sink = SinkRedis; c.Redis.Addr = "" }, wantErr: "redis.addr"},
		{name: "zero attempts", mutate: func(c *Config) { c.Retry.MaxAttempts = 0 }, wantErr: "retry.max_attempts"},
		{name: "bad log level", mutate: func(c *Config) { c.Logging.Level = "trace" }, wantErr: "invalid logging level"},
		{name: "bad log format", mutate: func(c *Config) { c.Logging.Format = "xml" }, wantErr: "invalid logging format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := validate(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseHeaders(t *testing.T) {
	headers, err := ParseHeaders([]string{"Authorization=Bearer abc", "X-Filter=a=b", "X-Empty="})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"Authorization": "Bearer abc",
		"X-Filter":      "a=b",
		"X-Empty":       "",
	}, headers)

	_, err = ParseHeaders([]string{"=value"})
	assert.Error(t, err)
}

func TestSourceConversions(t *testing.T) {
	s := SourceConfig{
		Name:           "orders",
		URL:            "https://api.example.com/orders",
		APIKey:         "k3y",
		APIKeyHeader:   "X-Api-Token",
		Headers:        []string{"X-Tenant=acme"},
		PaginationType: "offset",
		PageSize:       50,
		MaxPages:       3,
		DataPath:       "data",
		TotalCountPath: "meta.total",
		RateLimit:      250,
		Timeout:        10 * time.Second,
	}

	hc, err := s.HarvestConfig()
	require.NoError(t, err)
	assert.Equal(t, "orders", hc.Source)
	assert.Equal(t, pagination.KindOffset, hc.Pagination.Kind)
	assert.Equal(t, 50, hc.Pagination.Size)
	assert.Equal(t, 3, hc.Pagination.MaxPages)
	assert.Equal(t, "meta.total", hc.TotalPath)

	assert.Equal(t, 250*time.Millisecond, s.RateLimitDelay())

	cfg := &Config{
		Retry: RetryConfig{MaxAttempts: 6, InitialBackoff: time.Second},
		Cache: CacheConfig{TTL: time.Minute},
	}
	tc, err := cfg.TransportConfig(s)
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com/orders", tc.BaseURL)
	assert.Equal(t, "k3y", tc.Headers["X-Api-Token"])
	assert.Equal(t, "acme", tc.Headers["X-Tenant"])
	assert.Equal(t, 10*time.Second, tc.Timeout)
	assert.Equal(t, 6, tc.Retry.MaxAttempts)
	assert.Equal(t, time.Second, tc.Retry.InitialBackoff)
	assert.Equal(t, time.Minute, tc.CacheTTL)
}

func TestLoggerConfig(t *testing.T) {
	lc := LoggingConfig{Level: "debug", Format: "json", Color: true}.LoggerConfig()
	assert.Equal(t, logging.LevelDebug, lc.Level)
	assert.Equal(t, logging.FormatJSON, lc.Format)
	assert.True(t, lc.Color)
}
