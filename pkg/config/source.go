package config

import (
	"time"

	"github.com/Sternrassler/api-harvester/pkg/harvest"
	"github.com/Sternrassler/api-harvester/pkg/logging"
	"github.com/Sternrassler/api-harvester/pkg/pagination"
	"github.com/Sternrassler/api-harvester/pkg/transport"
)

// HeaderMap returns the request headers of s, with the API key folded in.
func (s SourceConfig) HeaderMap() (map[string]string, error) {
	headers, err := ParseHeaders(s.Headers)
	if err != nil {
		return nil, err
	}
	if s.APIKey != "" {
		header := s.APIKeyHeader
		if header == "" {
			header = "X-API-Key"
		}
		headers[header] = s.APIKey
	}
	return headers, nil
}

// PaginationOptions converts s into pagination options.
func (s SourceConfig) PaginationOptions() (pagination.Options, error) {
	kind, err := pagination.ParseKind(s.PaginationType)
	if err != nil {
		return pagination.Options{}, err
	}
	return pagination.Options{
		Kind:        kind,
		Size:        s.PageSize,
		StartPage:   s.StartPage,
		MaxPages:    s.MaxPages,
		CursorParam: s.CursorParam,
		SizeParam:   s.SizeParam,
	}, nil
}

// HarvestConfig converts s into a harvest configuration.
func (s SourceConfig) HarvestConfig() (harvest.Config, error) {
	opts, err := s.PaginationOptions()
	if err != nil {
		return harvest.Config{}, err
	}
	return harvest.Config{
		Source:     s.Name,
		Pagination: opts,
		DataPath:   s.DataPath,
		TotalPath:  s.TotalCountPath,
	}, nil
}

// RateLimitDelay returns the configured inter-request delay.
func (s SourceConfig) RateLimitDelay() time.Duration {
	return time.Duration(s.RateLimit) * time.Millisecond
}

// TransportConfig converts s into a transport configuration. Cache and
// Pacer are left for the caller to attach.
func (c *Config) TransportConfig(s SourceConfig) (transport.Config, error) {
	headers, err := s.HeaderMap()
	if err != nil {
		return transport.Config{}, err
	}

	tc := transport.DefaultConfig(s.Name, s.URL)
	tc.Headers = headers
	if s.Timeout > 0 {
		tc.Timeout = s.Timeout
	}
	if c.Cache.TTL > 0 {
		tc.CacheTTL = c.Cache.TTL
	}

	tc.Retry.MaxAttempts = c.Retry.MaxAttempts
	if c.Retry.InitialBackoff > 0 {
		tc.Retry.InitialBackoff = c.Retry.InitialBackoff
	}
	if c.Retry.MaxBackoff > 0 {
		tc.Retry.MaxBackoff = c.Retry.MaxBackoff
	}
	if c.Retry.MaxRetryAfter > 0 {
		tc.Retry.MaxRetryAfter = c.Retry.MaxRetryAfter
	}

	return tc, nil
}

// LoggerConfig converts the logging section for logging.Setup.
func (l LoggingConfig) LoggerConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LogLevel(l.Level)
	cfg.Format = logging.Format(l.Format)
	cfg.Color = l.Color
	return cfg
}
