// Package transport issues single page requests with configured headers,
// request pacing, an optional Redis page cache, and retry with exponential
// backoff for transient failures.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Sternrassler/api-harvester/pkg/cache"
	"github.com/Sternrassler/api-harvester/pkg/logging"
	"github.com/Sternrassler/api-harvester/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for transport operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvester_requests_total",
		Help: "Total HTTP attempts by source and status",
	}, []string{"source", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "harvester_request_duration_seconds",
		Help:    "HTTP attempt duration in seconds by source",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"source"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvester_errors_total",
		Help: "Total failed attempts by error class",
	}, []string{"class"})
)

// DefaultUserAgent is sent when Config.UserAgent is empty.
const DefaultUserAgent = "api-harvester/1.0"

// maxErrorBody bounds the body excerpt kept in HTTPStatusError.
const maxErrorBody = 512

// Config holds the transport configuration of one source.
type Config struct {
	// Source labels logs, metrics and cache keys.
	Source string

	// BaseURL is the collection endpoint; its own query parameters are kept
	// and pagination parameters are added on top.
	BaseURL string

	// Headers are sent with every request (auth, API keys, ...).
	Headers map[string]string

	UserAgent string

	// Timeout bounds a single attempt. The caller's context bounds the whole
	// fetch including retries.
	Timeout time.Duration

	Retry RetryConfig

	// MaxBodyBytes limits response bodies. 0 means unlimited.
	MaxBodyBytes int64

	// Cache enables the Redis page cache when non-nil.
	Cache *cache.Manager

	// CacheTTL is the freshness of pages without caching headers.
	CacheTTL time.Duration

	// Pacer spaces attempts; nil disables pacing.
	Pacer *ratelimit.Pacer
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(source, baseURL string) Config {
	return Config{
		Source:       source,
		BaseURL:      baseURL,
		Headers:      map[string]string{},
		UserAgent:    DefaultUserAgent,
		Timeout:      30 * time.Second,
		Retry:        DefaultRetryConfig(),
		MaxBodyBytes: 64 << 20,
		CacheTTL:     cache.DefaultTTL,
	}
}

// PageResponse is the raw result of one page fetch.
type PageResponse struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte

	// Attempts is the number of HTTP attempts made (0 for a fresh cache hit).
	Attempts int

	// FromCache is set when Body came from the page cache.
	FromCache bool
}

// Client fetches pages of one source.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	config     Config
	logger     zerolog.Logger
}

// New creates a new transport client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}

	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https (got %q)", base.Scheme)
	}

	if cfg.Retry.MaxAttempts < 1 {
		return nil, fmt.Errorf("max_attempts must be >= 1 (got %d)", cfg.Retry.MaxAttempts)
	}

	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = cache.DefaultTTL
	}

	logger := logging.NewLogger("transport")
	if cfg.Source != "" {
		logger = logging.WithSource(logger, cfg.Source)
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL: base,
		config:  cfg,
		logger:  logger,
	}, nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// attempt is the result of one HTTP round trip.
type attempt struct {
	outcome    Outcome
	class      ErrorClass
	status     int
	header     http.Header
	body       []byte
	retryAfter time.Duration
	err        error
}

// Fetch requests the base URL with params merged into its query string.
//
// Transient failures (network errors, timeouts, 5xx, 429) are retried up to
// Retry.MaxAttempts; 429 waits for Retry-After when present. A non-429 4xx
// returns *HTTPStatusError at once; exhausting attempts returns
// *TransportError. Cancellation of ctx returns ctx's error wrapped.
func (c *Client) Fetch(ctx context.Context, params url.Values) (*PageResponse, error) {
	target := c.pageURL(params)
	key := cache.KeyFor(c.config.Source, target)

	stale := c.lookupCache(ctx, key)
	if stale != nil && !stale.IsExpired() {
		cache.CacheHits.Inc()
		c.logger.Debug().Str("url", target.String()).Msg("Page served from cache")
		return &PageResponse{
			URL:        target.String(),
			StatusCode: stale.StatusCode,
			Body:       stale.Data,
			FromCache:  true,
		}, nil
	}

	b := c.config.Retry.newBackoff()
	var last attempt

	for n := 1; n <= c.config.Retry.MaxAttempts; n++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("fetch %s: %w", target, err)
		}
		if err := c.config.Pacer.Wait(ctx); err != nil {
			return nil, fmt.Errorf("fetch %s: %w", target, err)
		}

		last = c.do(ctx, target, stale)

		switch last.outcome {
		case OutcomeSuccess:
			if n > 1 {
				c.logger.Info().
					Str("url", target.String()).
					Int("attempt", n).
					Msg("Request succeeded after retry")
			}
			return c.complete(ctx, key, target, stale, last, n), nil
		case OutcomeFatal:
			return nil, last.err
		}

		if n >= c.config.Retry.MaxAttempts {
			break
		}

		wait := c.config.Retry.waitFor(b, last.retryAfter)
		retriesTotal.WithLabelValues(string(last.class)).Inc()
		retryBackoffSeconds.WithLabelValues(string(last.class)).Observe(wait.Seconds())

		c.logger.Warn().
			Err(last.err).
			Str("url", target.String()).
			Str("error_class", string(last.class)).
			Int("attempt", n).
			Dur("backoff", wait).
			Bool("retry_after", last.retryAfter > 0).
			Msg("Retrying request after backoff")

		if err := sleep(ctx, wait); err != nil {
			c.logger.Warn().
				Str("error_class", string(last.class)).
				Int("attempt", n).
				Msg("Context cancelled during retry backoff")
			return nil, fmt.Errorf("fetch %s: %w", target, err)
		}
	}

	retryExhaustedTotal.WithLabelValues(string(last.class)).Inc()
	c.logger.Error().
		Err(last.err).
		Str("url", target.String()).
		Str("error_class", string(last.class)).
		Int("max_attempts", c.config.Retry.MaxAttempts).
		Msg("Retry attempts exhausted")

	return nil, &TransportError{
		Attempts:   c.config.Retry.MaxAttempts,
		ErrorClass: last.class,
		StatusCode: last.status,
		Err:        last.err,
	}
}

// pageURL merges params into the base URL's query.
func (c *Client) pageURL(params url.Values) *url.URL {
	u := *c.baseURL
	q := u.Query()
	for name, values := range params {
		q[name] = values
	}
	u.RawQuery = q.Encode()
	return &u
}

// do performs one HTTP round trip and classifies it.
func (c *Client) do(ctx context.Context, target *url.URL, stale *cache.CacheEntry) attempt {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return attempt{outcome: OutcomeFatal, err: fmt.Errorf("create request: %w", err)}
	}

	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")
	for name, value := range c.config.Headers {
		req.Header.Set(name, value)
	}
	if stale != nil {
		cache.AddConditionalHeaders(req, stale)
	}

	c.logger.Debug().Str("url", target.String()).Msg("Executing page request")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	requestDuration.WithLabelValues(c.config.Source).Observe(time.Since(start).Seconds())

	if err != nil {
		return c.networkFailure(ctx, target, err)
	}
	defer resp.Body.Close()

	body, err := c.readBody(resp.Body)
	if err != nil {
		if errors.Is(err, ErrBodyTooLarge) {
			return attempt{outcome: OutcomeFatal, err: fmt.Errorf("GET %s: %w", target, err)}
		}
		return c.networkFailure(ctx, target, fmt.Errorf("read body: %w", err))
	}

	requestsTotal.WithLabelValues(c.config.Source, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode == http.StatusNotModified && stale != nil {
		return attempt{outcome: OutcomeSuccess, status: resp.StatusCode, header: resp.Header}
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return attempt{outcome: OutcomeSuccess, status: resp.StatusCode, header: resp.Header, body: body}
	}

	class := classifyStatus(resp.StatusCode)
	if class != "" {
		errorsTotal.WithLabelValues(string(class)).Inc()
	}

	if shouldRetry(class) {
		a := attempt{
			outcome: OutcomeRetryable,
			class:   class,
			status:  resp.StatusCode,
			err:     fmt.Errorf("GET %s: %s", target, resp.Status),
		}
		if class == ErrorClassRateLimit {
			if d, ok := parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()); ok {
				a.retryAfter = d
			}
		}
		return a
	}

	c.logger.Error().
		Str("url", target.String()).
		Int("status", resp.StatusCode).
		Str("error_class", string(class)).
		Msg("Non-retryable HTTP status")

	excerpt := body
	if len(excerpt) > maxErrorBody {
		excerpt = excerpt[:maxErrorBody]
	}
	return attempt{
		outcome: OutcomeFatal,
		class:   class,
		status:  resp.StatusCode,
		err: &HTTPStatusError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			URL:        target.String(),
			Body:       string(excerpt),
		},
	}
}

// networkFailure classifies a transport-level error. Errors caused by the
// caller's context are fatal; everything else is retried.
func (c *Client) networkFailure(ctx context.Context, target *url.URL, err error) attempt {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return attempt{outcome: OutcomeFatal, class: ErrorClassNetwork, err: fmt.Errorf("fetch %s: %w", target, ctxErr)}
	}

	errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
	requestsTotal.WithLabelValues(c.config.Source, "network_error").Inc()
	return attempt{outcome: OutcomeRetryable, class: ErrorClassNetwork, err: err}
}

func (c *Client) readBody(r io.Reader) ([]byte, error) {
	if c.config.MaxBodyBytes <= 0 {
		return io.ReadAll(r)
	}

	body, err := io.ReadAll(io.LimitReader(r, c.config.MaxBodyBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > c.config.MaxBodyBytes {
		return nil, fmt.Errorf("%w: limit %d bytes", ErrBodyTooLarge, c.config.MaxBodyBytes)
	}
	return body, nil
}

// lookupCache returns the cached entry for key, or nil.
func (c *Client) lookupCache(ctx context.Context, key cache.CacheKey) *cache.CacheEntry {
	if c.config.Cache == nil {
		return nil
	}

	entry, err := c.config.Cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Warn().Err(err).Str("key", key.String()).Msg("Cache get error")
		}
		return nil
	}
	return entry
}

// complete builds the PageResponse of a successful attempt and updates the cache.
func (c *Client) complete(ctx context.Context, key cache.CacheKey, target *url.URL, stale *cache.CacheEntry, a attempt, attempts int) *PageResponse {
	resp := &PageResponse{
		URL:        target.String(),
		StatusCode: a.status,
		Header:     a.header,
		Body:       a.body,
		Attempts:   attempts,
	}

	if c.config.Cache == nil {
		return resp
	}

	var entry *cache.CacheEntry
	if a.status == http.StatusNotModified {
		cache.NotModified.Inc()
		cache.Refresh(stale, a.header, c.config.CacheTTL)
		entry = stale
		resp.StatusCode = stale.StatusCode
		resp.Body = stale.Data
		resp.FromCache = true
		c.logger.Debug().Str("url", target.String()).Msg("304 Not Modified - using cache")
	} else if a.status == http.StatusOK {
		entry = cache.ResponseToEntry(a.status, a.header, a.body, c.config.CacheTTL)
	}

	if entry != nil {
		if err := c.config.Cache.Set(ctx, key, entry); err != nil {
			c.logger.Warn().Err(err).Str("key", key.String()).Msg("Failed to cache page")
		}
	}

	return resp
}
