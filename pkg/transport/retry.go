package transport

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jpillora/backoff"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for retry operations.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvester_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "harvester_retry_backoff_seconds",
		Help:    "Wait before each retry by error class",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"error_class"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvester_retry_exhausted_total",
		Help: "Total number of fetches that exhausted their attempts by error class",
	}, []string{"error_class"})
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the initial request).
	MaxAttempts int

	// InitialBackoff is the wait before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff caps the exponential curve.
	MaxBackoff time.Duration

	// BackoffMultiplier is the growth factor of the curve.
	BackoffMultiplier float64

	// MaxRetryAfter caps a server-provided Retry-After wait.
	MaxRetryAfter time.Duration
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       4,
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
		MaxRetryAfter:     2 * time.Minute,
	}
}

// newBackoff returns the jittered exponential curve for one fetch.
func (rc RetryConfig) newBackoff() *backoff.Backoff {
	return &backoff.Backoff{
		Min:    rc.InitialBackoff,
		Max:    rc.MaxBackoff,
		Factor: rc.BackoffMultiplier,
		Jitter: true,
	}
}

// waitFor picks the delay before the next attempt: Retry-After when the
// server sent one (capped), otherwise the next step of the curve.
func (rc RetryConfig) waitFor(b *backoff.Backoff, retryAfter time.Duration) time.Duration {
	next := b.Duration()
	if retryAfter > 0 {
		if rc.MaxRetryAfter > 0 && retryAfter > rc.MaxRetryAfter {
			return rc.MaxRetryAfter
		}
		return retryAfter
	}
	return next
}

// parseRetryAfter reads a Retry-After value in delay-seconds or HTTP-date form.
func parseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}

	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}

	if t, err := http.ParseTime(value); err == nil {
		d := t.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, true
	}

	return 0, false
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
