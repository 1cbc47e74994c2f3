// Package ratelimit paces outgoing requests to a fixed minimum interval.
//
// The harvester does not discover server-side limits; the interval is
// configuration (the rate_limit delay in milliseconds).
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

var pacingWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "harvester_pacing_wait_seconds",
	Help:    "Time spent waiting for the request pacer",
	Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
})

// Pacer spaces requests at least Delay apart. A nil Pacer never waits.
type Pacer struct {
	limiter *rate.Limiter
	delay   time.Duration
	logger  zerolog.Logger
}

// NewPacer returns a Pacer allowing one request per delay. A delay of zero
// or less disables pacing.
func NewPacer(delay time.Duration, logger zerolog.Logger) *Pacer {
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	return &Pacer{
		limiter: rate.NewLimiter(limit, 1),
		delay:   delay,
		logger:  logger,
	}
}

// Delay returns the configured interval.
func (p *Pacer) Delay() time.Duration {
	if p == nil {
		return 0
	}
	return p.delay
}

// Wait blocks until the next request may be sent or ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil || p.delay <= 0 {
		return nil
	}

	start := time.Now()
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("pacer wait: %w", err)
	}

	waited := time.Since(start)
	pacingWaitSeconds.Observe(waited.Seconds())
	if waited > time.Millisecond {
		p.logger.Debug().Dur("waited", waited).Msg("Request paced")
	}
	return nil
}
