// Package ratelimit spaces out mutation calls against a Plex server.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	throttleWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "plexdate_throttle_wait_seconds",
		Help:    "Time spent waiting between mutation calls",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	})

	throttleInterruptedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "plexdate_throttle_interrupted_total",
		Help: "Total number of throttle waits cut short by cancellation",
	})
)

// Config sets the spacing between calls. When both fields are set the
// larger resulting delay wins. Zero or negative values disable a field.
type Config struct {
	// Delay is a fixed pause between calls
	Delay time.Duration
	// PerMinute caps the call rate, 120 means one call every 500ms
	PerMinute float64
}

// Interval returns the effective pause between calls.
func (c Config) Interval() time.Duration {
	delay := c.Delay
	if delay < 0 {
		delay = 0
	}
	if c.PerMinute > 0 {
		if perCall := time.Duration(float64(time.Minute) / c.PerMinute); perCall > delay {
			delay = perCall
		}
	}
	return delay
}

// Limiter blocks callers so that consecutive calls are at least Delay apart.
// The first call after New or Reset never waits.
type Limiter struct {
	delay time.Duration

	mu      sync.Mutex
	started bool
}

// New creates a limiter from cfg.
func New(cfg Config) *Limiter {
	return &Limiter{delay: cfg.Interval()}
}

// Delay returns the pause applied before every call but the first.
func (l *Limiter) Delay() time.Duration {
	return l.delay
}

// Wait blocks for Delay unless this is the first call. It returns ctx.Err()
// if ctx is done first.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	first := !l.started
	l.started = true
	l.mu.Unlock()

	if first || l.delay <= 0 {
		return nil
	}

	start := time.Now()
	timer := time.NewTimer(l.delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		throttleInterruptedTotal.Inc()
		throttleWaitSeconds.Observe(time.Since(start).Seconds())
		return ctx.Err()
	case <-timer.C:
		throttleWaitSeconds.Observe(l.delay.Seconds())
		return nil
	}
}

// Reset makes the next Wait return immediately again.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.started = false
}
