package client

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for retry operations.
var (
	plexRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "plex_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	plexRetryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "plex_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16},
	}, []string{"error_class"})

	plexRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "plex_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the initial request).
	MaxAttempts int

	// InitialBackoff is the initial backoff duration.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum backoff duration.
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff.
	BackoffMultiplier float64
}

// RetryPolicy groups the per-class retry settings with a ceiling on the
// total time spent sleeping for a single request.
type RetryPolicy struct {
	Server    RetryConfig
	RateLimit RetryConfig
	Network   RetryConfig

	// MaxTotalWait bounds the sum of all backoffs. Zero disables the bound.
	MaxTotalWait time.Duration
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       4,
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        8 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// DefaultRetryPolicy returns the policy used when Config.Retry is zero.
func DefaultRetryPolicy() RetryPolicy {
	rateLimit := DefaultRetryConfig()
	// 429 means the server asked us to slow down, start further out
	rateLimit.InitialBackoff = 1 * time.Second

	return RetryPolicy{
		Server:       DefaultRetryConfig(),
		RateLimit:    rateLimit,
		Network:      DefaultRetryConfig(),
		MaxTotalWait: 30 * time.Second,
	}
}

// ForClass returns the retry configuration for an error class.
func (p RetryPolicy) ForClass(errorClass ErrorClass) RetryConfig {
	var cfg RetryConfig
	switch errorClass {
	case ErrorClassServer:
		cfg = p.Server
	case ErrorClassRateLimit:
		cfg = p.RateLimit
	case ErrorClassNetwork:
		cfg = p.Network
	default:
		return RetryConfig{MaxAttempts: 1}
	}
	return cfg.normalized()
}

func (p RetryPolicy) isZero() bool {
	return p == RetryPolicy{}
}

func (c RetryConfig) normalized() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.BackoffMultiplier < 1 {
		c.BackoffMultiplier = 2.0
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = c.InitialBackoff
	}
	return c
}

// backoffFor returns the un-jittered wait after the given failed attempt.
func (c RetryConfig) backoffFor(attempt int) time.Duration {
	backoff := float64(c.InitialBackoff) * math.Pow(c.BackoffMultiplier, float64(attempt-1))
	if backoff > float64(c.MaxBackoff) {
		return c.MaxBackoff
	}
	return time.Duration(backoff)
}

// retryWithBackoff executes fn until it succeeds, returns a non-retriable
// error, or the attempt or wait budget for the error's class runs out.
// It respects context cancellation and adds jitter to prevent thundering herd.
func retryWithBackoff(ctx context.Context, policy RetryPolicy, logger zerolog.Logger, fn func() error, classify func(error) ErrorClass) error {
	var (
		lastErr   error
		lastClass ErrorClass
		waited    time.Duration
		attempt   int
	)

	for attempt = 1; ; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 1 {
				logger.Info().
					Str("error_class", string(lastClass)).
					Int("attempt", attempt).
					Msg("Request succeeded after retry")
			}
			return nil
		}

		lastErr = err
		lastClass = classify(err)

		if !shouldRetry(lastClass) {
			return lastErr
		}

		config := policy.ForClass(lastClass)
		if attempt >= config.MaxAttempts {
			break
		}

		wait := jitter(config.backoffFor(attempt))
		var remoteErr *RemoteError
		if errors.As(err, &remoteErr) && remoteErr.RetryAfter > 0 {
			wait = min(remoteErr.RetryAfter, config.MaxBackoff)
		}

		if policy.MaxTotalWait > 0 && waited+wait > policy.MaxTotalWait {
			logger.Warn().
				Str("error_class", string(lastClass)).
				Dur("waited", waited).
				Msg("Retry wait budget exhausted")
			break
		}

		plexRetriesTotal.WithLabelValues(string(lastClass)).Inc()
		plexRetryBackoffSeconds.WithLabelValues(string(lastClass)).Observe(wait.Seconds())

		logger.Warn().
			Err(err).
			Str("error_class", string(lastClass)).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Msg("Retrying request after backoff")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Warn().
				Str("error_class", string(lastClass)).
				Int("attempt", attempt).
				Msg("Context cancelled during retry backoff")
			return fmt.Errorf("%w: %w", ErrContextCancelled, ctx.Err())
		case <-timer.C:
		}
		waited += wait
	}

	plexRetryExhaustedTotal.WithLabelValues(string(lastClass)).Inc()
	logger.Error().
		Err(lastErr).
		Str("error_class", string(lastClass)).
		Int("attempts", attempt).
		Msg("Retry attempts exhausted")

	return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, attempt, lastErr)
}

// jitter spreads d by ±20%.
func jitter(d time.Duration) time.Duration {
	return time.Duration(float64(d) * (0.8 + rand.Float64()*0.4))
}
