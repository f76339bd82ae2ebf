package testutil

import (
	"testing"
	"time"

	"github.com/Sternrassler/plex-added-date/pkg/client"
	"github.com/rs/zerolog"
)

// FastRetryPolicy retries every transient class three times with
// millisecond backoffs.
func FastRetryPolicy() client.RetryPolicy {
	cfg := client.RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
	return client.RetryPolicy{Server: cfg, RateLimit: cfg, Network: cfg}
}

// NewPlexClient returns a transport client pointed at m with a fast retry
// policy and logging disabled.
func NewPlexClient(t *testing.T, m *MockPlex, token string) *client.Client {
	t.Helper()

	logger := zerolog.Nop()
	cfg := client.DefaultConfig(m.URL(), token)
	cfg.Retry = FastRetryPolicy()
	cfg.Logger = &logger

	c, err := client.New(cfg)
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}
	return c
}
