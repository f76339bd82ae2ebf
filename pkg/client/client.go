// Package client provides the authenticated Plex HTTP transport with
// classified retry and exponential backoff.
package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for Plex client operations.
var (
	plexRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "plex_requests_total",
		Help: "Total Plex requests by endpoint and status",
	}, []string{"endpoint", "status"})

	plexRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "plex_request_duration_seconds",
		Help:    "Plex request duration in seconds by endpoint",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	plexErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "plex_errors_total",
		Help: "Total Plex errors by class",
	}, []string{"class"})
)

// ErrorClass represents a classification of request failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors other than 429.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 Too Many Requests.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassCanceled represents a request aborted by its caller's context.
	ErrorClassCanceled ErrorClass = "canceled"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "plexdate/1.0"
	clientIdentifier = "plexdate-cli"
)

// Client is a resilient, authenticated transport to a Plex server. It knows
// nothing about items or selections.
type Client struct {
	httpClient *http.Client
	baseURL    string
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL of the server, e.g. http://192.168.1.10:32400 (REQUIRED)
	BaseURL string

	// Token sent as X-Plex-Token (REQUIRED)
	Token string

	// UserAgent header, defaults to plexdate/1.0
	UserAgent string

	// Timeout bounds each individual HTTP attempt
	Timeout time.Duration

	// Retry policy for transient failures; zero value means DefaultRetryPolicy
	Retry RetryPolicy

	// HTTPClient overrides the underlying client (for testing)
	HTTPClient *http.Client

	// Logger overrides the component logger
	Logger *zerolog.Logger
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(baseURL, token string) Config {
	return Config{
		BaseURL:   baseURL,
		Token:     token,
		UserAgent: defaultUserAgent,
		Timeout:   defaultTimeout,
		Retry:     DefaultRetryPolicy(),
	}
}

// Response is a fully read Plex response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// New creates a new Plex client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("token is required")
	}

	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", cfg.BaseURL)
	}

	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Retry.isZero() {
		cfg.Retry = DefaultRetryPolicy()
	}

	logger := log.With().Str("component", "plex-client").Logger()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		config:     cfg,
		logger:     logger,
	}, nil
}

// BaseURL returns the normalized server URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Token returns the configured authentication token.
func (c *Client) Token() string {
	return c.config.Token
}

// Get performs a GET request against a server path.
func (c *Client) Get(ctx context.Context, path string, params url.Values) (*Response, error) {
	return c.Do(ctx, http.MethodGet, path, params)
}

// Put performs a PUT request against a server path. Plex takes all edit
// parameters in the query string, so no body is sent.
func (c *Client) Put(ctx context.Context, path string, params url.Values) (*Response, error) {
	return c.Do(ctx, http.MethodPut, path, params)
}

// Do performs a request with retry, classification and metrics.
// Non-retriable 4xx responses return a *RemoteError immediately; transient
// failures surface wrapped in ErrRetryExhausted once the policy gives up.
func (c *Client) Do(ctx context.Context, method, path string, params url.Values) (*Response, error) {
	endpoint := path

	startTime := time.Now()
	defer func() {
		plexRequestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("method", method).
		Msg("Executing Plex request")

	var (
		result   *Response
		errClass ErrorClass
	)

	err := retryWithBackoff(ctx, c.config.Retry, c.logger, func() error {
		errClass = ""
		req, err := http.NewRequestWithContext(ctx, method, reqURL, nil)
		if err != nil {
			errClass = ErrorClassClient
			return fmt.Errorf("create request: %w", err)
		}
		c.setHeaders(req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				errClass = ErrorClassCanceled
				return fmt.Errorf("%s %s: %w", method, endpoint, ctx.Err())
			}
			errClass = ErrorClassNetwork
			plexErrorsTotal.WithLabelValues(string(errClass)).Inc()
			plexRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
			c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("HTTP request failed")
			return fmt.Errorf("%s %s: %w", method, endpoint, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			errClass = ErrorClassNetwork
			plexErrorsTotal.WithLabelValues(string(errClass)).Inc()
			return fmt.Errorf("read response body: %w", err)
		}

		plexRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

		if resp.StatusCode >= 400 {
			errClass = classifyStatus(resp.StatusCode)
			plexErrorsTotal.WithLabelValues(string(errClass)).Inc()

			c.logger.Warn().
				Str("endpoint", endpoint).
				Int("status", resp.StatusCode).
				Str("error_class", string(errClass)).
				Msg("Plex request error")

			return &RemoteError{
				StatusCode: resp.StatusCode,
				ErrorClass: errClass,
				Message:    resp.Status,
				RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			}
		}

		result = &Response{
			StatusCode: resp.StatusCode,
			Header:     resp.Header.Clone(),
			Body:       body,
		}
		return nil
	}, func(error) ErrorClass {
		return errClass
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Plex-Token", c.config.Token)
	req.Header.Set("X-Plex-Client-Identifier", clientIdentifier)
	req.Header.Set("X-Plex-Product", "plexdate")
	req.Header.Set("User-Agent", c.config.UserAgent)
}

// classifyStatus categorizes an HTTP error status.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case status >= 500:
		return ErrorClassServer
	default:
		return ErrorClassClient
	}
}

// parseRetryAfter understands the delay-seconds form of Retry-After.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
