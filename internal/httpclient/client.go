// Package httpclient provides the outbound HTTP client used for CDN calls
// (artifact and geo). Requests are traced with OpenTelemetry and retried with
// exponential backoff on network errors and configurable status codes.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// DefaultRetryableStatus are the status codes retried when none are configured.
var DefaultRetryableStatus = []int{
	http.StatusRequestTimeout,
	http.StatusTooManyRequests,
	http.StatusInternalServerError,
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
	http.StatusGatewayTimeout,
}

// StatusError is returned when a retryable status persisted through every attempt.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d", e.StatusCode)
}

// Config tunes the client.
type Config struct {
	// Timeout bounds a single attempt.
	Timeout time.Duration
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// RetryableStatus lists status codes that trigger a retry.
	RetryableStatus []int
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Client performs retried GET requests.
type Client struct {
	logger *slog.Logger
	http   *http.Client
	config Config
}

// New creates a client. When base is nil a new http.Client is created; its
// transport is always wrapped for tracing.
func New(logger *slog.Logger, cfg Config, base *http.Client) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.RetryableStatus) == 0 {
		cfg.RetryableStatus = DefaultRetryableStatus
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 500 * time.Millisecond
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = cfg.InitialBackoff
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	client := &http.Client{Timeout: cfg.Timeout}
	if base != nil {
		clone := *base
		client = &clone
	}
	transport := client.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	client.Transport = otelhttp.NewTransport(transport)

	return &Client{
		logger: logger,
		http:   client,
		config: cfg,
	}
}

// Get issues a GET request, retrying transient failures. Non-retryable
// statuses (including 304 and 403) are returned to the caller as a Response.
func (c *Client) Get(ctx context.Context, url string, header http.Header) (*Response, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.config.InitialBackoff
	b.MaxInterval = c.config.MaxBackoff

	attempt := 0
	operation := func() (*Response, error) {
		attempt++
		return c.do(ctx, url, header)
	}

	resp, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(c.config.MaxRetries+1)),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.Debug("retrying request",
				slog.String("url", url),
				slog.Int("attempt", attempt),
				slog.Int("max_retries", c.config.MaxRetries),
				slog.Duration("backoff", next),
				slog.String("error", err.Error()),
			)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("GET %s failed after %d attempt(s): %w", url, attempt, err)
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, url string, header http.Header) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	for k, values := range header {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, backoff.Permanent(ctxErr)
		}
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if slices.Contains(c.config.RetryableStatus, resp.StatusCode) {
		statusErr := &StatusError{StatusCode: resp.StatusCode}
		if secs, convErr := strconv.Atoi(resp.Header.Get("Retry-After")); convErr == nil && secs > 0 {
			c.logger.Debug("server requested retry delay", slog.Int("seconds", secs))
			return nil, errors.Join(statusErr, backoff.RetryAfter(secs))
		}
		return nil, statusErr
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       body,
	}, nil
}
