// Package fetcher retrieves remote JSON documents over HTTP GET.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hrygo/fairway/internal/profile"
	"github.com/hrygo/fairway/server/internal/observability"
)

// MaxBodySize bounds a response body. Larger bodies fail the fetch.
const MaxBodySize = 32 << 20

// Config holds the fetcher configuration
type Config struct {
	// Timeout is the HTTP timeout for one request, including reading the body
	Timeout time.Duration
	// RatePerSecond is the sustained request rate allowed per origin host
	RatePerSecond float64
	// Burst is the number of requests allowed above the sustained rate
	Burst int
	// UserAgent is sent with every request
	UserAgent string
}

// DefaultConfig returns the default fetcher configuration
func DefaultConfig() *Config {
	return &Config{
		Timeout:       15 * time.Second,
		RatePerSecond: 5,
		Burst:         10,
		UserAgent:     "fairway",
	}
}

// ConfigFromProfile creates fetcher config from the profile tuning knobs
func ConfigFromProfile(p *profile.Profile) *Config {
	config := DefaultConfig()
	if p == nil {
		return config
	}
	if p.Tuning.HTTPTimeout > 0 {
		config.Timeout = p.Tuning.HTTPTimeout
	}
	config.RatePerSecond = p.Tuning.FetchRate
	if p.Tuning.FetchBurst > 0 {
		config.Burst = p.Tuning.FetchBurst
	}
	if p.Version != "" {
		config.UserAgent = "fairway/" + p.Version
	}
	return config
}

// StatusError reports a non-2xx response.
type StatusError struct {
	StatusCode int
	Location   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.Location, e.StatusCode)
}

// Client fetches remote documents.
type Client struct {
	config     *Config
	httpClient *http.Client
	limiter    *RateLimiter
}

// NewClient creates a new fetcher client
func NewClient(config *Config) *Client {
	if config == nil {
		config = DefaultConfig()
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		limiter: NewRateLimiter(config.RatePerSecond, config.Burst),
	}
}

// Fetch issues exactly one GET for location and returns the body of a 2xx response.
func (c *Client) Fetch(ctx context.Context, location string) ([]byte, error) {
	u, err := url.Parse(location)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid location %q", location)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Errorf("unsupported scheme %q in location %q", u.Scheme, location)
	}

	ctx, span := observability.Tracer().Start(ctx, "fetcher.Fetch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("http.url", location)),
	)
	defer span.End()

	if err := c.limiter.Wait(ctx, u.Host); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "rate limit wait")
		return nil, errors.Wrap(err, "rate limit wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return nil, errors.Wrapf(err, "GET %s", location)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		statusErr := &StatusError{StatusCode: resp.StatusCode, Location: location}
		span.SetStatus(codes.Error, statusErr.Error())
		return nil, statusErr
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize+1))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read body")
		return nil, errors.Wrap(err, "failed to read response")
	}
	if len(body) > MaxBodySize {
		span.SetStatus(codes.Error, "body too large")
		return nil, errors.Errorf("GET %s: response exceeds %d bytes", location, MaxBodySize)
	}
	span.SetAttributes(attribute.Int("http.response_size", len(body)))
	return body, nil
}
