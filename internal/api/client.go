package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Custom Error Types
var (
	ErrRateLimited  = errors.New("API rate limit exceeded")
	ErrUnauthorized = errors.New("API request unauthorized (check API key)")
	ErrNotFound     = errors.New("API resource not found")
	ErrServerError  = errors.New("API server error")
	ErrHttpStatus   = errors.New("unexpected HTTP status code")
	ErrHttpRequest  = errors.New("HTTP request creation/execution error")
	ErrDecode       = errors.New("unexpected response shape")
)

const (
	DefaultUserAgent       = "PRF Media Downloader/1.0 (+https://example.local) go-http"
	DefaultRequestTimeout  = 20 * time.Second
	DefaultMaxRetries      = 5
	DefaultInitialBackoff  = 600 * time.Millisecond
	DefaultMaxIdleConns    = 100
	maxJSONResponseBytes   = 32 << 20
	defaultMaxRetryBackoff = 30 * time.Second
)

// ClientOptions is the declarative retry/timeout/pool policy for the shared client.
type ClientOptions struct {
	UserAgent      string
	APILogPath     string // empty disables request/response dumping
	RequestTimeout time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxIdleConns   int
	Tracing        bool
	// Base overrides the pooled transport (tests).
	Base http.RoundTripper
}

// Client is the one HTTP client shared by every adapter and download worker.
// It holds no per-call mutable state.
type Client struct {
	httpClient     *http.Client
	transport      http.RoundTripper
	logging        *LoggingTransport
	requestTimeout time.Duration
	userAgent      string
}

// NewClient builds the shared client. The transport chain is, outermost first:
// tracing, retry, user agent, optional API logging, pooled transport.
func NewClient(opts ClientOptions) (*Client, error) {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = DefaultInitialBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = defaultMaxRetryBackoff
	}
	if opts.MaxIdleConns <= 0 {
		opts.MaxIdleConns = DefaultMaxIdleConns
	}

	base := opts.Base
	if base == nil {
		base = newPooledTransport(opts.MaxIdleConns)
	}

	c := &Client{requestTimeout: opts.RequestTimeout, userAgent: opts.UserAgent}

	var rt http.RoundTripper = base
	if opts.APILogPath != "" {
		lt, err := NewLoggingTransport(rt, opts.APILogPath)
		if err != nil {
			return nil, err
		}
		c.logging = lt
		rt = lt
		log.Debugf("API request logging enabled, writing to %s", opts.APILogPath)
	}
	rt = &userAgentTransport{next: rt, userAgent: opts.UserAgent}
	rt = &RetryTransport{
		Next:           rt,
		MaxRetries:     opts.MaxRetries,
		InitialBackoff: opts.InitialBackoff,
		MaxBackoff:     opts.MaxBackoff,
	}
	if opts.Tracing {
		rt = otelhttp.NewTransport(rt)
	}

	c.transport = rt
	c.httpClient = &http.Client{Transport: rt}
	log.Debugf("HTTP client ready (retries=%d, backoff=%s, timeout=%s)", opts.MaxRetries, opts.InitialBackoff, opts.RequestTimeout)
	return c, nil
}

func newPooledTransport(maxIdle int) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   15 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          maxIdle,
		MaxIdleConnsPerHost:   maxIdle,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// HTTPClient returns the shared client. It has no overall timeout; callers
// bound each call with a context.
func (c *Client) HTTPClient() *http.Client { return c.httpClient }

// ScrapeClient returns a client sharing the pooled transport with a per-request
// timeout, for callers that cannot pass a context.
func (c *Client) ScrapeClient() *http.Client {
	return &http.Client{Transport: c.transport, Timeout: c.requestTimeout}
}

// UserAgent is the User-Agent sent with every request.
func (c *Client) UserAgent() string { return c.userAgent }

// Close releases the API log file, if any.
func (c *Client) Close() error {
	if c.logging == nil {
		return nil
	}
	return c.logging.Close()
}

// StatusError maps a non-success HTTP status onto one of the package errors.
func StatusError(status int, reqURL string) error {
	switch {
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status %d from %s", ErrRateLimited, status, reqURL)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: status %d from %s", ErrUnauthorized, status, reqURL)
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: status %d from %s", ErrNotFound, status, reqURL)
	case status >= 500:
		return fmt.Errorf("%w: status %d from %s", ErrServerError, status, reqURL)
	default:
		return fmt.Errorf("%w: status %d from %s", ErrHttpStatus, status, reqURL)
	}
}

// GetJSON performs a GET bounded by the request timeout and decodes a JSON
// body into out.
func (c *Client) GetJSON(ctx context.Context, reqURL string, headers map[string]string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("%w: creating request for %s: %w", ErrHttpRequest, reqURL, err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: performing request for %s: %w", ErrHttpRequest, reqURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return StatusError(resp.StatusCode, reqURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJSONResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: reading response from %s: %w", ErrHttpRequest, reqURL, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decoding response from %s: %w", ErrDecode, reqURL, err)
	}
	return nil
}

type userAgentTransport struct {
	next      http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") != "" {
		return t.next.RoundTrip(req)
	}
	clone := req.Clone(req.Context())
	clone.Header.Set("User-Agent", t.userAgent)
	return t.next.RoundTrip(clone)
}
