// Package httpclient provides the outbound HTTP client used for the hosted image
// model API, with context deadlines, default headers and observability hooks.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/tphakala/iconforge/internal/errors"
)

const (
	// DefaultTimeout is applied when the request context has no deadline.
	DefaultTimeout = 30 * time.Second

	defaultMaxIdleConns        = 100
	defaultMaxIdleConnsPerHost = 10
	defaultIdleConnTimeout     = 90 * time.Second

	defaultTLSHandshakeTimeout   = 10 * time.Second
	defaultResponseHeaderTimeout = 30 * time.Second
	defaultDialTimeout           = 30 * time.Second
	defaultDialKeepAlive         = 30 * time.Second

	defaultUserAgent = "IconForge"

	// maxErrorBodySize caps how much of a non-2xx body is kept for error messages
	maxErrorBodySize = 4096
)

// Client wraps http.Client with per-request deadlines, default headers and hooks.
// Safe for concurrent use.
type Client struct {
	client         *http.Client
	defaultTimeout time.Duration
	userAgent      string
	headers        http.Header

	hookMu        sync.RWMutex
	beforeRequest func(*http.Request)
	afterResponse func(*http.Request, *http.Response, error)
}

// Config holds configuration for creating an HTTP client.
type Config struct {
	// DefaultTimeout is the timeout applied if request context has no deadline
	DefaultTimeout time.Duration

	// UserAgent is added to all requests
	UserAgent string

	// Headers are set on every request that does not already carry them
	Headers http.Header

	MaxIdleConns          int
	MaxIdleConnsPerHost   int
	IdleConnTimeout       time.Duration
	TLSHandshakeTimeout   time.Duration
	ResponseHeaderTimeout time.Duration

	// Transport replaces the tuned default transport, used by tests
	Transport http.RoundTripper
}

// DefaultConfig returns a Config with production defaults.
func DefaultConfig() Config {
	return Config{
		DefaultTimeout:        DefaultTimeout,
		UserAgent:             defaultUserAgent,
		MaxIdleConns:          defaultMaxIdleConns,
		MaxIdleConnsPerHost:   defaultMaxIdleConnsPerHost,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   defaultTLSHandshakeTimeout,
		ResponseHeaderTimeout: defaultResponseHeaderTimeout,
	}
}

// New creates a new HTTP client. A nil cfg uses DefaultConfig; the caller's
// config is not mutated.
func New(cfg *Config) *Client {
	c := DefaultConfig()
	if cfg != nil {
		c = withDefaults(*cfg)
	}

	transport := c.Transport
	if transport == nil {
		transport = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   defaultDialTimeout,
				KeepAlive: defaultDialKeepAlive,
			}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          c.MaxIdleConns,
			MaxIdleConnsPerHost:   c.MaxIdleConnsPerHost,
			IdleConnTimeout:       c.IdleConnTimeout,
			TLSHandshakeTimeout:   c.TLSHandshakeTimeout,
			ResponseHeaderTimeout: c.ResponseHeaderTimeout,
		}
	}

	headers := make(http.Header, len(c.Headers))
	maps.Copy(headers, c.Headers)

	return &Client{
		client:         &http.Client{Transport: transport},
		defaultTimeout: c.DefaultTimeout,
		userAgent:      c.UserAgent,
		headers:        headers,
	}
}

func withDefaults(c Config) Config {
	d := DefaultConfig()
	if c.DefaultTimeout == 0 {
		c.DefaultTimeout = d.DefaultTimeout
	}
	if c.UserAgent == "" {
		c.UserAgent = d.UserAgent
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = d.MaxIdleConns
	}
	if c.MaxIdleConnsPerHost == 0 {
		c.MaxIdleConnsPerHost = d.MaxIdleConnsPerHost
	}
	if c.IdleConnTimeout == 0 {
		c.IdleConnTimeout = d.IdleConnTimeout
	}
	if c.TLSHandshakeTimeout == 0 {
		c.TLSHandshakeTimeout = d.TLSHandshakeTimeout
	}
	if c.ResponseHeaderTimeout == 0 {
		c.ResponseHeaderTimeout = d.ResponseHeaderTimeout
	}
	return c
}

// HTTPClient exposes the underlying client, e.g. for httpmock.ActivateNonDefault.
func (c *Client) HTTPClient() *http.Client {
	return c.client
}

// Do executes an HTTP request. When ctx has no deadline the default timeout is
// applied. The response body must be closed by the caller if err is nil.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.Newf("nil request").Category(errors.CategoryHTTP).Build()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline && c.defaultTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.defaultTimeout)
		// the body outlives Do, so cancel when it is closed
		req = req.WithContext(ctx)
		resp, err := c.execute(req)
		if err != nil {
			cancel()
			return nil, err
		}
		resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
		return resp, nil
	}

	return c.execute(req.WithContext(ctx))
}

func (c *Client) execute(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" && c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	for key, values := range c.headers {
		if req.Header.Get(key) == "" && len(values) > 0 {
			req.Header.Set(key, values[0])
		}
	}

	c.hookMu.RLock()
	beforeHook := c.beforeRequest
	c.hookMu.RUnlock()
	if beforeHook != nil {
		beforeHook(req)
	}

	resp, err := c.client.Do(req)

	c.hookMu.RLock()
	afterHook := c.afterResponse
	c.hookMu.RUnlock()
	if afterHook != nil {
		afterHook(req, resp, err)
	}

	return resp, err
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	defer c.cancel()
	return c.ReadCloser.Close()
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create GET request: %w", err)
	}
	return c.Do(ctx, req)
}

// Post performs a POST request. body may be nil, an io.Reader, []byte, string,
// or any value which is then marshaled to JSON.
func (c *Client) Post(ctx context.Context, url, contentType string, body any) (*http.Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	bodyReader, isJSON, err := encodeBody(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create POST request: %w", err)
	}

	switch {
	case contentType != "":
		req.Header.Set("Content-Type", contentType)
	case isJSON:
		req.Header.Set("Content-Type", "application/json")
	}

	return c.Do(ctx, req)
}

func encodeBody(body any) (io.Reader, bool, error) {
	switch v := body.(type) {
	case nil:
		return http.NoBody, false, nil
	case io.Reader:
		return v, false, nil
	case []byte:
		return bytes.NewReader(v), false, nil
	case string:
		return strings.NewReader(v), false, nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, false, fmt.Errorf("failed to marshal body: %w", err)
		}
		return bytes.NewReader(data), true, nil
	}
}

// StatusError is returned by DoJSON for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected HTTP status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected HTTP status %d: %s", e.StatusCode, e.Body)
}

// DoJSON sends a request with an optional JSON body and decodes a JSON response
// into out. Non-2xx responses return a *StatusError wrapped in an enhanced error;
// 429 is categorized as a limit error.
func (c *Client) DoJSON(ctx context.Context, method, url string, body, out any) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var bodyReader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", method, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.Do(ctx, req)
	if err != nil {
		category := errors.CategoryNetwork
		if ctx.Err() != nil {
			category = errors.CategoryTimeout
			if errors.Is(ctx.Err(), context.Canceled) {
				category = errors.CategoryCancellation
			}
		}
		return errors.New(err).
			Category(category).
			Context("method", method).
			Context("url_category", urlHost(url)).
			Timing("http-request", time.Since(start)).
			Build()
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		statusErr := &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
		category := errors.CategoryHTTP
		if resp.StatusCode == http.StatusTooManyRequests {
			category = errors.CategoryLimit
		}
		return errors.New(statusErr).
			Category(category).
			Context("method", method).
			Context("status_code", resp.StatusCode).
			Build()
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.New(err).
			Category(errors.CategoryHTTP).
			Context("operation", "decode-response").
			Build()
	}
	return nil
}

func urlHost(raw string) string {
	rest, ok := strings.CutPrefix(raw, "https://")
	if !ok {
		rest, _ = strings.CutPrefix(raw, "http://")
	}
	host, _, _ := strings.Cut(rest, "/")
	return host
}

// SetBeforeRequestHook sets a function called before each request.
func (c *Client) SetBeforeRequestHook(fn func(*http.Request)) {
	c.hookMu.Lock()
	defer c.hookMu.Unlock()
	c.beforeRequest = fn
}

// SetAfterResponseHook sets a function called after each request.
func (c *Client) SetAfterResponseHook(fn func(*http.Request, *http.Response, error)) {
	c.hookMu.Lock()
	defer c.hookMu.Unlock()
	c.afterResponse = fn
}

// Close closes idle connections in the connection pool.
func (c *Client) Close() {
	c.client.CloseIdleConnections()
}
