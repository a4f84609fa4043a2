package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"github.com/laudofy/laudofy/internal/credentials"
	"github.com/laudofy/laudofy/internal/logger"
	"github.com/laudofy/laudofy/internal/telemetry"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/publicsuffix"
)

const (
	tracerName       = "github.com/laudofy/laudofy/internal/client"
	maxResponseBytes = 32 << 20
)

// Config holds common client configuration
type Config struct {
	ServerURL string
	Timeout   time.Duration
	Debug     bool
	// Cache enables the HTTP cache for cacheable GET responses.
	Cache    bool
	CacheDir string
}

// DefaultConfig returns a default client configuration
func DefaultConfig() Config {
	return Config{
		ServerURL: "http://localhost:3000/api",
		Timeout:   30 * time.Second,
	}
}

// SessionExpirer is told when the session cannot be recovered. It must
// clear the credentials and send the user to the login view.
type SessionExpirer interface {
	Expire(ctx context.Context)
}

// Option configures a Client.
type Option func(*Client)

// WithSessionExpirer sets the component notified on unrecoverable auth
// failures.
func WithSessionExpirer(e SessionExpirer) Option {
	return func(c *Client) {
		c.expirer = e
	}
}

// WithTransport replaces the base round tripper.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.base = rt
	}
}

// Client is the single path through which backend calls are made. It
// attaches the bearer and CSRF credentials, recovers once from a stale CSRF
// token, and classifies failures. It is safe for concurrent use.
type Client struct {
	cfg        Config
	baseURL    *url.URL
	base       http.RoundTripper
	httpClient *http.Client
	store      credentials.Store
	csrf       *CSRFCoordinator
	expirer    SessionExpirer
	tracer     trace.Tracer
}

// New creates a Client for cfg.ServerURL backed by store.
func New(cfg Config, store credentials.Store, opts ...Option) (*Client, error) {
	if cfg.ServerURL == "" {
		return nil, errors.New("server URL is required")
	}

	baseURL, err := url.Parse(cfg.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	if baseURL.Scheme != "http" && baseURL.Scheme != "https" {
		return nil, fmt.Errorf("invalid server URL scheme: %q", baseURL.Scheme)
	}

	c := &Client{
		cfg:     cfg,
		baseURL: baseURL,
		base:    http.DefaultTransport,
		store:   store,
		tracer:  otel.Tracer(tracerName),
	}

	for _, opt := range opts {
		opt(c)
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	rt := c.base
	if cfg.Cache {
		rt = NewCachingTransport(cfg.CacheDir, rt)
	}

	c.httpClient = &http.Client{
		Timeout:   cfg.Timeout,
		Transport: logger.NewRequestLogger(log.Logger, rt),
		Jar:       jar,
	}
	c.csrf = NewCSRFCoordinator(c.httpClient, baseURL, store)

	return c, nil
}

// CSRF returns the client's CSRF coordinator.
func (c *Client) CSRF() *CSRFCoordinator {
	return c.csrf
}

// BaseURL returns the backend base URL.
func (c *Client) BaseURL() *url.URL {
	u := *c.baseURL
	return &u
}

// Get issues a GET. Query parameters are passed with WithQuery.
func (c *Client) Get(ctx context.Context, path string, out any, opts ...RequestOption) error {
	return c.call(ctx, http.MethodGet, path, nil, out, opts)
}

// Post issues a POST with payload JSON encoded.
func (c *Client) Post(ctx context.Context, path string, payload, out any, opts ...RequestOption) error {
	return c.call(ctx, http.MethodPost, path, payload, out, opts)
}

// Put issues a PUT with payload JSON encoded.
func (c *Client) Put(ctx context.Context, path string, payload, out any, opts ...RequestOption) error {
	return c.call(ctx, http.MethodPut, path, payload, out, opts)
}

// Patch issues a PATCH with payload JSON encoded.
func (c *Client) Patch(ctx context.Context, path string, payload, out any, opts ...RequestOption) error {
	return c.call(ctx, http.MethodPatch, path, payload, out, opts)
}

// Delete issues a DELETE. payload may be nil.
func (c *Client) Delete(ctx context.Context, path string, payload, out any, opts ...RequestOption) error {
	return c.call(ctx, http.MethodDelete, path, payload, out, opts)
}

func (c *Client) call(ctx context.Context, method, path string, payload, out any, opts []RequestOption) error {
	req, err := NewRequest(method, path, payload, opts...)
	if err != nil {
		return err
	}
	return c.Do(ctx, req, out)
}

// Do sends req and decodes a successful JSON response into out. When out
// is a *[]byte the raw body is stored instead. A 403 CSRF rejection is
// recovered by refreshing the token and resubmitting once.
func (c *Client) Do(ctx context.Context, req *Request, out any) (err error) {
	ctx, span := c.tracer.Start(ctx, req.Method+" "+normalizePath(req.Path),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("http.request.method", req.Method)),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	for {
		status, body, err := c.send(ctx, req)
		if err != nil {
			return err
		}
		span.SetAttributes(attribute.Int("http.response.status_code", status))

		if status >= 200 && status < 300 {
			return decodeBody(body, out)
		}

		if !isCSRFRejection(status, body) {
			return c.classify(ctx, req, status, body)
		}

		if !req.markRetried() {
			return newResponseError(ErrCSRFInvalid, status, body)
		}

		token, err := c.recoverCSRF(ctx)
		if err != nil {
			c.expire(ctx)
			return fmt.Errorf("%w: %w", ErrSessionExpired, err)
		}

		telemetry.GetMetrics().CSRFRetryTotal.Add(ctx, 1)
		log.Debug().Str("method", req.Method).Str("path", req.Path).Msg("retrying with refreshed csrf token")
		req.csrfToken = token
	}
}

func (c *Client) recoverCSRF(ctx context.Context) (string, error) {
	if err := c.csrf.Invalidate(); err != nil {
		return "", err
	}
	return c.csrf.RefreshToken(ctx)
}

func (c *Client) send(ctx context.Context, req *Request) (int, []byte, error) {
	target := c.baseURL.JoinPath(normalizePath(req.Path))
	if len(req.Query) > 0 {
		target.RawQuery = req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	hreq, err := http.NewRequestWithContext(ctx, req.Method, target.String(), body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}

	for k, v := range req.Header {
		hreq.Header[k] = v
	}
	if hreq.Header.Get("Accept") == "" {
		hreq.Header.Set("Accept", "application/json")
	}
	if req.ContentType != "" {
		hreq.Header.Set("Content-Type", req.ContentType)
	}

	// read at send time so a token stored by Login applies to the next call
	if access, ok := c.store.Get(credentials.KeyAccessToken); ok && access != "" {
		hreq.Header.Set("Authorization", "Bearer "+access)
	}

	if req.csrfToken != "" {
		hreq.Header.Set(CSRFHeader, req.csrfToken)
	} else if req.needsCSRF() {
		token, err := c.csrf.Ensure(ctx)
		if err != nil {
			return 0, nil, fmt.Errorf("%w: %w", ErrCSRFUnavailable, err)
		}
		hreq.Header.Set(CSRFHeader, token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(hreq)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %w", ErrNetwork, err)
	}

	m := telemetry.GetMetrics()
	attrs := metric.WithAttributes(
		attribute.String("method", req.Method),
		attribute.Int("status", resp.StatusCode),
	)
	m.HTTPRequestsTotal.Add(ctx, 1, attrs)
	m.HTTPRequestDuration.Record(ctx, float64(time.Since(start))/float64(time.Millisecond), attrs)

	return resp.StatusCode, data, nil
}

func (c *Client) classify(ctx context.Context, req *Request, status int, body []byte) error {
	switch {
	case isAuthPath(req.Path) && status >= 400 && status < 500:
		return newResponseError(ErrAuthenticationRejected, status, body)
	case status == http.StatusUnauthorized:
		c.expire(ctx)
		return newResponseError(ErrSessionExpired, status, body)
	case status >= 500:
		return newResponseError(ErrServer, status, body)
	default:
		return newResponseError(ErrRequest, status, body)
	}
}

func (c *Client) expire(ctx context.Context) {
	if err := c.csrf.Invalidate(); err != nil {
		log.Warn().Err(err).Msg("failed to clear csrf token")
	}
	if c.expirer != nil {
		c.expirer.Expire(ctx)
	}
}

func decodeBody(body []byte, out any) error {
	if out == nil {
		return nil
	}
	if raw, ok := out.(*[]byte); ok {
		*raw = body
		return nil
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: malformed response body: %v", ErrServer, err)
	}
	return nil
}
