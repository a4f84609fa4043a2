package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/laudofy/laudofy/internal/credentials"
	"github.com/laudofy/laudofy/internal/models"
	"github.com/laudofy/laudofy/internal/telemetry"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// CSRFCoordinator owns the cached anti-forgery token. Token fetches bypass
// the Client's interception so they never recurse.
type CSRFCoordinator struct {
	httpClient *http.Client
	endpoint   string
	store      credentials.Store
	group      singleflight.Group
}

// NewCSRFCoordinator creates a coordinator that fetches tokens from
// baseURL + "/csrf-token" and caches them in store.
func NewCSRFCoordinator(httpClient *http.Client, baseURL *url.URL, store credentials.Store) *CSRFCoordinator {
	return &CSRFCoordinator{
		httpClient: httpClient,
		endpoint:   baseURL.JoinPath("csrf-token").String(),
		store:      store,
	}
}

// GetToken returns the cached token, if any.
func (c *CSRFCoordinator) GetToken() (string, bool) {
	token, ok := c.store.Get(credentials.KeyCSRFToken)
	return token, ok && token != ""
}

// Ensure returns the cached token, fetching one if none is cached.
func (c *CSRFCoordinator) Ensure(ctx context.Context) (string, error) {
	if token, ok := c.GetToken(); ok {
		return token, nil
	}
	return c.RefreshToken(ctx)
}

// RefreshToken fetches a fresh token and replaces the cached one.
// Concurrent callers share a single fetch.
func (c *CSRFCoordinator) RefreshToken(ctx context.Context) (string, error) {
	ch := c.group.DoChan("csrf", func() (any, error) {
		return c.fetch(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %w", ErrNetwork, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// Invalidate drops the cached token.
func (c *CSRFCoordinator) Invalidate() error {
	return c.store.Clear(credentials.KeyCSRFToken)
}

func (c *CSRFCoordinator) fetch(ctx context.Context) (string, error) {
	metrics := telemetry.GetMetrics()
	metrics.CSRFRefreshTotal.Add(ctx, 1)

	token, err := c.doFetch(ctx)
	if err != nil {
		metrics.CSRFRefreshErrorsTotal.Add(ctx, 1)
		log.Warn().Err(err).Msg("csrf token refresh failed")
		return "", err
	}

	if err := c.store.Set(credentials.KeyCSRFToken, token); err != nil {
		return "", fmt.Errorf("failed to cache csrf token: %w", err)
	}

	log.Debug().Msg("csrf token refreshed")
	return token, nil
}

func (c *CSRFCoordinator) doFetch(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create csrf request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNetwork, err)
	}

	if resp.StatusCode >= 500 {
		return "", newResponseError(ErrServer, resp.StatusCode, body)
	}
	if resp.StatusCode >= 300 {
		return "", newResponseError(ErrRequest, resp.StatusCode, body)
	}

	var out models.CSRFResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("%w: malformed csrf response: %v", ErrServer, err)
	}
	if out.CSRFToken == "" {
		return "", fmt.Errorf("%w: empty csrf token", ErrServer)
	}

	return out.CSRFToken, nil
}
