package client

import (
	"context"
	"fmt"
	"strings"

	"github.com/laudofy/laudofy/internal/credentials"
	"github.com/laudofy/laudofy/internal/models"
)

// InitCSRF primes the CSRF cache. Called once at startup; a failure is not
// fatal since the first mutating request fetches a token anyway.
func (c *Client) InitCSRF(ctx context.Context) error {
	_, err := c.csrf.RefreshToken(ctx)
	return err
}

// Login exchanges credentials for a token pair. The caller hands the pair
// to the session.
func (c *Client) Login(ctx context.Context, email, senha string) (*models.TokenPair, error) {
	email = strings.TrimSpace(email)
	if email == "" || senha == "" {
		return nil, fmt.Errorf("%w: email and password are required", ErrInvalidInput)
	}

	var pair models.TokenPair
	if err := c.Post(ctx, "/auth/login", models.LoginRequest{Email: email, Senha: senha}, &pair); err != nil {
		return nil, err
	}
	if pair.AccessToken == "" {
		return nil, fmt.Errorf("%w: login response has no access token", ErrServer)
	}

	return &pair, nil
}

// RefreshTokens exchanges a refresh token for a new pair.
func (c *Client) RefreshTokens(ctx context.Context, refreshToken string) (*models.TokenPair, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("%w: refresh token is required", ErrInvalidInput)
	}

	var pair models.TokenPair
	if err := c.Post(ctx, "/auth/refresh-token", models.RefreshRequest{RefreshToken: refreshToken}, &pair); err != nil {
		return nil, err
	}
	if pair.AccessToken == "" {
		return nil, fmt.Errorf("%w: refresh response has no access token", ErrServer)
	}

	return &pair, nil
}

// Logout tells the backend to revoke the stored refresh token. Local state
// is the session's concern.
func (c *Client) Logout(ctx context.Context) error {
	refreshToken, _ := c.store.Get(credentials.KeyRefreshToken)
	return c.Post(ctx, "/auth/logout", models.RefreshRequest{RefreshToken: refreshToken}, nil)
}
