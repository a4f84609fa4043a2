package devserver

import (
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/laudofy/laudofy/internal/models"
	"github.com/laudofy/laudofy/internal/session"
	"github.com/mr-tron/base58"
)

const issuer = "laudofy-devserver"

var ErrInvalidToken = errors.New("invalid token")

type refreshEntry struct {
	userID  string
	expires time.Time
}

// tokenIssuer signs access tokens and tracks refresh tokens.
type tokenIssuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time

	mu      sync.Mutex
	refresh map[string]refreshEntry
}

func newTokenIssuer(cfg Config, now func() time.Time) *tokenIssuer {
	return &tokenIssuer{
		secret:     cfg.JWTSecret,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        now,
		refresh:    make(map[string]refreshEntry),
	}
}

// randomToken returns 32 random bytes, base58 encoded.
func randomToken() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return base58.Encode(b)
}

func (t *tokenIssuer) issue(u models.Usuario) (models.TokenPair, error) {
	now := t.now()

	claims := session.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.accessTTL)),
			ID:        newID(),
		},
		UserID: u.ID,
		Nome:   u.Nome,
		Email:  u.Email,
		Role:   u.Role,
	}

	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("failed to sign access token: %w", err)
	}

	refresh := randomToken()

	t.mu.Lock()
	t.refresh[refresh] = refreshEntry{userID: u.ID, expires: now.Add(t.refreshTTL)}
	t.mu.Unlock()

	return models.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// verify validates an access token and returns its claims.
func (t *tokenIssuer) verify(token string) (*session.Claims, error) {
	claims := &session.Claims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return t.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}

// consume validates and revokes a refresh token, returning its user id.
func (t *tokenIssuer) consume(refresh string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.refresh[refresh]
	if !ok {
		return "", ErrInvalidToken
	}
	delete(t.refresh, refresh)

	if !t.now().Before(entry.expires) {
		return "", fmt.Errorf("%w: refresh token expired", ErrInvalidToken)
	}
	return entry.userID, nil
}

func (t *tokenIssuer) revoke(refresh string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.refresh, refresh)
}
