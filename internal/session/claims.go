package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/laudofy/laudofy/internal/models"
)

var (
	// ErrTokenMissing is returned when there is no access token to decode.
	ErrTokenMissing = errors.New("access token missing")

	// ErrTokenMalformed is returned when the access token cannot be decoded.
	ErrTokenMalformed = errors.New("access token malformed")

	// ErrTokenExpired is returned when the token's exp claim is absent or not in the future.
	ErrTokenExpired = errors.New("access token expired")
)

// Claims are the claims the backend encodes in an access token.
type Claims struct {
	jwt.RegisteredClaims
	UserID string      `json:"id"`
	Nome   string      `json:"nome"`
	Email  string      `json:"email"`
	Role   models.Role `json:"role"`
}

// User projects the claims into the session identity.
func (c *Claims) User() *models.User {
	id := c.UserID
	if id == "" {
		id = c.Subject
	}
	return &models.User{
		ID:    id,
		Nome:  c.Nome,
		Email: c.Email,
		Role:  c.Role,
	}
}

// Decode parses the access token claims without verifying the signature.
// The backend owns the signing key; the client only reads what it was given.
func Decode(token string) (*Claims, error) {
	if token == "" {
		return nil, ErrTokenMissing
	}

	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}

	return claims, nil
}

// DecodeAndValidate decodes the token and checks that its expiry is strictly
// after now. On ErrTokenExpired the decoded claims are still returned.
func DecodeAndValidate(token string, now time.Time) (*Claims, error) {
	claims, err := Decode(token)
	if err != nil {
		return nil, err
	}

	if claims.ExpiresAt == nil || !claims.ExpiresAt.After(now) {
		return claims, ErrTokenExpired
	}

	return claims, nil
}
