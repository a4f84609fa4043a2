package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/laudofy/laudofy/internal/credentials"
	"github.com/laudofy/laudofy/internal/models"
	"github.com/laudofy/laudofy/internal/telemetry"
	"github.com/rs/zerolog/log"
)

const (
	// RootPath is where an explicit logout lands.
	RootPath = "/"

	// LoginPath is the login view.
	LoginPath = "/login"

	// LandingPath is the default view for authenticated users.
	LandingPath = "/dashboard"

	// SessionExpiredPath is where an unrecoverable auth failure lands.
	SessionExpiredPath = LoginPath + "?error=session_expired"
)

// Navigator performs the navigation side effects of the session.
type Navigator interface {
	Navigate(path string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(path string)

func (f NavigatorFunc) Navigate(path string) { f(path) }

type nopNavigator struct{}

func (nopNavigator) Navigate(string) {}

// Option configures a Session.
type Option func(*Session)

// WithNavigator sets the navigation target for logout and expiry.
func WithNavigator(nav Navigator) Option {
	return func(s *Session) {
		if nav != nil {
			s.nav = nav
		}
	}
}

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// Session is the single source of truth for who is logged in. The user is
// always derived from the stored access token and never persisted on its own.
type Session struct {
	store credentials.Store
	nav   Navigator
	now   func() time.Time

	mu   sync.RWMutex
	user *models.User
}

// New creates a session over the given token store. Call Init before use.
func New(store credentials.Store, opts ...Option) *Session {
	s := &Session{
		store: store,
		nav:   nopNavigator{},
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init derives the user from a previously stored access token. A token that
// fails to decode is treated like a logout.
func (s *Session) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.user = nil

	token, ok := s.store.Get(credentials.KeyAccessToken)
	if !ok || token == "" {
		return nil
	}

	claims, err := Decode(token)
	if err != nil {
		log.Warn().Err(err).Msg("stored access token could not be decoded, logging out")
		return s.logoutLocked(RootPath)
	}

	s.user = claims.User()
	log.Debug().Str("user", s.user.Email).Str("role", string(s.user.Role)).Msg("session restored")

	return nil
}

// Teardown drops in-memory state without touching the token store.
func (s *Session) Teardown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.user = nil
}

// Login stores both tokens and derives the user from the new access token.
// The previous user is cleared before the tokens are written so the old
// identity never coexists with the new token. A token that fails to decode
// leaves the session logged out; only store failures are returned.
func (s *Session) Login(accessToken, refreshToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.user = nil

	if err := s.store.Set(credentials.KeyAccessToken, accessToken); err != nil {
		return err
	}
	if err := s.store.Set(credentials.KeyRefreshToken, refreshToken); err != nil {
		return err
	}

	claims, err := Decode(accessToken)
	if err != nil {
		log.Warn().Err(err).Msg("access token could not be decoded, logging out")
		return s.logoutLocked(RootPath)
	}

	s.user = claims.User()

	log.Info().Str("user", s.user.Email).Str("role", string(s.user.Role)).Msg("logged in")

	return nil
}

// Logout clears every token, resets the user and navigates to the root view.
// Calling it repeatedly leaves the same state as calling it once.
func (s *Session) Logout() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.logoutLocked(RootPath)
}

// Expire ends the session after an unrecoverable auth failure and
// navigates to the login view flagged as expired.
func (s *Session) Expire(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	telemetry.GetMetrics().SessionExpiredTotal.Add(ctx, 1)

	if err := s.logoutLocked(SessionExpiredPath); err != nil {
		log.Error().Err(err).Msg("failed to clear tokens on session expiry")
	}
}

func (s *Session) logoutLocked(target string) error {
	err := credentials.ClearAll(s.store)
	s.user = nil

	s.nav.Navigate(target)

	if err != nil {
		log.Error().Err(err).Msg("failed to clear tokens")
	}
	return err
}

// IsAuthenticated reports whether a decodable, unexpired access token is
// stored. It never fails: decode errors count as unauthenticated.
func (s *Session) IsAuthenticated() bool {
	token, ok := s.store.Get(credentials.KeyAccessToken)
	if !ok || token == "" {
		return false
	}

	_, err := DecodeAndValidate(token, s.now())
	if err != nil && !errors.Is(err, ErrTokenExpired) {
		log.Debug().Err(err).Msg("access token rejected")
	}
	return err == nil
}

// User returns a copy of the current user, or nil when nobody is logged in.
func (s *Session) User() *models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// RefreshToken returns the stored refresh token.
func (s *Session) RefreshToken() (string, bool) {
	return s.store.Get(credentials.KeyRefreshToken)
}
