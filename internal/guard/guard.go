// Package guard gates views on the current session: an authentication
// guard and a role guard. The authentication guard must wrap the role
// guard because a role can only be checked for a decoded user.
package guard

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/laudofy/laudofy/internal/models"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrForbidden        = errors.New("forbidden")
)

// Authenticator is the view of the session the guards need.
type Authenticator interface {
	IsAuthenticated() bool
	User() *models.User
}

type contextKey int

const userContextKey contextKey = iota

// UserFromContext returns the user admitted by RequireAuth.
func UserFromContext(ctx context.Context) *models.User {
	u, _ := ctx.Value(userContextKey).(*models.User)
	return u
}

// Authenticate returns ErrNotAuthenticated unless the session holds an
// unexpired access token.
func Authenticate(a Authenticator) error {
	if a == nil || !a.IsAuthenticated() {
		return ErrNotAuthenticated
	}
	return nil
}

// Authorize returns ErrForbidden unless the current user holds one of roles.
// An empty allow list admits nobody.
func Authorize(a Authenticator, roles ...models.Role) error {
	var user *models.User
	if a != nil {
		user = a.User()
	}
	if !user.HasRole(roles...) {
		if user == nil {
			return fmt.Errorf("%w: no user", ErrForbidden)
		}
		return fmt.Errorf("%w: role %q not in %v", ErrForbidden, user.Role, roles)
	}
	return nil
}

// RequireAuth redirects unauthenticated requests to loginPath. Admitted
// requests carry the user in their context.
func RequireAuth(a Authenticator, loginPath string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := Authenticate(a); err != nil {
				log.Debug().Str("path", r.URL.Path).Msg("not authenticated, redirecting to login")
				http.Redirect(w, r, loginPath, http.StatusFound)
				return
			}

			ctx := context.WithValue(r.Context(), userContextKey, a.User())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole redirects requests from users outside roles to landingPath.
func RequireRole(a Authenticator, landingPath string, roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := Authorize(a, roles...); err != nil {
				log.Debug().Err(err).Str("path", r.URL.Path).Msg("role not allowed, redirecting")
				http.Redirect(w, r, landingPath, http.StatusFound)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Protect composes RequireAuth around RequireRole. With no roles only
// authentication is required.
func Protect(a Authenticator, loginPath, landingPath string, roles ...models.Role) func(http.Handler) http.Handler {
	auth := RequireAuth(a, loginPath)
	if len(roles) == 0 {
		return auth
	}
	role := RequireRole(a, landingPath, roles...)
	return func(next http.Handler) http.Handler {
		return auth(role(next))
	}
}
