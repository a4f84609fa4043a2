package devserver

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"sync"
)

const (
	csrfCookieName = "laudofy_csrf"
	csrfHeaderName = "X-CSRF-Token"

	invalidCSRFMessage = "Invalid CSRF token"
)

// maxCSRFTokens bounds the issued set. The oldest token is forgotten first.
const maxCSRFTokens = 1024

// csrfTokens is the set of issued anti-forgery tokens.
type csrfTokens struct {
	mu     sync.RWMutex
	limit  int
	issued map[string]struct{}
	order  []string
}

func newCSRFTokens(limit int) *csrfTokens {
	return &csrfTokens{limit: limit, issued: make(map[string]struct{})}
}

func (c *csrfTokens) issue() string {
	token := randomToken()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.issued[token] = struct{}{}
	c.order = append(c.order, token)
	for len(c.order) > c.limit {
		delete(c.issued, c.order[0])
		c.order = c.order[1:]
	}

	return token
}

func (c *csrfTokens) valid(token string) bool {
	if token == "" {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.issued[token]
	return ok
}

func (c *csrfTokens) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.issued)
}

func (c *csrfTokens) rotate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.issued = make(map[string]struct{})
	c.order = nil
}

// Paths that authenticate without a CSRF token.
var csrfExempt = map[string]bool{
	"/api/csrf-token":         true,
	"/api/auth/login":         true,
	"/api/auth/refresh-token": true,
	"/api/auth/logout":        true,
}

// requireCSRF rejects mutating requests without a known token. When the
// double-submit cookie is present it must match the header.
func (s *Server) requireCSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}
		if csrfExempt["/"+strings.Trim(r.URL.Path, "/")] {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get(csrfHeaderName)
		if !s.csrf.valid(header) {
			writeError(w, http.StatusForbidden, invalidCSRFMessage)
			return
		}
		if cookie, err := r.Cookie(csrfCookieName); err == nil &&
			subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(header)) != 1 {
			writeError(w, http.StatusForbidden, invalidCSRFMessage)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	token := s.csrf.issue()

	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: false,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"csrfToken": token})
}

// RotateCSRF invalidates every issued CSRF token.
func (s *Server) RotateCSRF() {
	s.csrf.rotate()
}
