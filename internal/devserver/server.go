// Package devserver is an in-memory LaudoFy backend for development and
// end-to-end tests. It speaks the same REST and WebSocket contract as the
// production backend, including the CSRF handshake, and enforces the laudo
// action rules itself.
package devserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"filippo.io/csrf"
	"github.com/klauspost/compress/gzhttp"
	httpmiddleware "github.com/laudofy/laudofy/internal/http"
	"github.com/laudofy/laudofy/internal/models"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
)

// Server is the development backend.
type Server struct {
	cfg     Config
	store   *memStore
	tokens  *tokenIssuer
	csrf    *csrfTokens
	hub     *hub
	limiter *httpmiddleware.RateLimiter
	now     func() time.Time
}

type Option func(*Server)

// WithClock sets the time source for token expiry and timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

// New creates a Server loaded with seed.
func New(cfg Config, seed *Seed, opts ...Option) (*Server, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if seed == nil {
		seed = DefaultSeed()
	}
	if err := seed.Validate(); err != nil {
		return nil, err
	}

	s := &Server{
		cfg:  cfg,
		csrf: newCSRFTokens(maxCSRFTokens),
		hub:  newHub(),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	store, err := newMemStore(seed, cfg.BcryptCost, s.now)
	if err != nil {
		return nil, err
	}
	s.store = store
	s.tokens = newTokenIssuer(cfg, s.now)
	s.limiter = httpmiddleware.NewRateLimiter(cfg.LoginRate, cfg.LoginBurst, 10*time.Minute)

	return s, nil
}

// Handler returns the HTTP handler serving /api.
func (s *Server) Handler() http.Handler {
	api := http.NewServeMux()

	api.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	api.HandleFunc("GET /api/csrf-token", s.handleCSRFToken)
	api.Handle("POST /api/auth/login", s.limiter.Middleware(http.HandlerFunc(s.handleLogin)))
	api.HandleFunc("POST /api/auth/refresh-token", s.handleRefresh)
	api.HandleFunc("POST /api/auth/logout", s.handleLogout)

	anyRole := []models.Role{models.RoleTecnico, models.RoleMedico, models.RoleAdmin}
	medico := []models.Role{models.RoleMedico}
	admin := []models.Role{models.RoleAdmin}

	api.Handle("GET /api/laudos", s.protect(s.handleListLaudos, anyRole...))
	api.Handle("POST /api/laudos", s.protect(s.handleCreateLaudo, medico...))
	api.Handle("GET /api/laudos/{id}", s.protect(s.handleGetLaudo, anyRole...))
	api.Handle("GET /api/laudos/{id}/historico", s.protect(s.handleHistorico, anyRole...))
	api.Handle("GET /api/laudos/{id}/download/{kind}", s.protect(s.handleDownload, anyRole...))
	api.Handle("POST /api/laudos/{id}/upload", s.protect(s.handleUpload, medico...))
	api.Handle("POST /api/laudos/{id}/refazer", s.protect(s.handleRefazer, medico...))
	api.Handle("POST /api/laudos/{id}/enviar-email", s.protect(s.handleEnviarEmail, models.RoleMedico, models.RoleAdmin))

	api.Handle("GET /api/pacientes", s.protect(s.handleListPacientes, anyRole...))
	api.Handle("POST /api/pacientes", s.protect(s.handleCreatePaciente, anyRole...))
	api.Handle("GET /api/pacientes/{id}", s.protect(s.handleGetPaciente, anyRole...))
	api.Handle("PUT /api/pacientes/{id}", s.protect(s.handleUpdatePaciente, anyRole...))
	api.Handle("GET /api/exames", s.protect(s.handleListExames, anyRole...))
	api.Handle("POST /api/exames", s.protect(s.handleCreateExame, anyRole...))
	api.Handle("GET /api/exames/{id}", s.protect(s.handleGetExame, anyRole...))
	api.Handle("GET /api/estatisticas", s.protect(s.handleEstatisticas, anyRole...))

	api.Handle("GET /api/usuarios", s.protect(s.handleListUsuarios, admin...))
	api.Handle("POST /api/usuarios", s.protect(s.handleCreateUsuario, admin...))
	api.Handle("GET /api/usuarios/{id}", s.protect(s.handleGetUsuario, admin...))
	api.Handle("PUT /api/usuarios/{id}", s.protect(s.handleUpdateUsuario, admin...))
	api.Handle("DELETE /api/usuarios/{id}", s.protect(s.handleDeleteUsuario, admin...))
	api.Handle("GET /api/auditoria", s.protect(s.handleAuditoria, admin...))

	api.Handle("GET /api/financeiro/configurar/{medicoId}", s.protect(s.handleGetConfiguracao, admin...))
	api.Handle("POST /api/financeiro/configurar/{medicoId}", s.protect(s.handleConfigurar, admin...))
	api.Handle("GET /api/financeiro/dashboard", s.protect(s.handleDashboardFinanceiro, admin...))
	api.Handle("GET /api/financeiro/faturas", s.protect(s.handleFaturas, admin...))

	root := http.NewServeMux()
	// upgrades bypass compression
	root.Handle("GET /api/ws", s.authenticate(http.HandlerFunc(s.handleWS)))
	root.Handle("/", gzhttp.GzipHandler(s.requireCSRF(api)))

	protection := csrf.New()
	for _, origin := range s.cfg.CORSOrigins {
		if err := protection.AddTrustedOrigin(origin); err != nil {
			log.Warn().Err(err).Str("origin", origin).Msg("ignoring invalid trusted origin")
		}
	}

	var h http.Handler = root
	h = httpmiddleware.ClientIPMiddleware()(h)
	h = withCORS(s.cfg.CORSOrigins, h)
	return protection.Handler(h)
}

func withCORS(allowedOrigins []string, h http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowedHeaders:   []string{"Authorization", "Content-Type", csrfHeaderName},
		AllowCredentials: true,
	}).Handler(h)
}

type contextKey int

const userContextKey contextKey = iota

func userFromContext(ctx context.Context) *models.User {
	u, _ := ctx.Value(userContextKey).(*models.User)
	if u == nil {
		return &models.User{}
	}
	return u
}

// authenticate verifies the bearer token.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractBearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "Token não fornecido")
			return
		}

		claims, err := s.tokens.verify(token)
		if err != nil {
			log.Debug().Err(err).Str("path", r.URL.Path).Msg("rejecting access token")
			writeError(w, http.StatusUnauthorized, "Token inválido ou expirado")
			return
		}

		u, err := s.store.userByID(claims.User().ID)
		if err != nil || !u.Ativo {
			writeError(w, http.StatusUnauthorized, "Usuário não encontrado")
			return
		}

		user := &models.User{ID: u.ID, Nome: u.Nome, Email: u.Email, Role: u.Role}
		ctx := context.WithValue(r.Context(), userContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// protect authenticates and then checks the role.
func (s *Server) protect(h http.HandlerFunc, roles ...models.Role) http.Handler {
	return s.authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !userFromContext(r.Context()).HasRole(roles...) {
			writeError(w, http.StatusForbidden, "Acesso negado")
			return
		}
		h(w, r)
	}))
}

func extractBearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func pageParams(r *http.Request) (page, limit int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	return page, min(limit, 100)
}
