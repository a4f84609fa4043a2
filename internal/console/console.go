// Package console serves the LaudoFy views as JSON endpoints behind the
// same guards the web app applies to its routes. It is a local, single
// session front end backed by the API client.
package console

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strconv"

	"github.com/laudofy/laudofy/internal/client"
	"github.com/laudofy/laudofy/internal/guard"
	"github.com/laudofy/laudofy/internal/models"
	"github.com/laudofy/laudofy/internal/session"
	"github.com/rs/zerolog/log"
)

// Console routes views to the API client.
type Console struct {
	client  *client.Client
	session *session.Session
}

// New returns the console handler.
func New(c *client.Client, sess *session.Session) http.Handler {
	con := &Console{client: c, session: sess}
	return con.routes()
}

func (c *Console) routes() http.Handler {
	mux := http.NewServeMux()

	authenticated := c.protect(models.RoleAdmin, models.RoleMedico, models.RoleTecnico)
	admin := c.protect(models.RoleAdmin)

	mux.HandleFunc("GET /{$}", c.handleRoot)
	mux.HandleFunc("GET /login", c.handleLoginView)
	mux.HandleFunc("POST /login", c.handleLogin)
	mux.HandleFunc("POST /logout", c.handleLogout)

	mux.Handle("GET /dashboard", authenticated(c.handleDashboard))
	mux.Handle("GET /laudos", authenticated(c.handleLaudos))
	mux.Handle("GET /laudos/{id}", authenticated(c.handleLaudo))
	mux.Handle("GET /exames", authenticated(c.handleExames))
	mux.Handle("GET /exames/{id}", authenticated(c.handleExame))
	mux.Handle("GET /pacientes", authenticated(c.handlePacientes))
	mux.Handle("GET /pacientes/{id}", authenticated(c.handlePaciente))
	mux.Handle("POST /pacientes", authenticated(c.handleCreatePaciente))
	mux.Handle("PUT /pacientes/{id}", authenticated(c.handleUpdatePaciente))
	mux.Handle("POST /exames", authenticated(c.handleCreateExame))

	mux.Handle("GET /usuarios", admin(c.handleUsuarios))
	mux.Handle("POST /usuarios", admin(c.handleCreateUsuario))
	mux.Handle("PUT /usuarios/{id}", admin(c.handleUpdateUsuario))
	mux.Handle("DELETE /usuarios/{id}", admin(c.handleDeleteUsuario))
	mux.Handle("GET /financeiro", admin(c.handleFinanceiro))
	mux.Handle("GET /financeiro/faturas", admin(c.handleFaturas))
	mux.Handle("GET /financeiro/configurar/{medicoId}", admin(c.handleConfiguracao))
	mux.Handle("POST /financeiro/configurar/{medicoId}", admin(c.handleConfigurar))
	mux.Handle("GET /relatorios", admin(c.handleRelatorios))
	mux.Handle("GET /auditoria", admin(c.handleAuditoria))

	return mux
}

// protect wraps the role guard in the auth guard.
func (c *Console) protect(roles ...models.Role) func(http.HandlerFunc) http.Handler {
	mw := guard.Protect(c.session, session.LoginPath, session.LandingPath, roles...)
	return func(h http.HandlerFunc) http.Handler {
		return mw(h)
	}
}

func (c *Console) handleRoot(w http.ResponseWriter, r *http.Request) {
	if c.session.IsAuthenticated() {
		http.Redirect(w, r, session.LandingPath, http.StatusFound)
		return
	}
	http.Redirect(w, r, session.LoginPath, http.StatusFound)
}

type loginView struct {
	Authenticated bool   `json:"authenticated"`
	Error         string `json:"error,omitempty"`
}

func (c *Console) handleLoginView(w http.ResponseWriter, r *http.Request) {
	if c.session.IsAuthenticated() {
		http.Redirect(w, r, session.LandingPath, http.StatusFound)
		return
	}
	writeJSON(w, http.StatusOK, loginView{Error: r.URL.Query().Get("error")})
}

type loginForm struct {
	Email string `json:"email"`
	Senha string `json:"senha"`
}

func readLoginForm(w http.ResponseWriter, r *http.Request) (loginForm, error) {
	var creds loginForm

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&creds)
		return creds, err
	}

	creds.Email = r.FormValue("email")
	creds.Senha = r.FormValue("senha")
	return creds, nil
}

func (c *Console) handleLogin(w http.ResponseWriter, r *http.Request) {
	creds, err := readLoginForm(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid login request")
		return
	}

	pair, err := c.client.Login(r.Context(), creds.Email, creds.Senha)
	if err != nil {
		log.Info().Err(err).Str("email", creds.Email).Msg("console login failed")
		status := http.StatusUnauthorized
		if !errors.Is(err, client.ErrAuthenticationRejected) && !errors.Is(err, client.ErrInvalidInput) {
			status = http.StatusBadGateway
		}
		writeError(w, status, client.UserMessage(err))
		return
	}

	if err := c.session.Login(pair.AccessToken, pair.RefreshToken); err != nil {
		log.Error().Err(err).Msg("failed to store session")
		writeError(w, http.StatusInternalServerError, "could not store the session")
		return
	}
	if !c.session.IsAuthenticated() {
		writeError(w, http.StatusBadGateway, "the server returned an unusable token")
		return
	}

	http.Redirect(w, r, session.LandingPath, http.StatusSeeOther)
}

func (c *Console) handleLogout(w http.ResponseWriter, r *http.Request) {
	// revoking server side is best effort
	if err := c.client.Logout(r.Context()); err != nil {
		log.Warn().Err(err).Msg("backend logout failed")
	}
	if err := c.session.Logout(); err != nil {
		writeError(w, http.StatusInternalServerError, "could not clear the session")
		return
	}
	http.Redirect(w, r, session.RootPath, http.StatusSeeOther)
}

// writeClientError maps client failures onto console responses. An expired
// session lands on the login view like the web app does.
func writeClientError(w http.ResponseWriter, r *http.Request, err error) {
	var respErr *client.ResponseError

	switch {
	case errors.Is(err, client.ErrSessionExpired):
		http.Redirect(w, r, session.SessionExpiredPath, http.StatusFound)
		return
	case errors.Is(err, client.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, client.UserMessage(err))
	case errors.Is(err, client.ErrNetwork), errors.Is(err, client.ErrServer),
		errors.Is(err, client.ErrCSRFUnavailable), errors.Is(err, client.ErrCSRFInvalid):
		writeError(w, http.StatusBadGateway, client.UserMessage(err))
	case errors.As(err, &respErr):
		writeError(w, respErr.StatusCode, client.UserMessage(err))
	default:
		log.Error().Err(err).Str("path", r.URL.Path).Msg("console view failed")
		writeError(w, http.StatusInternalServerError, client.UserMessage(err))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode view")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func queryInt(r *http.Request, key string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func pageQuery(r *http.Request) client.PageQuery {
	return client.PageQuery{
		Page:   queryInt(r, "page"),
		Limit:  queryInt(r, "limit"),
		Search: r.URL.Query().Get("search"),
		Role:   models.Role(r.URL.Query().Get("role")),
	}
}
