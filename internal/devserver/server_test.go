package devserver

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/laudofy/laudofy/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWTSecret = testSecret
	cfg.BcryptCost = bcrypt.MinCost
	cfg.LoginRate = rate.Inf
	return cfg
}

func newTestServer(t *testing.T, cfg Config, opts ...Option) (*Server, *httptest.Server) {
	t.Helper()

	s, err := New(cfg, DefaultSeed(), opts...)
	require.NoError(t, err)

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return s, srv
}

// apiClient is a bare HTTP client with a cookie jar.
type apiClient struct {
	t       *testing.T
	base    string
	http    *http.Client
	access  string
	refresh string
	csrf    string
}

func newAPIClient(t *testing.T, srv *httptest.Server) *apiClient {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &apiClient{t: t, base: srv.URL + "/api", http: &http.Client{Jar: jar}}
}

func (c *apiClient) do(method, path string, body any, out any) int {
	c.t.Helper()

	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(c.t, err)
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.base+path, rd)
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")
	if c.access != "" {
		req.Header.Set("Authorization", "Bearer "+c.access)
	}
	if c.csrf != "" {
		req.Header.Set(csrfHeaderName, c.csrf)
	}

	return c.send(req, out)
}

func (c *apiClient) send(req *http.Request, out any) int {
	c.t.Helper()

	resp, err := c.http.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(c.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (c *apiClient) login(email, senha string) {
	c.t.Helper()

	var pair models.TokenPair
	status := c.do(http.MethodPost, "/auth/login", models.LoginRequest{Email: email, Senha: senha}, &pair)
	require.Equal(c.t, http.StatusOK, status)
	c.access, c.refresh = pair.AccessToken, pair.RefreshToken
}

func (c *apiClient) fetchCSRF() {
	c.t.Helper()

	var out models.CSRFResponse
	require.Equal(c.t, http.StatusOK, c.do(http.MethodGet, "/csrf-token", nil, &out))
	require.NotEmpty(c.t, out.CSRFToken)
	c.csrf = out.CSRFToken
}

func TestNew_validatesConfig(t *testing.T) {
	cfg := testConfig()
	cfg.JWTSecret = []byte("short")

	_, err := New(cfg, nil)
	require.Error(t, err)
}

func TestLogin(t *testing.T) {
	_, srv := newTestServer(t, testConfig())
	c := newAPIClient(t, srv)

	var errBody map[string]string
	status := c.do(http.MethodPost, "/auth/login", models.LoginRequest{Email: "medico@laudofy.dev", Senha: "wrong"}, &errBody)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Credenciais inválidas", errBody["erro"])

	c.login("MEDICO@laudofy.dev", "medico123")
	assert.NotEmpty(t, c.access)
	assert.NotEmpty(t, c.refresh)
}

func TestLogin_rateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.LoginRate = rate.Every(time.Hour)
	cfg.LoginBurst = 2
	_, srv := newTestServer(t, cfg)
	c := newAPIClient(t, srv)

	body := models.LoginRequest{Email: "medico@laudofy.dev", Senha: "wrong"}
	assert.Equal(t, http.StatusBadRequest, c.do(http.MethodPost, "/auth/login", body, nil))
	assert.Equal(t, http.StatusBadRequest, c.do(http.MethodPost, "/auth/login", body, nil))
	assert.Equal(t, http.StatusTooManyRequests, c.do(http.MethodPost, "/auth/login", body, nil))
}

func TestRefreshRotatesToken(t *testing.T) {
	_, srv := newTestServer(t, testConfig())
	c := newAPIClient(t, srv)
	c.login("tecnico@laudofy.dev", "tecnico123")

	var pair models.TokenPair
	require.Equal(t, http.StatusOK, c.do(http.MethodPost, "/auth/refresh-token", models.RefreshRequest{RefreshToken: c.refresh}, &pair))
	assert.NotEqual(t, c.refresh, pair.RefreshToken)

	// the old refresh token is spent
	assert.Equal(t, http.StatusUnauthorized, c.do(http.MethodPost, "/auth/refresh-token", models.RefreshRequest{RefreshToken: c.refresh}, nil))

	require.Equal(t, http.StatusOK, c.do(http.MethodPost, "/auth/logout", models.RefreshRequest{RefreshToken: pair.RefreshToken}, nil))
	assert.Equal(t, http.StatusUnauthorized, c.do(http.MethodPost, "/auth/refresh-token", models.RefreshRequest{RefreshToken: pair.RefreshToken}, nil))
}

func TestAuthentication(t *testing.T) {
	var skew atomic.Int64
	start := time.Now()
	_, srv := newTestServer(t, testConfig(), WithClock(func() time.Time {
		return start.Add(time.Duration(skew.Load()))
	}))
	c := newAPIClient(t, srv)

	assert.Equal(t, http.StatusUnauthorized, c.do(http.MethodGet, "/laudos", nil, nil))

	c.login("tecnico@laudofy.dev", "tecnico123")
	assert.Equal(t, http.StatusOK, c.do(http.MethodGet, "/laudos", nil, nil))
	assert.Equal(t, http.StatusForbidden, c.do(http.MethodGet, "/usuarios", nil, nil))

	skew.Store(int64(time.Hour))
	assert.Equal(t, http.StatusUnauthorized, c.do(http.MethodGet, "/laudos", nil, nil))
}

func TestCSRFRequiredOnMutations(t *testing.T) {
	s, srv := newTestServer(t, testConfig())
	c := newAPIClient(t, srv)
	c.login("medico@laudofy.dev", "medico123")

	body := map[string]string{"exameId": "exa-1", "conclusao": "Ritmo sinusal normal."}

	var errBody map[string]string
	require.Equal(t, http.StatusForbidden, c.do(http.MethodPost, "/laudos", body, &errBody))
	assert.Equal(t, invalidCSRFMessage, errBody["error"])

	c.fetchCSRF()
	require.Equal(t, http.StatusCreated, c.do(http.MethodPost, "/laudos", body, nil))

	s.RotateCSRF()
	require.Equal(t, http.StatusForbidden, c.do(http.MethodPost, "/laudos", body, &errBody))
	assert.Equal(t, invalidCSRFMessage, errBody["error"])

	c.fetchCSRF()
	require.Equal(t, http.StatusCreated, c.do(http.MethodPost, "/laudos", body, nil))
}

func TestCSRFCookieMustMatchHeader(t *testing.T) {
	_, srv := newTestServer(t, testConfig())
	c := newAPIClient(t, srv)
	c.login("medico@laudofy.dev", "medico123")

	c.fetchCSRF()
	first := c.csrf
	c.fetchCSRF() // cookie now holds the second token

	c.csrf = first
	body := map[string]string{"exameId": "exa-1", "conclusao": "Ritmo sinusal normal."}
	assert.Equal(t, http.StatusForbidden, c.do(http.MethodPost, "/laudos", body, nil))
}

func TestLaudoWorkflow(t *testing.T) {
	_, srv := newTestServer(t, testConfig())

	medico := newAPIClient(t, srv)
	medico.login("medico@laudofy.dev", "medico123")
	medico.fetchCSRF()

	tecnico := newAPIClient(t, srv)
	tecnico.login("tecnico@laudofy.dev", "tecnico123")
	tecnico.fetchCSRF()

	// validation and roles
	assert.Equal(t, http.StatusBadRequest, medico.do(http.MethodPost, "/laudos", map[string]string{"exameId": "exa-1", "conclusao": " curta "}, nil))
	assert.Equal(t, http.StatusForbidden, tecnico.do(http.MethodPost, "/laudos", map[string]string{"exameId": "exa-1", "conclusao": "Ritmo sinusal normal."}, nil))
	assert.Equal(t, http.StatusNotFound, medico.do(http.MethodPost, "/laudos", map[string]string{"exameId": "nope", "conclusao": "Ritmo sinusal normal."}, nil))

	var created models.LaudoResponse
	require.Equal(t, http.StatusCreated, medico.do(http.MethodPost, "/laudos", map[string]string{"exameId": "exa-1", "conclusao": "Ritmo sinusal normal."}, &created))
	id := created.Laudo.ID
	assert.Equal(t, models.StatusRealizado, created.Laudo.Status)
	assert.Equal(t, 1, created.Laudo.Versao)
	assert.NotEmpty(t, created.Laudo.LaudoOriginal)
	require.NotNil(t, created.Laudo.Exame)
	assert.Equal(t, "pac-1", created.Laudo.Exame.Paciente)

	// email before signing is refused
	assert.Equal(t, http.StatusForbidden, medico.do(http.MethodPost, "/laudos/"+id+"/enviar-email", nil, nil))

	// sign
	signed := upload(t, medico, id, "assinado.pdf", []byte("%PDF-1.7 signed"))
	assert.Equal(t, http.StatusOK, signed.status)
	assert.Equal(t, models.StatusAssinado, signed.resp.Laudo.Status)
	require.NotNil(t, signed.resp.Notificacao)
	assert.Equal(t, models.EnvioEnviado, signed.resp.Notificacao.Status)
	assert.Equal(t, "maria@example.com", signed.resp.Notificacao.Destinatario)

	// signing twice and resending after success are refused
	assert.Equal(t, http.StatusForbidden, upload(t, medico, id, "assinado.pdf", []byte("%PDF-1.7 again")).status)
	assert.Equal(t, http.StatusForbidden, medico.do(http.MethodPost, "/laudos/"+id+"/enviar-email", nil, nil))

	var hist models.Historico
	require.Equal(t, http.StatusOK, medico.do(http.MethodGet, "/laudos/"+id+"/historico", nil, &hist))
	acoes := make([]string, 0, len(hist.Historico))
	for _, h := range hist.Historico {
		acoes = append(acoes, h.Acao)
	}
	assert.Equal(t, []string{models.AcaoCriacao, models.AcaoAssinatura, models.AcaoEnvioEmail}, acoes)

	// redo
	var redo models.LaudoResponse
	require.Equal(t, http.StatusCreated, medico.do(http.MethodPost, "/laudos/"+id+"/refazer",
		map[string]string{"conclusao": "Ritmo sinusal com extrassístoles.", "motivo": "Revisão"}, &redo))
	assert.Equal(t, 2, redo.Laudo.Versao)
	assert.Equal(t, id, redo.Laudo.LaudoAnterior)

	var old models.Laudo
	require.Equal(t, http.StatusOK, medico.do(http.MethodGet, "/laudos/"+id, nil, &old))
	assert.Equal(t, models.StatusRefeito, old.Status)
	assert.Equal(t, redo.Laudo.ID, old.LaudoSubstituto)

	// a superseded laudo cannot be redone again
	assert.Equal(t, http.StatusForbidden, medico.do(http.MethodPost, "/laudos/"+id+"/refazer",
		map[string]string{"conclusao": "Outra conclusão qualquer.", "motivo": "x"}, nil))

	var page models.LaudoPage
	require.Equal(t, http.StatusOK, tecnico.do(http.MethodGet, "/laudos?status=Laudo+realizado", nil, &page))
	require.Len(t, page.Laudos, 1)
	assert.Equal(t, redo.Laudo.ID, page.Laudos[0].ID)
	assert.Equal(t, 1, page.TotalItens)
}

func TestEmailFailureAllowsResend(t *testing.T) {
	_, srv := newTestServer(t, testConfig())
	medico := newAPIClient(t, srv)
	medico.login("medico@laudofy.dev", "medico123")
	medico.fetchCSRF()

	// pac-2 has no email
	var created models.LaudoResponse
	require.Equal(t, http.StatusCreated, medico.do(http.MethodPost, "/laudos", map[string]string{"exameId": "exa-3", "conclusao": "Sem alterações significativas."}, &created))

	signed := upload(t, medico, created.Laudo.ID, "a.pdf", []byte("%PDF-1.7"))
	require.Equal(t, http.StatusOK, signed.status)
	assert.Equal(t, models.EnvioFalha, signed.resp.Notificacao.Status)

	// last attempt failed, so a resend is allowed and fails again
	assert.Equal(t, http.StatusBadGateway, medico.do(http.MethodPost, "/laudos/"+created.Laudo.ID+"/enviar-email", nil, nil))
}

func TestUploadRejectsNonPDF(t *testing.T) {
	_, srv := newTestServer(t, testConfig())
	medico := newAPIClient(t, srv)
	medico.login("medico@laudofy.dev", "medico123")
	medico.fetchCSRF()

	var created models.LaudoResponse
	require.Equal(t, http.StatusCreated, medico.do(http.MethodPost, "/laudos", map[string]string{"exameId": "exa-1", "conclusao": "Ritmo sinusal normal."}, &created))

	assert.Equal(t, http.StatusBadRequest, upload(t, medico, created.Laudo.ID, "a.txt", []byte("hello")).status)
}

func TestAdminEndpoints(t *testing.T) {
	_, srv := newTestServer(t, testConfig())
	admin := newAPIClient(t, srv)
	admin.login("admin@laudofy.dev", "admin123")

	var users models.UsuarioPage
	require.Equal(t, http.StatusOK, admin.do(http.MethodGet, "/usuarios", nil, &users))
	assert.Len(t, users.Usuarios, 3)

	var audit models.AuditPage
	require.Equal(t, http.StatusOK, admin.do(http.MethodGet, "/auditoria", nil, &audit))
	require.NotEmpty(t, audit.Logs)
	assert.Equal(t, "login", audit.Logs[0].Acao)

	var stats models.Estatisticas
	require.Equal(t, http.StatusOK, admin.do(http.MethodGet, "/estatisticas", nil, &stats))
	assert.Equal(t, 2, stats.TotalPacientes)
	assert.Equal(t, 3, stats.TotalExames)
}

type uploadResult struct {
	status int
	resp   models.LaudoResponse
}

func upload(t *testing.T, c *apiClient, id, filename string, data []byte) uploadResult {
	t.Helper()

	var buf bytes.Buffer
	boundary := "laudofyboundary"
	buf.WriteString("--" + boundary + "\r\n")
	buf.WriteString(`Content-Disposition: form-data; name="signedFile"; filename="` + filename + "\"\r\n")
	buf.WriteString("Content-Type: application/pdf\r\n\r\n")
	buf.Write(data)
	buf.WriteString("\r\n--" + boundary + "--\r\n")

	req, err := http.NewRequest(http.MethodPost, c.base+"/laudos/"+id+"/upload", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "multipart/form-data; boundary="+boundary)
	req.Header.Set("Authorization", "Bearer "+c.access)
	req.Header.Set(csrfHeaderName, c.csrf)

	resp, err := c.http.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out uploadResult
	out.status = resp.StatusCode
	body, _ := io.ReadAll(resp.Body)
	if out.status == http.StatusOK {
		require.NoError(t, json.Unmarshal(body, &out.resp), strings.TrimSpace(string(body)))
	}
	return out
}
