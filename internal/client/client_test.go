package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/laudofy/laudofy/internal/credentials"
	"github.com/laudofy/laudofy/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	Method string
	Path   string
	Auth   string
	CSRF   string
}

// fakeBackend serves /api/csrf-token itself and hands every other request to
// handler after recording it.
type fakeBackend struct {
	mu          sync.Mutex
	csrfFetches int
	csrfStatus  int
	csrfTokens  []string
	// csrfGate, when set, holds every token response until it is closed.
	csrfGate chan struct{}
	requests []recordedRequest
	handler  http.HandlerFunc
}

func (b *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/api/csrf-token" {
		b.mu.Lock()
		b.csrfFetches++
		n := b.csrfFetches
		status := b.csrfStatus
		b.mu.Unlock()

		if b.csrfGate != nil {
			<-b.csrfGate
		}
		if status != 0 {
			w.WriteHeader(status)
			return
		}
		token := "csrf-" + string(rune('0'+n))
		if n <= len(b.csrfTokens) {
			token = b.csrfTokens[n-1]
		}
		writeJSON(w, http.StatusOK, models.CSRFResponse{CSRFToken: token})
		return
	}

	b.mu.Lock()
	b.requests = append(b.requests, recordedRequest{
		Method: r.Method,
		Path:   strings.TrimPrefix(r.URL.Path, "/api"),
		Auth:   r.Header.Get("Authorization"),
		CSRF:   r.Header.Get(CSRFHeader),
	})
	b.mu.Unlock()

	if b.handler == nil {
		writeJSON(w, http.StatusOK, map[string]string{"ok": "true"})
		return
	}
	b.handler(w, r)
}

func (b *fakeBackend) fetches() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.csrfFetches
}

func (b *fakeBackend) recorded() []recordedRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]recordedRequest(nil), b.requests...)
}

type countingExpirer struct {
	calls atomic.Int32
}

func (e *countingExpirer) Expire(context.Context) {
	e.calls.Add(1)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, backend *fakeBackend) (*Client, *credentials.MemoryStore, *countingExpirer) {
	t.Helper()

	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	store := credentials.NewMemoryStore()
	expirer := &countingExpirer{}

	cfg := DefaultConfig()
	cfg.ServerURL = srv.URL + "/api"

	c, err := New(cfg, store, WithSessionExpirer(expirer))
	require.NoError(t, err)

	return c, store, expirer
}

func TestNew_invalidURL(t *testing.T) {
	store := credentials.NewMemoryStore()

	_, err := New(Config{}, store)
	require.Error(t, err)

	_, err = New(Config{ServerURL: "ftp://example.com"}, store)
	require.Error(t, err)
}

func TestClient_GetCarriesBearerWithoutCSRF(t *testing.T) {
	backend := &fakeBackend{}
	c, store, _ := newTestClient(t, backend)
	require.NoError(t, store.Set(credentials.KeyAccessToken, "A"))

	var out map[string]string
	require.NoError(t, c.Get(context.Background(), "/laudos", &out))

	reqs := backend.recorded()
	require.Len(t, reqs, 1)
	assert.Equal(t, "Bearer A", reqs[0].Auth)
	assert.Empty(t, reqs[0].CSRF)
	assert.Equal(t, 0, backend.fetches())
	assert.Equal(t, "true", out["ok"])
}

func TestClient_PostFetchesCSRFOnceWhenUncached(t *testing.T) {
	backend := &fakeBackend{csrfTokens: []string{"T1"}}
	c, store, _ := newTestClient(t, backend)

	require.NoError(t, c.Post(context.Background(), "/laudos", map[string]string{"exameId": "e1"}, nil))

	assert.Equal(t, 1, backend.fetches())
	reqs := backend.recorded()
	require.Len(t, reqs, 1)
	assert.Equal(t, "T1", reqs[0].CSRF)

	token, ok := store.Get(credentials.KeyCSRFToken)
	require.True(t, ok)
	assert.Equal(t, "T1", token)

	// cached token is reused
	require.NoError(t, c.Put(context.Background(), "/laudos/1", map[string]string{}, nil))
	assert.Equal(t, 1, backend.fetches())
}

func TestClient_ExcludedPathsNeverCarryCSRF(t *testing.T) {
	backend := &fakeBackend{
		handler: func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, models.TokenPair{AccessToken: "a", RefreshToken: "r"})
		},
	}
	c, _, _ := newTestClient(t, backend)
	ctx := context.Background()

	_, err := c.Login(ctx, "medico@laudofy.com", "secret")
	require.NoError(t, err)
	_, err = c.RefreshTokens(ctx, "r")
	require.NoError(t, err)
	require.NoError(t, c.Logout(ctx))

	for _, req := range backend.recorded() {
		assert.Empty(t, req.CSRF, req.Path)
	}
	assert.Equal(t, 0, backend.fetches())
}

func TestClient_CSRFRejectionRetriesExactlyOnce(t *testing.T) {
	var posts atomic.Int32
	backend := &fakeBackend{
		csrfTokens: []string{"stale", "fresh"},
		handler: func(w http.ResponseWriter, r *http.Request) {
			posts.Add(1)
			writeJSON(w, http.StatusForbidden, map[string]string{"error": csrfRejectedMessage})
		},
	}
	c, _, expirer := newTestClient(t, backend)

	err := c.Post(context.Background(), "/laudos/1/refazer", map[string]string{"motivo": "x"}, nil)
	require.ErrorIs(t, err, ErrCSRFInvalid)

	assert.Equal(t, int32(2), posts.Load())
	assert.Equal(t, 2, backend.fetches())

	reqs := backend.recorded()
	require.Len(t, reqs, 2)
	assert.Equal(t, "stale", reqs[0].CSRF)
	assert.Equal(t, "fresh", reqs[1].CSRF)
	assert.Zero(t, expirer.calls.Load())
}

func TestClient_CSRFRejectionRecoversTransparently(t *testing.T) {
	var posts atomic.Int32
	backend := &fakeBackend{
		csrfTokens: []string{"stale", "fresh"},
		handler: func(w http.ResponseWriter, r *http.Request) {
			if posts.Add(1) == 1 {
				writeJSON(w, http.StatusForbidden, map[string]string{"error": csrfRejectedMessage})
				return
			}
			writeJSON(w, http.StatusOK, models.LaudoResponse{Laudo: models.Laudo{ID: "l1"}})
		},
	}
	c, store, _ := newTestClient(t, backend)

	var resp models.LaudoResponse
	require.NoError(t, c.Post(context.Background(), "/laudos", map[string]string{}, &resp))
	assert.Equal(t, "l1", resp.Laudo.ID)

	token, _ := store.Get(credentials.KeyCSRFToken)
	assert.Equal(t, "fresh", token)
}

func TestClient_Other403IsNotRetried(t *testing.T) {
	backend := &fakeBackend{
		handler: func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusForbidden, map[string]string{"erro": "Acesso negado"})
		},
	}
	c, _, _ := newTestClient(t, backend)

	err := c.Post(context.Background(), "/laudos", map[string]string{}, nil)
	require.ErrorIs(t, err, ErrRequest)

	var respErr *ResponseError
	require.ErrorAs(t, err, &respErr)
	assert.Equal(t, http.StatusForbidden, respErr.StatusCode)
	assert.Equal(t, "Acesso negado", respErr.Message)
	assert.Len(t, backend.recorded(), 1)
}

func TestClient_CSRFRefreshFailureExpiresSession(t *testing.T) {
	var posts atomic.Int32
	backend := &fakeBackend{}
	backend.handler = func(w http.ResponseWriter, r *http.Request) {
		posts.Add(1)
		backend.mu.Lock()
		backend.csrfStatus = http.StatusInternalServerError
		backend.mu.Unlock()
		writeJSON(w, http.StatusForbidden, map[string]string{"error": csrfRejectedMessage})
	}
	c, store, expirer := newTestClient(t, backend)

	err := c.Post(context.Background(), "/laudos", map[string]string{}, nil)
	require.ErrorIs(t, err, ErrSessionExpired)
	assert.Equal(t, int32(1), posts.Load())
	assert.Equal(t, int32(1), expirer.calls.Load())

	_, ok := store.Get(credentials.KeyCSRFToken)
	assert.False(t, ok)
}

func TestClient_CSRFUnavailableAbortsRequest(t *testing.T) {
	backend := &fakeBackend{csrfStatus: http.StatusServiceUnavailable}
	c, _, expirer := newTestClient(t, backend)

	err := c.Delete(context.Background(), "/laudos/1", nil, nil)
	require.ErrorIs(t, err, ErrCSRFUnavailable)
	assert.Empty(t, backend.recorded())
	assert.Zero(t, expirer.calls.Load())
}

func TestClient_StatusClassification(t *testing.T) {
	tests := []struct {
		name        string
		path        string
		status      int
		body        map[string]string
		wantErr     error
		wantExpired bool
		wantMessage string
	}{
		{
			name:        "bad credentials",
			path:        "/auth/login",
			status:      http.StatusBadRequest,
			body:        map[string]string{"erro": "Credenciais inválidas"},
			wantErr:     ErrAuthenticationRejected,
			wantMessage: "Credenciais inválidas",
		},
		{
			name:    "rejected refresh",
			path:    "/auth/refresh-token",
			status:  http.StatusUnauthorized,
			body:    map[string]string{"erro": "Refresh token inválido"},
			wantErr: ErrAuthenticationRejected,
		},
		{
			name:        "expired access token",
			path:        "/laudos",
			status:      http.StatusUnauthorized,
			wantErr:     ErrSessionExpired,
			wantExpired: true,
		},
		{
			name:    "server error",
			path:    "/laudos",
			status:  http.StatusInternalServerError,
			body:    map[string]string{"message": "boom"},
			wantErr: ErrServer,
		},
		{
			name:    "not found",
			path:    "/laudos/x",
			status:  http.StatusNotFound,
			wantErr: ErrRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &fakeBackend{
				handler: func(w http.ResponseWriter, r *http.Request) {
					writeJSON(w, tt.status, tt.body)
				},
			}
			c, _, expirer := newTestClient(t, backend)

			err := c.Post(context.Background(), tt.path, map[string]string{}, nil)
			require.ErrorIs(t, err, tt.wantErr)

			if tt.wantExpired {
				assert.Equal(t, int32(1), expirer.calls.Load())
			} else {
				assert.Zero(t, expirer.calls.Load())
			}

			if tt.wantMessage != "" {
				var respErr *ResponseError
				require.ErrorAs(t, err, &respErr)
				assert.Equal(t, tt.wantMessage, respErr.Message)
			}
		})
	}
}

func TestClient_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(Config{ServerURL: url + "/api"}, credentials.NewMemoryStore())
	require.NoError(t, err)

	err = c.Get(context.Background(), "/laudos", nil)
	require.ErrorIs(t, err, ErrNetwork)
}

func TestClient_RawBody(t *testing.T) {
	backend := &fakeBackend{
		handler: func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/pdf")
			_, _ = w.Write([]byte("%PDF-1.4"))
		},
	}
	c, _, _ := newTestClient(t, backend)

	data, err := c.DownloadPDF(context.Background(), "l1", true)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(data))
	assert.Equal(t, "/laudos/l1/download/assinado", backend.recorded()[0].Path)
}

func TestRequest_markRetriedOnce(t *testing.T) {
	req, err := NewRequest(http.MethodPost, "/laudos", nil)
	require.NoError(t, err)

	assert.False(t, req.Retried())
	assert.True(t, req.markRetried())
	assert.False(t, req.markRetried())
	assert.True(t, req.Retried())
}

func TestRequest_needsCSRF(t *testing.T) {
	tests := []struct {
		method string
		path   string
		want   bool
	}{
		{http.MethodGet, "/laudos", false},
		{http.MethodPost, "/laudos", true},
		{http.MethodPut, "/usuarios/1", true},
		{http.MethodPatch, "/laudos/1", true},
		{http.MethodDelete, "/laudos/1", true},
		{http.MethodPost, "/auth/login", false},
		{http.MethodPost, "/auth/login/", false},
		{http.MethodPost, "/auth/refresh-token", false},
		{http.MethodPost, "/auth/logout", false},
		{http.MethodPost, "/csrf-token", false},
		{http.MethodPost, "/auth/login-history", true},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req, err := NewRequest(tt.method, tt.path, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, req.needsCSRF())
		})
	}
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"csrf", newResponseError(ErrCSRFInvalid, 403, nil), "A security problem was detected. Reload and try again."},
		{"expired", ErrSessionExpired, "Session expired. Redirecting to login..."},
		{"credentials", newResponseError(ErrAuthenticationRejected, 400, []byte(`{"erro":"Credenciais inválidas"}`)), "Credenciais inválidas"},
		{"network", ErrNetwork, "No response from the server. Check your connection."},
		{"server", newResponseError(ErrServer, 500, nil), "Server error. Try again later."},
		{"request", newResponseError(ErrRequest, 404, []byte(`{"erro":"Laudo não encontrado"}`)), "Laudo não encontrado"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, UserMessage(tt.err))
		})
	}
}
