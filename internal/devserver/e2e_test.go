package devserver

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/laudofy/laudofy/internal/client"
	"github.com/laudofy/laudofy/internal/credentials"
	"github.com/laudofy/laudofy/internal/laudo"
	"github.com/laudofy/laudofy/internal/live"
	"github.com/laudofy/laudofy/internal/models"
	"github.com/laudofy/laudofy/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type navRecorder struct {
	mu    sync.Mutex
	paths []string
}

func (n *navRecorder) Navigate(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.paths = append(n.paths, path)
}

func (n *navRecorder) last() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.paths) == 0 {
		return ""
	}
	return n.paths[len(n.paths)-1]
}

type harness struct {
	server *Server
	client *client.Client
	sess   *session.Session
	store  *credentials.MemoryStore
	nav    *navRecorder
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()

	s, srv := newTestServer(t, testConfig(), opts...)

	h := newHarnessFor(t, srv.URL+"/api")
	h.server = s
	return h
}

// newHarnessFor builds a second client and session against a running server.
func newHarnessFor(t *testing.T, baseURL string) *harness {
	t.Helper()

	store := credentials.NewMemoryStore()
	nav := &navRecorder{}
	sess := session.New(store, session.WithNavigator(nav))
	require.NoError(t, sess.Init())

	cfg := client.DefaultConfig()
	cfg.ServerURL = baseURL
	c, err := client.New(cfg, store, client.WithSessionExpirer(sess))
	require.NoError(t, err)

	return &harness{client: c, sess: sess, store: store, nav: nav}
}

func (h *harness) login(t *testing.T, email, senha string) {
	t.Helper()

	pair, err := h.client.Login(context.Background(), email, senha)
	require.NoError(t, err)
	require.NoError(t, h.sess.Login(pair.AccessToken, pair.RefreshToken))
}

func TestEndToEnd_LoginDerivesUser(t *testing.T) {
	h := newHarness(t)
	h.login(t, "medico@laudofy.dev", "medico123")

	require.True(t, h.sess.IsAuthenticated())
	u := h.sess.User()
	require.NotNil(t, u)
	assert.Equal(t, models.RoleMedico, u.Role)
	assert.Equal(t, "medico@laudofy.dev", u.Email)
}

func TestEndToEnd_BadCredentials(t *testing.T) {
	h := newHarness(t)

	_, err := h.client.Login(context.Background(), "medico@laudofy.dev", "nope")
	require.ErrorIs(t, err, client.ErrAuthenticationRejected)
	assert.False(t, h.sess.IsAuthenticated())
	assert.Empty(t, h.nav.last(), "a rejected login must not expire the session")
}

func TestEndToEnd_CSRFRotationIsRecovered(t *testing.T) {
	h := newHarness(t)
	h.login(t, "medico@laudofy.dev", "medico123")
	ctx := context.Background()

	first, err := h.client.CreateLaudo(ctx, "exa-1", "Ritmo sinusal normal.")
	require.NoError(t, err)

	h.server.RotateCSRF()

	second, err := h.client.CreateLaudo(ctx, "exa-2", "Sem alterações agudas.")
	require.NoError(t, err)
	assert.NotEqual(t, first.Laudo.ID, second.Laudo.ID)
	assert.True(t, h.sess.IsAuthenticated())
	assert.Empty(t, h.nav.last())
}

func TestEndToEnd_ExpiredAccessTokenEndsSession(t *testing.T) {
	var skew atomic.Int64
	start := time.Now()
	h := newHarness(t, WithClock(func() time.Time {
		return start.Add(time.Duration(skew.Load()))
	}))
	h.login(t, "tecnico@laudofy.dev", "tecnico123")

	_, err := h.client.ListLaudos(context.Background(), client.LaudoFilter{})
	require.NoError(t, err)

	skew.Store(int64(time.Hour))

	_, err = h.client.ListLaudos(context.Background(), client.LaudoFilter{})
	require.ErrorIs(t, err, client.ErrSessionExpired)

	assert.Equal(t, session.SessionExpiredPath, h.nav.last())
	assert.Nil(t, h.sess.User())
	_, ok := h.store.Get(credentials.KeyAccessToken)
	assert.False(t, ok)
}

func TestEndToEnd_SignAndDownload(t *testing.T) {
	h := newHarness(t)
	h.login(t, "medico@laudofy.dev", "medico123")
	ctx := context.Background()

	created, err := h.client.CreateLaudo(ctx, "exa-1", "Ritmo sinusal normal.")
	require.NoError(t, err)

	original, err := h.client.DownloadPDF(ctx, created.Laudo.ID, false)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(original, []byte("%PDF-")))

	pdf := []byte("%PDF-1.7\nsigned copy")
	signed, err := h.client.UploadAssinado(ctx, created.Laudo.ID, "assinado.pdf", bytes.NewReader(pdf))
	require.NoError(t, err)
	assert.Equal(t, models.StatusAssinado, signed.Laudo.Status)

	got, err := h.client.DownloadPDF(ctx, created.Laudo.ID, true)
	require.NoError(t, err)
	assert.Equal(t, pdf, got)

	history, err := h.client.Historico(ctx, created.Laudo.ID)
	require.NoError(t, err)

	facts := laudo.FactsFor(h.sess.User(), &signed.Laudo, history)
	actions := laudo.Evaluate(facts)
	assert.False(t, actions.UploadSigned)
	assert.True(t, actions.Redo)
	assert.False(t, actions.SendEmail, "the automatic notification already succeeded")
}

func TestEndToEnd_LiveUpdatesReachBoard(t *testing.T) {
	h := newHarness(t)
	h.login(t, "medico@laudofy.dev", "medico123")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	page, err := h.client.ListLaudos(ctx, client.LaudoFilter{})
	require.NoError(t, err)

	board := laudo.NewBoard()
	board.Load(page.Laudos)

	ch, err := live.Dial(ctx, live.URL(h.client.BaseURL()), live.WithToken(func() (string, bool) {
		return h.store.Get(credentials.KeyAccessToken)
	}))
	require.NoError(t, err)
	defer ch.Close()

	go func() { _ = ch.Run(ctx, live.BoardHandler(board)) }()

	require.Eventually(t, func() bool { return h.server.hub.subscribers() == 1 }, 5*time.Second, 10*time.Millisecond)

	created, err := h.client.CreateLaudo(ctx, "exa-1", "Ritmo sinusal normal.")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, ok := board.Get(created.Laudo.ID)
		return ok && got.Status == models.StatusRealizado
	}, 5*time.Second, 10*time.Millisecond)

	_, err = h.client.UploadAssinado(ctx, created.Laudo.ID, "a.pdf", bytes.NewReader([]byte("%PDF-1.7")))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, _ := board.Get(created.Laudo.ID)
		return got.Status == models.StatusAssinado
	}, 5*time.Second, 10*time.Millisecond)
}

func TestEndToEnd_LiveRequiresToken(t *testing.T) {
	h := newHarness(t)

	_, err := live.Dial(context.Background(), live.URL(h.client.BaseURL()))
	require.Error(t, err)
}
