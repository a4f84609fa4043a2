package client

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/laudofy/laudofy/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pdfBytes = []byte("%PDF-1.7\n1 0 obj\n<<>>\nendobj\n")

func TestListLaudos_omitsEmptyFilterFields(t *testing.T) {
	var gotQuery string
	backend := &fakeBackend{
		handler: func(w http.ResponseWriter, r *http.Request) {
			gotQuery = r.URL.RawQuery
			writeJSON(w, http.StatusOK, models.LaudoPage{
				Laudos:       []models.Laudo{{ID: "l1", Status: models.StatusRealizado}},
				TotalPaginas: 3,
				TotalItens:   21,
			})
		},
	}
	c, _, _ := newTestClient(t, backend)

	page, err := c.ListLaudos(context.Background(), LaudoFilter{Status: models.StatusAssinado, Page: 2})
	require.NoError(t, err)
	assert.Equal(t, "page=2&status=Laudo+assinado", gotQuery)
	assert.Equal(t, 21, page.TotalItens)
	require.Len(t, page.Laudos, 1)

	_, err = c.ListLaudos(context.Background(), LaudoFilter{})
	require.NoError(t, err)
	assert.Empty(t, gotQuery)
}

func TestCreateLaudo_validatesConclusao(t *testing.T) {
	backend := &fakeBackend{}
	c, _, _ := newTestClient(t, backend)

	_, err := c.CreateLaudo(context.Background(), "e1", "   curta   ")
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = c.CreateLaudo(context.Background(), "", "conclusão suficientemente longa")
	require.ErrorIs(t, err, ErrInvalidInput)

	assert.Empty(t, backend.recorded())
	assert.Zero(t, backend.fetches())
}

func TestCreateLaudo_sendsTrimmedBody(t *testing.T) {
	var body []byte
	backend := &fakeBackend{
		handler: func(w http.ResponseWriter, r *http.Request) {
			body, _ = io.ReadAll(r.Body)
			writeJSON(w, http.StatusCreated, models.LaudoResponse{Laudo: models.Laudo{ID: "l9"}})
		},
	}
	c, _, _ := newTestClient(t, backend)

	resp, err := c.CreateLaudo(context.Background(), "e1", "  Sem alterações significativas.  ")
	require.NoError(t, err)
	assert.Equal(t, "l9", resp.Laudo.ID)
	assert.JSONEq(t, `{"exameId":"e1","conclusao":"Sem alterações significativas."}`, string(body))
}

func TestUploadAssinado_validation(t *testing.T) {
	backend := &fakeBackend{}
	c, _, _ := newTestClient(t, backend)
	ctx := context.Background()

	tests := []struct {
		name     string
		filename string
		data     []byte
	}{
		{"empty", "laudo.pdf", nil},
		{"not a pdf", "laudo.pdf", []byte("hello world")},
		{"wrong extension", "laudo.txt", pdfBytes},
		{"too large", "laudo.pdf", append(append([]byte{}, pdfBytes...), bytes.Repeat([]byte{'x'}, MaxSignedFileSize)...)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.UploadAssinado(ctx, "l1", tt.filename, bytes.NewReader(tt.data))
			require.ErrorIs(t, err, ErrInvalidInput)
		})
	}

	assert.Empty(t, backend.recorded())
}

func TestUploadAssinado_multipart(t *testing.T) {
	var (
		gotName string
		gotData []byte
	)
	backend := &fakeBackend{
		handler: func(w http.ResponseWriter, r *http.Request) {
			f, hdr, err := r.FormFile(signedFileField)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			defer f.Close()
			gotName = hdr.Filename
			gotData, _ = io.ReadAll(f)
			writeJSON(w, http.StatusOK, models.LaudoResponse{
				Laudo:       models.Laudo{ID: "l1", Status: models.StatusAssinado, LaudoAssinado: "s3://signed"},
				Notificacao: &models.Notificacao{Status: models.EnvioEnviado},
			})
		},
	}
	c, _, _ := newTestClient(t, backend)

	resp, err := c.UploadAssinado(context.Background(), "l1", "/tmp/Laudo.PDF", bytes.NewReader(pdfBytes))
	require.NoError(t, err)
	assert.Equal(t, "Laudo.PDF", gotName)
	assert.Equal(t, pdfBytes, gotData)
	assert.True(t, resp.Laudo.IsSigned())

	reqs := backend.recorded()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/laudos/l1/upload", reqs[0].Path)
	assert.NotEmpty(t, reqs[0].CSRF)
}

func TestRefazerLaudo_requiresMotivo(t *testing.T) {
	backend := &fakeBackend{}
	c, _, _ := newTestClient(t, backend)

	_, err := c.RefazerLaudo(context.Background(), "l1", "nova conclusão revisada", "  ")
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.Empty(t, backend.recorded())
}

func TestEnviarEmail_refusesUnsigned(t *testing.T) {
	backend := &fakeBackend{}
	c, _, _ := newTestClient(t, backend)

	_, err := c.EnviarEmail(context.Background(), &models.Laudo{ID: "l1", Status: models.StatusRealizado})
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.Empty(t, backend.recorded())
}

func TestEnviarEmail_success(t *testing.T) {
	backend := &fakeBackend{
		handler: func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, models.EmailResponse{Message: "ok", Destinatario: "p@x.com", Sandbox: true})
		},
	}
	c, _, _ := newTestClient(t, backend)

	resp, err := c.EnviarEmail(context.Background(), &models.Laudo{ID: "l1", LaudoAssinado: "s3://signed"})
	require.NoError(t, err)
	assert.True(t, resp.Sandbox)
	assert.Equal(t, "p@x.com", resp.Destinatario)
	assert.True(t, strings.HasSuffix(backend.recorded()[0].Path, "/enviar-email"))
}
