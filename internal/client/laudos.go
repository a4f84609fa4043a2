package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/laudofy/laudofy/internal/models"
)

const (
	// MinConclusaoLength is the shortest accepted conclusão, after trimming.
	MinConclusaoLength = 10
	// MaxSignedFileSize caps signed PDF uploads.
	MaxSignedFileSize = 5 << 20

	signedFileField = "signedFile"
)

// LaudoFilter narrows GET /laudos. Zero fields are omitted.
type LaudoFilter struct {
	Status   models.Status
	Paciente string
	Page     int
	Limit    int
}

func (f LaudoFilter) query() url.Values {
	q := url.Values{}
	if f.Status != "" {
		q.Set("status", string(f.Status))
	}
	if f.Paciente != "" {
		q.Set("paciente", f.Paciente)
	}
	if f.Page > 0 {
		q.Set("page", strconv.Itoa(f.Page))
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	return q
}

// ListLaudos returns one page of laudos.
func (c *Client) ListLaudos(ctx context.Context, filter LaudoFilter) (*models.LaudoPage, error) {
	var page models.LaudoPage
	if err := c.Get(ctx, "/laudos", &page, WithQuery(filter.query())); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetLaudo returns a single laudo.
func (c *Client) GetLaudo(ctx context.Context, id string) (*models.Laudo, error) {
	if err := requireID(id); err != nil {
		return nil, err
	}

	var laudo models.Laudo
	if err := c.Get(ctx, laudoPath(id), &laudo); err != nil {
		return nil, err
	}
	return &laudo, nil
}

// Historico returns the history of a laudo.
func (c *Client) Historico(ctx context.Context, id string) ([]models.HistoryEntry, error) {
	if err := requireID(id); err != nil {
		return nil, err
	}

	var h models.Historico
	if err := c.Get(ctx, laudoPath(id, "historico"), &h); err != nil {
		return nil, err
	}
	return h.Historico, nil
}

type createLaudoRequest struct {
	ExameID   string `json:"exameId"`
	Conclusao string `json:"conclusao"`
}

// CreateLaudo creates a laudo for an exam.
func (c *Client) CreateLaudo(ctx context.Context, exameID, conclusao string) (*models.LaudoResponse, error) {
	if err := requireID(exameID); err != nil {
		return nil, err
	}
	conclusao, err := validConclusao(conclusao)
	if err != nil {
		return nil, err
	}

	var resp models.LaudoResponse
	if err := c.Post(ctx, "/laudos", createLaudoRequest{ExameID: exameID, Conclusao: conclusao}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UploadAssinado uploads the signed PDF of a laudo. The file must be a PDF
// no larger than MaxSignedFileSize.
func (c *Client) UploadAssinado(ctx context.Context, id, filename string, r io.Reader) (*models.LaudoResponse, error) {
	if err := requireID(id); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(r, MaxSignedFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read signed file: %w", err)
	}
	if err := validSignedFile(filename, data); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(signedFileField, filepath.Base(filename))
	if err != nil {
		return nil, fmt.Errorf("failed to build upload: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("failed to build upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to build upload: %w", err)
	}

	req := &Request{
		Method:      http.MethodPost,
		Path:        laudoPath(id, "upload"),
		Body:        buf.Bytes(),
		ContentType: mw.FormDataContentType(),
	}

	var resp models.LaudoResponse
	if err := c.Do(ctx, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

type refazerRequest struct {
	Conclusao string `json:"conclusao"`
	Motivo    string `json:"motivo"`
}

// RefazerLaudo creates a new version of a laudo with a new conclusão.
func (c *Client) RefazerLaudo(ctx context.Context, id, conclusao, motivo string) (*models.LaudoResponse, error) {
	if err := requireID(id); err != nil {
		return nil, err
	}
	conclusao, err := validConclusao(conclusao)
	if err != nil {
		return nil, err
	}
	motivo = strings.TrimSpace(motivo)
	if motivo == "" {
		return nil, fmt.Errorf("%w: a reason is required", ErrInvalidInput)
	}

	var resp models.LaudoResponse
	if err := c.Post(ctx, laudoPath(id, "refazer"), refazerRequest{Conclusao: conclusao, Motivo: motivo}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// EnviarEmail sends the signed laudo to the patient. laudo is the caller's
// current copy; sending is refused locally when it has no signed artifact.
func (c *Client) EnviarEmail(ctx context.Context, laudo *models.Laudo) (*models.EmailResponse, error) {
	if laudo == nil {
		return nil, fmt.Errorf("%w: laudo is required", ErrInvalidInput)
	}
	if !laudo.IsSigned() {
		return nil, fmt.Errorf("%w: laudo %s is not signed", ErrInvalidInput, laudo.ID)
	}

	var resp models.EmailResponse
	if err := c.Post(ctx, laudoPath(laudo.ID, "enviar-email"), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DownloadPDF returns the original or signed PDF of a laudo.
func (c *Client) DownloadPDF(ctx context.Context, id string, signed bool) ([]byte, error) {
	if err := requireID(id); err != nil {
		return nil, err
	}

	kind := "original"
	if signed {
		kind = "assinado"
	}

	var data []byte
	if err := c.Get(ctx, laudoPath(id, "download", kind), &data, WithHeader("Accept", "application/pdf")); err != nil {
		return nil, err
	}
	return data, nil
}

func laudoPath(id string, rest ...string) string {
	parts := append([]string{"/laudos", url.PathEscape(id)}, rest...)
	return strings.Join(parts, "/")
}

func requireID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidInput)
	}
	return nil
}

func validConclusao(conclusao string) (string, error) {
	conclusao = strings.TrimSpace(conclusao)
	if len([]rune(conclusao)) < MinConclusaoLength {
		return "", fmt.Errorf("%w: conclusão must have at least %d characters", ErrInvalidInput, MinConclusaoLength)
	}
	return conclusao, nil
}

func validSignedFile(filename string, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: signed file is empty", ErrInvalidInput)
	}
	if len(data) > MaxSignedFileSize {
		return fmt.Errorf("%w: signed file exceeds %d bytes", ErrInvalidInput, MaxSignedFileSize)
	}
	if !strings.EqualFold(filepath.Ext(filename), ".pdf") || http.DetectContentType(data) != "application/pdf" {
		return fmt.Errorf("%w: signed file must be a PDF", ErrInvalidInput)
	}
	return nil
}
