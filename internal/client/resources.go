package client

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/laudofy/laudofy/internal/models"
)

// PageQuery is the common pagination of the read endpoints.
type PageQuery struct {
	Page   int
	Limit  int
	Search string
	// Role narrows GET /usuarios.
	Role models.Role
}

// values encodes the query. Each listing names its search parameter
// differently.
func (p PageQuery) values(searchKey string) url.Values {
	q := url.Values{}
	if p.Page > 0 {
		q.Set("page", strconv.Itoa(p.Page))
	}
	if p.Limit > 0 {
		q.Set("limit", strconv.Itoa(p.Limit))
	}
	if p.Search != "" {
		q.Set(searchKey, p.Search)
	}
	if p.Role != "" {
		q.Set("role", string(p.Role))
	}
	return q
}

// ListPacientes returns one page of patients. Search filters by name.
func (c *Client) ListPacientes(ctx context.Context, p PageQuery) (*models.PacientePage, error) {
	var page models.PacientePage
	if err := c.Get(ctx, "/pacientes", &page, WithQuery(p.values("nome"))); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *Client) GetPaciente(ctx context.Context, id string) (*models.Paciente, error) {
	if err := requireID(id); err != nil {
		return nil, err
	}
	var out models.Paciente
	if err := c.Get(ctx, "/pacientes/"+url.PathEscape(id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreatePaciente registers a patient.
func (c *Client) CreatePaciente(ctx context.Context, in models.PacienteInput) (*models.Paciente, error) {
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	var out models.Paciente
	if err := c.Post(ctx, "/pacientes", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdatePaciente replaces a patient's registration data.
func (c *Client) UpdatePaciente(ctx context.Context, id string, in models.PacienteInput) (*models.Paciente, error) {
	if err := requireID(id); err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	var out models.Paciente
	if err := c.Put(ctx, "/pacientes/"+url.PathEscape(id), in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListExames(ctx context.Context, p PageQuery) (*models.ExamePage, error) {
	var page models.ExamePage
	if err := c.Get(ctx, "/exames", &page, WithQuery(p.values("search"))); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *Client) GetExame(ctx context.Context, id string) (*models.Exame, error) {
	if err := requireID(id); err != nil {
		return nil, err
	}
	var out models.Exame
	if err := c.Get(ctx, "/exames/"+url.PathEscape(id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateExame registers an exam for a patient. The backend takes the
// intake form as multipart.
func (c *Client) CreateExame(ctx context.Context, in models.ExameInput) (*models.Exame, error) {
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	fields := [][2]string{
		{"paciente", in.Paciente},
		{"tipoExame", in.TipoExame},
		{"sintomas", strings.TrimSpace(in.Sintomas)},
	}
	if in.Altura > 0 {
		fields = append(fields, [2]string{"altura", strconv.FormatFloat(in.Altura, 'f', -1, 64)})
	}
	if in.Peso > 0 {
		fields = append(fields, [2]string{"peso", strconv.FormatFloat(in.Peso, 'f', -1, 64)})
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, fmt.Errorf("failed to build exam form: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to build exam form: %w", err)
	}

	req := &Request{
		Method:      http.MethodPost,
		Path:        "/exames",
		Body:        buf.Bytes(),
		ContentType: mw.FormDataContentType(),
	}

	var out models.Exame
	if err := c.Do(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListUsuarios is admin only on the backend.
func (c *Client) ListUsuarios(ctx context.Context, p PageQuery) (*models.UsuarioPage, error) {
	var page models.UsuarioPage
	if err := c.Get(ctx, "/usuarios", &page, WithQuery(p.values("search"))); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *Client) GetUsuario(ctx context.Context, id string) (*models.Usuario, error) {
	if err := requireID(id); err != nil {
		return nil, err
	}
	var out models.Usuario
	if err := c.Get(ctx, usuarioPath(id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateUsuario creates an account. A password is required and medicos
// need a CRM.
func (c *Client) CreateUsuario(ctx context.Context, in models.UsuarioInput) (*models.Usuario, error) {
	in = in.Normalize()
	if err := in.Validate(true); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	var out models.Usuario
	if err := c.Post(ctx, "/usuarios", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateUsuario edits an account. An empty password keeps the current one.
func (c *Client) UpdateUsuario(ctx context.Context, id string, in models.UsuarioInput) (*models.Usuario, error) {
	if err := requireID(id); err != nil {
		return nil, err
	}
	in = in.Normalize()
	if err := in.Validate(false); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	var out models.Usuario
	if err := c.Put(ctx, usuarioPath(id), in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteUsuario(ctx context.Context, id string) error {
	if err := requireID(id); err != nil {
		return err
	}
	return c.Delete(ctx, usuarioPath(id), nil, nil)
}

// Auditoria is admin only on the backend.
func (c *Client) Auditoria(ctx context.Context, p PageQuery) (*models.AuditPage, error) {
	var page models.AuditPage
	if err := c.Get(ctx, "/auditoria", &page, WithQuery(p.values("search"))); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *Client) Estatisticas(ctx context.Context) (*models.Estatisticas, error) {
	var out models.Estatisticas
	if err := c.Get(ctx, "/estatisticas", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func usuarioPath(id string) string {
	return "/usuarios/" + url.PathEscape(id)
}
