package devserver

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/laudofy/laudofy/internal/laudo"
	"github.com/laudofy/laudofy/internal/models"
	"github.com/rs/zerolog/log"
)

const (
	minConclusao  = 10
	maxSignedSize = 5 << 20
)

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"erro": "Requisição inválida"})
		return
	}

	u, err := s.store.authenticate(req.Email, req.Senha)
	if err != nil {
		log.Info().Str("email", req.Email).Msg("login rejected")
		writeJSON(w, http.StatusBadRequest, map[string]string{"erro": "Credenciais inválidas"})
		return
	}

	pair, err := s.tokens.issue(u)
	if err != nil {
		log.Error().Err(err).Msg("failed to issue tokens")
		writeError(w, http.StatusInternalServerError, "Erro ao gerar tokens")
		return
	}

	s.store.recordAudit(u.Email, "login", "Login realizado")
	log.Info().Str("email", u.Email).Str("role", string(u.Role)).Msg("login")
	writeJSON(w, http.StatusOK, pair)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req models.RefreshRequest
	if err := decodeJSON(w, r, &req); err != nil || req.RefreshToken == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"erro": "Refresh token não fornecido"})
		return
	}

	userID, err := s.tokens.consume(req.RefreshToken)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"erro": "Refresh token inválido"})
		return
	}

	u, err := s.store.userByID(userID)
	if err != nil || !u.Ativo {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"erro": "Usuário não encontrado"})
		return
	}

	pair, err := s.tokens.issue(u)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Erro ao gerar tokens")
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req models.RefreshRequest
	// body is optional
	_ = decodeJSON(w, r, &req)
	if req.RefreshToken != "" {
		s.tokens.revoke(req.RefreshToken)
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logout realizado"})
}

func (s *Server) handleListLaudos(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r)
	items, pages, total := s.store.listLaudos(laudoQuery{
		Status:   models.Status(r.URL.Query().Get("status")),
		Paciente: r.URL.Query().Get("paciente"),
		Page:     page,
		Limit:    limit,
	})
	writeJSON(w, http.StatusOK, models.LaudoPage{Laudos: items, TotalPaginas: pages, TotalItens: total})
}

func (s *Server) handleGetLaudo(w http.ResponseWriter, r *http.Request) {
	l, _, err := s.store.getLaudo(r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (s *Server) handleHistorico(w http.ResponseWriter, r *http.Request) {
	_, history, err := s.store.getLaudo(r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.Historico{Historico: history})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var (
		data []byte
		err  error
	)
	switch r.PathValue("kind") {
	case "original":
		var l models.Laudo
		l, _, err = s.store.getLaudo(id)
		data = renderPDF(l)
	case "assinado":
		data, err = s.store.signedPDF(id)
	default:
		err = ErrNotFound
	}
	if err != nil {
		writeStoreError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename="laudo-%s.pdf"`, id))
	_, _ = w.Write(data)
}

type createLaudoRequest struct {
	ExameID   string `json:"exameId"`
	Conclusao string `json:"conclusao"`
}

func (s *Server) handleCreateLaudo(w http.ResponseWriter, r *http.Request) {
	var req createLaudoRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Requisição inválida")
		return
	}
	conclusao := strings.TrimSpace(req.Conclusao)
	if len([]rune(conclusao)) < minConclusao {
		writeError(w, http.StatusBadRequest, "A conclusão deve ter pelo menos 10 caracteres")
		return
	}

	l, err := s.store.createLaudo(req.ExameID, conclusao, userFromContext(r.Context()))
	if err != nil {
		writeStoreError(w, err)
		return
	}

	s.hub.publish(laudo.EventCreated, l)
	writeJSON(w, http.StatusCreated, models.LaudoResponse{Laudo: l, Message: "Laudo criado com sucesso"})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxSignedSize+1<<20)

	file, hdr, err := r.FormFile("signedFile")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Arquivo assinado não enviado")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxSignedSize+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Falha ao ler o arquivo")
		return
	}
	if len(data) > maxSignedSize {
		writeError(w, http.StatusRequestEntityTooLarge, "O arquivo deve ter no máximo 5MB")
		return
	}
	if !strings.EqualFold(filepath.Ext(hdr.Filename), ".pdf") || http.DetectContentType(data) != "application/pdf" {
		writeError(w, http.StatusBadRequest, "Apenas arquivos PDF são permitidos")
		return
	}

	actor := userFromContext(r.Context())
	l, err := s.store.signLaudo(r.PathValue("id"), actor, data)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	s.hub.publish(laudo.EventUpdated, l)

	// the backend notifies the patient right after signing
	notif := &models.Notificacao{Status: "NaoEnviado"}
	if updated, entry, err := s.store.sendEmail(l.ID, actor, s.deliver); err == nil {
		l = updated
		notif = &models.Notificacao{Status: entry.StatusEnvio, Destinatario: entry.DestinatarioEmail}
	}

	writeJSON(w, http.StatusOK, models.LaudoResponse{
		Laudo:       l,
		Message:     "Laudo assinado com sucesso",
		Notificacao: notif,
	})
}

type refazerRequest struct {
	Conclusao string `json:"conclusao"`
	Motivo    string `json:"motivo"`
}

func (s *Server) handleRefazer(w http.ResponseWriter, r *http.Request) {
	var req refazerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Requisição inválida")
		return
	}
	conclusao := strings.TrimSpace(req.Conclusao)
	motivo := strings.TrimSpace(req.Motivo)
	if len([]rune(conclusao)) < minConclusao || motivo == "" {
		writeError(w, http.StatusBadRequest, "Conclusão e motivo são obrigatórios")
		return
	}

	old, replacement, err := s.store.redoLaudo(r.PathValue("id"), userFromContext(r.Context()), conclusao, motivo)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	s.hub.publish(laudo.EventUpdated, old)
	s.hub.publish(laudo.EventCreated, replacement)
	writeJSON(w, http.StatusCreated, models.LaudoResponse{Laudo: replacement, Message: "Laudo refeito com sucesso"})
}

func (s *Server) handleEnviarEmail(w http.ResponseWriter, r *http.Request) {
	l, entry, err := s.store.sendEmail(r.PathValue("id"), userFromContext(r.Context()), s.deliver)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	if entry.StatusEnvio == models.EnvioFalha {
		writeError(w, http.StatusBadGateway, "Falha ao enviar email: "+entry.MensagemErro)
		return
	}

	writeJSON(w, http.StatusOK, models.EmailResponse{
		Message:      "Email enviado com sucesso",
		Destinatario: entry.DestinatarioEmail,
		Sandbox:      s.cfg.EmailSandbox,
		Laudo:        &l,
	})
}

var errNoEmail = errors.New("paciente sem email cadastrado")

// deliver simulates the mail provider.
func (s *Server) deliver(p models.Paciente) error {
	if p.Email == "" {
		return errNoEmail
	}
	log.Info().Str("destinatario", p.Email).Bool("sandbox", s.cfg.EmailSandbox).Msg("email sent")
	return nil
}

func (s *Server) handleListPacientes(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r)
	items, pages := s.store.listPacientes(r.URL.Query().Get("nome"), page, limit)
	writeJSON(w, http.StatusOK, models.PacientePage{Pacientes: items, TotalPaginas: pages})
}

func (s *Server) handleGetPaciente(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.getPaciente(r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleCreatePaciente(w http.ResponseWriter, r *http.Request) {
	var in models.PacienteInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "Requisição inválida")
		return
	}
	if err := in.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	p, err := s.store.createPaciente(in, userFromContext(r.Context()))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleUpdatePaciente(w http.ResponseWriter, r *http.Request) {
	var in models.PacienteInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "Requisição inválida")
		return
	}
	if err := in.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	p, err := s.store.updatePaciente(r.PathValue("id"), in, userFromContext(r.Context()))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleListExames(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r)
	items, pages := s.store.listExames(page, limit)
	writeJSON(w, http.StatusOK, models.ExamePage{Exames: items, TotalPaginas: pages})
}

func (s *Server) handleGetExame(w http.ResponseWriter, r *http.Request) {
	e, err := s.store.getExame(r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleCreateExame(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxSignedSize+1<<20)
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "Formulário inválido")
		return
	}

	in := models.ExameInput{
		Paciente:  r.FormValue("paciente"),
		TipoExame: r.FormValue("tipoExame"),
		Sintomas:  r.FormValue("sintomas"),
	}
	var err error
	if in.Altura, err = formFloat(r, "altura"); err != nil {
		writeError(w, http.StatusBadRequest, "Altura inválida")
		return
	}
	if in.Peso, err = formFloat(r, "peso"); err != nil {
		writeError(w, http.StatusBadRequest, "Peso inválido")
		return
	}
	if err := in.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	e, err := s.store.createExame(in, userFromContext(r.Context()))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func formFloat(r *http.Request, key string) (float64, error) {
	v := strings.TrimSpace(r.FormValue(key))
	if v == "" {
		return 0, nil
	}
	return strconv.ParseFloat(strings.Replace(v, ",", ".", 1), 64)
}

func (s *Server) handleListUsuarios(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r)
	items, pages := s.store.listUsuarios(models.Role(r.URL.Query().Get("role")), page, limit)
	writeJSON(w, http.StatusOK, models.UsuarioPage{Usuarios: items, TotalPaginas: pages})
}

func (s *Server) handleGetUsuario(w http.ResponseWriter, r *http.Request) {
	u, err := s.store.getUsuario(r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func decodeUsuario(w http.ResponseWriter, r *http.Request, creating bool) (models.UsuarioInput, bool) {
	var in models.UsuarioInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "Requisição inválida")
		return in, false
	}
	in = in.Normalize()
	if err := in.Validate(creating); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return in, false
	}
	return in, true
}

func (s *Server) handleCreateUsuario(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeUsuario(w, r, true)
	if !ok {
		return
	}

	u, err := s.store.createUsuario(in, userFromContext(r.Context()))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (s *Server) handleUpdateUsuario(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeUsuario(w, r, false)
	if !ok {
		return
	}

	u, err := s.store.updateUsuario(r.PathValue("id"), in, userFromContext(r.Context()))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleDeleteUsuario(w http.ResponseWriter, r *http.Request) {
	err := s.store.deleteUsuario(r.PathValue("id"), userFromContext(r.Context()))
	if errors.Is(err, errDeleteSelf) {
		writeError(w, http.StatusBadRequest, "Não é possível remover o próprio usuário")
		return
	}
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Usuário removido com sucesso"})
}

func (s *Server) handleAuditoria(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r)
	items, pages := s.store.listAudit(page, limit)
	writeJSON(w, http.StatusOK, models.AuditPage{Logs: items, TotalPaginas: pages})
}

func (s *Server) handleEstatisticas(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.stats())
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, "Recurso não encontrado")
	case errors.Is(err, ErrActionNotAllowed):
		writeError(w, http.StatusForbidden, "Ação não permitida para este laudo")
	case errors.Is(err, ErrConflict):
		writeError(w, http.StatusConflict, "Registro já existe")
	default:
		log.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "Erro interno do servidor")
	}
}

// renderPDF produces a minimal single-page PDF carrying the conclusão.
func renderPDF(l models.Laudo) []byte {
	text := strings.NewReplacer(`\`, `\\`, "(", `\(`, ")", `\)`).Replace(l.Conclusao)
	content := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (Laudo %s v%d: %s) Tj ET", l.ID, l.Versao, text)

	var b strings.Builder
	b.WriteString("%PDF-1.4\n")
	b.WriteString("1 0 obj << /Type /Catalog /Pages 2 0 R >> endobj\n")
	b.WriteString("2 0 obj << /Type /Pages /Kids [3 0 R] /Count 1 >> endobj\n")
	b.WriteString("3 0 obj << /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >> endobj\n")
	fmt.Fprintf(&b, "4 0 obj << /Length %d >> stream\n%s\nendstream endobj\n", len(content), content)
	b.WriteString("5 0 obj << /Type /Font /Subtype /Type1 /BaseFont /Helvetica >> endobj\n")
	b.WriteString("trailer << /Root 1 0 R >>\n%%EOF\n")
	return []byte(b.String())
}
