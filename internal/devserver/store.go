package devserver

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/laudofy/laudofy/internal/laudo"
	"github.com/laudofy/laudofy/internal/models"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrActionNotAllowed   = errors.New("action not allowed")
	ErrConflict           = errors.New("conflict")
)

type account struct {
	usuario models.Usuario
	hash    []byte
}

type laudoRecord struct {
	laudo   models.Laudo
	history []models.HistoryEntry
	signed  []byte
	// medicoID is the author paid when the laudo is signed.
	medicoID string
}

// memStore holds all backend state in memory.
type memStore struct {
	mu sync.RWMutex

	accounts      map[string]*account // by email
	accountsByID  map[string]*account
	pacientes     map[string]models.Paciente
	pacienteOrder []string
	exames        map[string]models.Exame
	exameOrder    []string
	laudos        map[string]*laudoRecord
	laudoOrder    []string
	audit         []models.AuditEntry
	financeiro    map[string]models.ConfiguracaoFinanceira // by medico id
	transacoes    []models.Transacao

	cost int

	// compared against when the account is unknown
	dummyHash []byte

	now func() time.Time
}

func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}

func newMemStore(seed *Seed, cost int, now func() time.Time) (*memStore, error) {
	s := &memStore{
		accounts:     make(map[string]*account),
		accountsByID: make(map[string]*account),
		pacientes:    make(map[string]models.Paciente),
		exames:       make(map[string]models.Exame),
		laudos:       make(map[string]*laudoRecord),
		financeiro:   make(map[string]models.ConfiguracaoFinanceira),
		cost:         cost,
		now:          now,
	}

	dummy, err := bcrypt.GenerateFromPassword([]byte(newID()), cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	s.dummyHash = dummy

	created := now().UTC()

	for _, u := range seed.Users {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.Senha), cost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password for %s: %w", u.Email, err)
		}
		acc := &account{
			usuario: models.Usuario{
				ID:        newID(),
				Nome:      u.Nome,
				Email:     strings.ToLower(u.Email),
				Role:      u.Role,
				CRM:       u.CRM,
				Ativo:     true,
				CreatedAt: created.Format(time.RFC3339),
			},
			hash: hash,
		}
		s.accounts[acc.usuario.Email] = acc
		s.accountsByID[acc.usuario.ID] = acc
	}

	for _, p := range seed.Pacientes {
		s.pacientes[p.ID] = models.Paciente{ID: p.ID, Nome: p.Nome, CPF: p.CPF, Email: p.Email}
		s.pacienteOrder = append(s.pacienteOrder, p.ID)
	}

	for _, e := range seed.Exames {
		s.exames[e.ID] = models.Exame{
			ID:        e.ID,
			Paciente:  e.Paciente,
			TipoExame: e.TipoExame,
			Status:    "Pendente",
			CreatedAt: created,
		}
		s.exameOrder = append(s.exameOrder, e.ID)
	}

	return s, nil
}

func (s *memStore) authenticate(email, senha string) (models.Usuario, error) {
	s.mu.RLock()
	acc, ok := s.accounts[strings.ToLower(strings.TrimSpace(email))]
	s.mu.RUnlock()

	if !ok || !acc.usuario.Ativo {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(senha))
		return models.Usuario{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(acc.hash, []byte(senha)); err != nil {
		return models.Usuario{}, ErrInvalidCredentials
	}
	return acc.usuario, nil
}

func (s *memStore) userByID(id string) (models.Usuario, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acc, ok := s.accountsByID[id]
	if !ok {
		return models.Usuario{}, ErrNotFound
	}
	return acc.usuario, nil
}

func (s *memStore) recordAudit(usuario, acao, descricao string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordAuditLocked(usuario, acao, descricao)
}

func (s *memStore) recordAuditLocked(usuario, acao, descricao string) {
	s.audit = append(s.audit, models.AuditEntry{
		ID:        newID(),
		Usuario:   usuario,
		Acao:      acao,
		Descricao: descricao,
		CreatedAt: s.now().UTC(),
	})
}

// view returns a copy of the laudo with its exam populated.
func (s *memStore) view(rec *laudoRecord) models.Laudo {
	l := rec.laudo
	if l.Exame == nil {
		return l
	}
	if ex, ok := s.exames[l.Exame.ID]; ok {
		l.Exame = &ex
	}
	return l
}

type laudoQuery struct {
	Status   models.Status
	Paciente string
	Page     int
	Limit    int
}

func (s *memStore) listLaudos(q laudoQuery) ([]models.Laudo, int, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Laudo
	// newest first
	for _, id := range slices.Backward(s.laudoOrder) {
		rec := s.laudos[id]
		if q.Status != "" && rec.laudo.Status != q.Status {
			continue
		}
		if q.Paciente != "" && s.exames[rec.laudo.Exame.ID].Paciente != q.Paciente {
			continue
		}
		out = append(out, s.view(rec))
	}

	page, pages := paginate(out, q.Page, q.Limit)
	return page, pages, len(out)
}

func (s *memStore) getLaudo(id string) (models.Laudo, []models.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.laudos[id]
	if !ok {
		return models.Laudo{}, nil, ErrNotFound
	}
	return s.view(rec), slices.Clone(rec.history), nil
}

func (s *memStore) signedPDF(id string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.laudos[id]
	if !ok || rec.signed == nil {
		return nil, ErrNotFound
	}
	return rec.signed, nil
}

func (s *memStore) createLaudo(exameID, conclusao string, actor *models.User) (models.Laudo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ex, ok := s.exames[exameID]
	if !ok {
		return models.Laudo{}, fmt.Errorf("exame %s: %w", exameID, ErrNotFound)
	}

	now := s.now().UTC()
	id := newID()
	rec := &laudoRecord{
		laudo: models.Laudo{
			ID:                id,
			Exame:             &models.Exame{ID: ex.ID},
			Status:            models.StatusRealizado,
			MedicoResponsavel: actor.Nome,
			Conclusao:         conclusao,
			LaudoOriginal:     originalURL(id),
			Versao:            1,
			CreatedAt:         now,
			UpdatedAt:         now,
		},
		history: []models.HistoryEntry{{
			Acao:     models.AcaoCriacao,
			Data:     now,
			Usuario:  actor.Nome,
			Detalhes: "Laudo criado",
			Versao:   1,
		}},
		medicoID: actor.ID,
	}

	s.laudos[id] = rec
	s.laudoOrder = append(s.laudoOrder, id)

	ex.Status = "Laudado"
	s.exames[ex.ID] = ex

	s.recordAuditLocked(actor.Email, "create", "Laudo "+id+" criado")

	return s.view(rec), nil
}

func (s *memStore) signLaudo(id string, actor *models.User, pdf []byte) (models.Laudo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.laudos[id]
	if !ok {
		return models.Laudo{}, ErrNotFound
	}
	if !laudo.CanUploadSigned(laudo.FactsFor(actor, &rec.laudo, rec.history)) ||
		!laudo.CanTransition(rec.laudo.Status, models.StatusAssinado) {
		return models.Laudo{}, ErrActionNotAllowed
	}

	now := s.now().UTC()
	rec.signed = pdf
	rec.laudo.LaudoAssinado = signedURL(id)
	rec.laudo.Status = models.StatusAssinado
	rec.laudo.UpdatedAt = now
	rec.history = append(rec.history, models.HistoryEntry{
		Acao:     models.AcaoAssinatura,
		Data:     now,
		Usuario:  actor.Nome,
		Detalhes: "Laudo assinado digitalmente",
		Versao:   rec.laudo.Versao,
	})

	s.billLocked(rec, now)
	s.recordAuditLocked(actor.Email, "sign", "Laudo "+id+" assinado")

	return s.view(rec), nil
}

func (s *memStore) redoLaudo(id string, actor *models.User, conclusao, motivo string) (old, replacement models.Laudo, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.laudos[id]
	if !ok {
		return models.Laudo{}, models.Laudo{}, ErrNotFound
	}
	if !laudo.CanRedo(laudo.FactsFor(actor, &rec.laudo, rec.history)) ||
		!laudo.CanTransition(rec.laudo.Status, models.StatusRefeito) {
		return models.Laudo{}, models.Laudo{}, ErrActionNotAllowed
	}

	now := s.now().UTC()
	newLaudoID := newID()
	versao := rec.laudo.Versao + 1

	next := &laudoRecord{
		laudo: models.Laudo{
			ID:                newLaudoID,
			Exame:             &models.Exame{ID: rec.laudo.Exame.ID},
			Status:            models.StatusRealizado,
			MedicoResponsavel: actor.Nome,
			Conclusao:         conclusao,
			LaudoOriginal:     originalURL(newLaudoID),
			LaudoAnterior:     id,
			Versao:            versao,
			MotivoRefacao:     motivo,
			CreatedAt:         now,
			UpdatedAt:         now,
		},
		history: []models.HistoryEntry{{
			Acao:     models.AcaoCriacao,
			Data:     now,
			Usuario:  actor.Nome,
			Detalhes: "Nova versão criada: " + motivo,
			Versao:   versao,
		}},
		medicoID: actor.ID,
	}

	rec.laudo.Status = models.StatusRefeito
	rec.laudo.LaudoSubstituto = newLaudoID
	rec.laudo.UpdatedAt = now
	rec.history = append(rec.history, models.HistoryEntry{
		Acao:     models.AcaoRefacao,
		Data:     now,
		Usuario:  actor.Nome,
		Detalhes: motivo,
		Versao:   rec.laudo.Versao,
	})

	s.laudos[newLaudoID] = next
	s.laudoOrder = append(s.laudoOrder, newLaudoID)

	s.recordAuditLocked(actor.Email, "update", "Laudo "+id+" refeito como "+newLaudoID)

	return s.view(rec), s.view(next), nil
}

// sendEmail records an email attempt. deliver is called with the patient
// while the laudo is locked so two sends cannot both pass the check.
func (s *memStore) sendEmail(id string, actor *models.User, deliver func(models.Paciente) error) (models.Laudo, models.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.laudos[id]
	if !ok {
		return models.Laudo{}, models.HistoryEntry{}, ErrNotFound
	}
	if !laudo.CanSendEmail(laudo.FactsFor(actor, &rec.laudo, rec.history)) {
		return models.Laudo{}, models.HistoryEntry{}, ErrActionNotAllowed
	}

	pac := s.pacientes[s.exames[rec.laudo.Exame.ID].Paciente]
	entry := models.HistoryEntry{
		Acao:              models.AcaoEnvioEmail,
		Data:              s.now().UTC(),
		Usuario:           actor.Nome,
		Versao:            rec.laudo.Versao,
		DestinatarioEmail: pac.Email,
		StatusEnvio:       models.EnvioEnviado,
	}
	if err := deliver(pac); err != nil {
		entry.StatusEnvio = models.EnvioFalha
		entry.MensagemErro = err.Error()
	}
	rec.history = append(rec.history, entry)

	return s.view(rec), entry, nil
}

func (s *memStore) listPacientes(nome string, page, limit int) ([]models.Paciente, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Paciente
	for _, id := range s.pacienteOrder {
		p := s.pacientes[id]
		if nome != "" && !strings.Contains(strings.ToLower(p.Nome), strings.ToLower(nome)) {
			continue
		}
		out = append(out, p)
	}
	return paginate(out, page, limit)
}

func (s *memStore) getPaciente(id string) (models.Paciente, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.pacientes[id]
	if !ok {
		return models.Paciente{}, ErrNotFound
	}
	return p, nil
}

func (s *memStore) listExames(page, limit int) ([]models.Exame, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Exame, 0, len(s.exameOrder))
	for _, id := range s.exameOrder {
		out = append(out, s.exames[id])
	}
	return paginate(out, page, limit)
}

func (s *memStore) getExame(id string) (models.Exame, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.exames[id]
	if !ok {
		return models.Exame{}, ErrNotFound
	}
	return e, nil
}

func (s *memStore) listUsuarios(role models.Role, page, limit int) ([]models.Usuario, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Usuario, 0, len(s.accountsByID))
	for _, acc := range s.accountsByID {
		if role != "" && acc.usuario.Role != role {
			continue
		}
		out = append(out, acc.usuario)
	}
	slices.SortFunc(out, func(a, b models.Usuario) int { return strings.Compare(a.Email, b.Email) })
	return paginate(out, page, limit)
}

func (s *memStore) listAudit(page, limit int) ([]models.AuditEntry, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := slices.Clone(s.audit)
	slices.Reverse(out)
	return paginate(out, page, limit)
}

func (s *memStore) stats() models.Estatisticas {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byStatus := make(map[models.Status]int)
	for _, rec := range s.laudos {
		byStatus[rec.laudo.Status]++
	}
	return models.Estatisticas{
		TotalLaudos:     len(s.laudos),
		TotalExames:     len(s.exames),
		TotalPacientes:  len(s.pacientes),
		LaudosPorStatus: byStatus,
	}
}

// paginate returns the 1-based page of items and the page count.
func paginate[T any](items []T, page, limit int) ([]T, int) {
	if limit <= 0 {
		limit = 10
	}
	if page <= 0 {
		page = 1
	}

	pages := (len(items) + limit - 1) / limit
	start := (page - 1) * limit
	if start >= len(items) {
		return []T{}, pages
	}
	end := min(start+limit, len(items))
	return items[start:end], pages
}

func originalURL(id string) string {
	return "/api/laudos/" + id + "/download/original"
}

func signedURL(id string) string {
	return "/api/laudos/" + id + "/download/assinado"
}
