package devserver

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/laudofy/laudofy/internal/models"
	"golang.org/x/crypto/bcrypt"
)

var errDeleteSelf = errors.New("cannot delete the signed in account")

func (s *memStore) createPaciente(in models.PacienteInput, actor *models.User) (models.Paciente, error) {
	p, err := pacienteFromInput(newID(), in)
	if err != nil {
		return models.Paciente{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkCPFLocked(p.CPF, ""); err != nil {
		return models.Paciente{}, err
	}

	s.pacientes[p.ID] = p
	s.pacienteOrder = append(s.pacienteOrder, p.ID)
	s.recordAuditLocked(actor.Email, "create", "Paciente "+p.ID+" cadastrado")

	return p, nil
}

func (s *memStore) updatePaciente(id string, in models.PacienteInput, actor *models.User) (models.Paciente, error) {
	p, err := pacienteFromInput(id, in)
	if err != nil {
		return models.Paciente{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pacientes[id]; !ok {
		return models.Paciente{}, ErrNotFound
	}
	if err := s.checkCPFLocked(p.CPF, id); err != nil {
		return models.Paciente{}, err
	}

	s.pacientes[id] = p
	s.recordAuditLocked(actor.Email, "update", "Paciente "+id+" atualizado")

	return p, nil
}

func (s *memStore) checkCPFLocked(cpf, except string) error {
	for id, p := range s.pacientes {
		if id != except && p.CPF == cpf {
			return fmt.Errorf("cpf %s: %w", cpf, ErrConflict)
		}
	}
	return nil
}

func pacienteFromInput(id string, in models.PacienteInput) (models.Paciente, error) {
	nascimento, err := time.Parse(models.DateLayout, in.DataNascimento)
	if err != nil {
		return models.Paciente{}, fmt.Errorf("invalid dataNascimento: %w", err)
	}
	return models.Paciente{
		ID:             id,
		Nome:           strings.TrimSpace(in.Nome),
		CPF:            in.CPF,
		DataNascimento: nascimento,
		Email:          strings.TrimSpace(in.Email),
		Telefone:       in.Telefone,
		Endereco:       strings.TrimSpace(in.Endereco),
	}, nil
}

func (s *memStore) createExame(in models.ExameInput, actor *models.User) (models.Exame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pacientes[in.Paciente]; !ok {
		return models.Exame{}, fmt.Errorf("paciente %s: %w", in.Paciente, ErrNotFound)
	}

	e := models.Exame{
		ID:        newID(),
		Paciente:  in.Paciente,
		TipoExame: in.TipoExame,
		Status:    "Pendente",
		Sintomas:  strings.TrimSpace(in.Sintomas),
		Altura:    in.Altura,
		Peso:      in.Peso,
		CreatedAt: s.now().UTC(),
	}
	s.exames[e.ID] = e
	s.exameOrder = append(s.exameOrder, e.ID)
	s.recordAuditLocked(actor.Email, "create", "Exame "+e.ID+" registrado")

	return e, nil
}

func (s *memStore) getUsuario(id string) (models.Usuario, error) {
	return s.userByID(id)
}

func (s *memStore) createUsuario(in models.UsuarioInput, actor *models.User) (models.Usuario, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Senha), s.cost)
	if err != nil {
		return models.Usuario{}, fmt.Errorf("failed to hash password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[in.Email]; ok {
		return models.Usuario{}, fmt.Errorf("email %s: %w", in.Email, ErrConflict)
	}

	acc := &account{
		usuario: models.Usuario{
			ID:        newID(),
			Nome:      strings.TrimSpace(in.Nome),
			Email:     in.Email,
			Role:      in.Role,
			CRM:       in.CRM,
			Ativo:     in.Ativo == nil || *in.Ativo,
			CreatedAt: s.now().UTC().Format(time.RFC3339),
		},
		hash: hash,
	}
	s.accounts[acc.usuario.Email] = acc
	s.accountsByID[acc.usuario.ID] = acc
	s.recordAuditLocked(actor.Email, "create", "Usuário "+acc.usuario.Email+" criado")

	return acc.usuario, nil
}

func (s *memStore) updateUsuario(id string, in models.UsuarioInput, actor *models.User) (models.Usuario, error) {
	var hash []byte
	if in.Senha != "" {
		h, err := bcrypt.GenerateFromPassword([]byte(in.Senha), s.cost)
		if err != nil {
			return models.Usuario{}, fmt.Errorf("failed to hash password: %w", err)
		}
		hash = h
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accountsByID[id]
	if !ok {
		return models.Usuario{}, ErrNotFound
	}
	if other, ok := s.accounts[in.Email]; ok && other != acc {
		return models.Usuario{}, fmt.Errorf("email %s: %w", in.Email, ErrConflict)
	}

	delete(s.accounts, acc.usuario.Email)
	acc.usuario.Nome = strings.TrimSpace(in.Nome)
	acc.usuario.Email = in.Email
	acc.usuario.Role = in.Role
	acc.usuario.CRM = in.CRM
	if in.Ativo != nil {
		acc.usuario.Ativo = *in.Ativo
	}
	if hash != nil {
		acc.hash = hash
	}
	s.accounts[acc.usuario.Email] = acc

	s.recordAuditLocked(actor.Email, "update", "Usuário "+acc.usuario.Email+" atualizado")

	return acc.usuario, nil
}

func (s *memStore) deleteUsuario(id string, actor *models.User) error {
	if id == actor.ID {
		return errDeleteSelf
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accountsByID[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.accountsByID, id)
	delete(s.accounts, acc.usuario.Email)
	delete(s.financeiro, id)

	s.recordAuditLocked(actor.Email, "delete", "Usuário "+acc.usuario.Email+" removido")

	return nil
}
