package models

import (
	"errors"
	"slices"
	"strings"
)

// Role is the authorization role carried in the access token.
type Role string

const (
	RoleTecnico Role = "tecnico" // Technician registering patients and exams
	RoleMedico  Role = "medico"  // Physician authoring and signing laudos
	RoleAdmin   Role = "admin"   // Administrator (users, finance, audit)
)

// Roles lists every role the backend issues.
var Roles = []Role{RoleTecnico, RoleMedico, RoleAdmin}

// Valid returns true if the role is one the backend issues.
func (r Role) Valid() bool {
	return slices.Contains(Roles, r)
}

// User is the read-only identity decoded from an access token.
// It is never persisted on its own.
type User struct {
	ID    string `json:"id"`
	Nome  string `json:"nome"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

// HasRole returns true if the user holds one of the given roles.
func (u *User) HasRole(roles ...Role) bool {
	if u == nil {
		return false
	}
	return slices.Contains(roles, u.Role)
}

// Usuario is a user account as listed by the administration endpoints.
type Usuario struct {
	ID        string `json:"_id"`
	Nome      string `json:"nome"`
	Email     string `json:"email"`
	Role      Role   `json:"role"`
	CRM       string `json:"crm,omitempty"`
	Ativo     bool   `json:"ativo"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// UsuarioInput is the body of POST /usuarios and PUT /usuarios/{id}. On
// update an empty Senha keeps the current password and a nil Ativo keeps
// the current state.
type UsuarioInput struct {
	Nome  string `json:"nome"`
	Email string `json:"email"`
	Senha string `json:"senha,omitempty"`
	Role  Role   `json:"role"`
	CRM   string `json:"crm,omitempty"`
	Ativo *bool  `json:"ativo,omitempty"`
}

// Validate applies the user form rules. A password is only required when
// creating.
func (u UsuarioInput) Validate(creating bool) error {
	if strings.TrimSpace(u.Nome) == "" {
		return errors.New("nome is required")
	}
	if !ValidEmail(u.Email) {
		return errors.New("email is invalid")
	}
	if creating && u.Senha == "" {
		return errors.New("senha is required for a new user")
	}
	if !u.Role.Valid() {
		return errors.New("role is invalid")
	}
	if u.Role == RoleMedico && strings.TrimSpace(u.CRM) == "" {
		return errors.New("crm is required for medicos")
	}
	return nil
}

// Normalize drops the crm of non-medicos, as the form does before sending.
func (u UsuarioInput) Normalize() UsuarioInput {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if u.Role != RoleMedico {
		u.CRM = ""
	}
	return u
}

// UsuarioPage is the body of GET /usuarios.
type UsuarioPage struct {
	Usuarios     []Usuario `json:"usuarios"`
	TotalPaginas int       `json:"totalPaginas"`
}
