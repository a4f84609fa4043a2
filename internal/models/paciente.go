package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
)

// Paciente is a registered patient.
type Paciente struct {
	ID             string    `json:"_id"`
	Nome           string    `json:"nome"`
	CPF            string    `json:"cpf,omitempty"`
	DataNascimento time.Time `json:"dataNascimento,omitempty"`
	Email          string    `json:"email,omitempty"`
	Telefone       string    `json:"telefone,omitempty"`
	Endereco       string    `json:"endereco,omitempty"`
}

// DateLayout is the wire format of calendar dates such as dataNascimento.
const DateLayout = "2006-01-02"

// PacienteInput is the body of POST /pacientes and PUT /pacientes/{id}.
type PacienteInput struct {
	Nome           string `json:"nome"`
	CPF            string `json:"cpf"`
	DataNascimento string `json:"dataNascimento"`
	Endereco       string `json:"endereco,omitempty"`
	Telefone       string `json:"telefone"`
	Email          string `json:"email,omitempty"`
}

// Validate applies the registration form rules.
func (p PacienteInput) Validate() error {
	if strings.TrimSpace(p.Nome) == "" {
		return errors.New("nome is required")
	}
	if len(digits(p.CPF)) != 11 {
		return errors.New("cpf must have 11 digits")
	}
	if len(digits(p.Telefone)) < 10 {
		return errors.New("telefone must have at least 10 digits")
	}
	if p.DataNascimento == "" {
		return errors.New("dataNascimento is required")
	}
	if _, err := time.Parse(DateLayout, p.DataNascimento); err != nil {
		return fmt.Errorf("dataNascimento must be %s", DateLayout)
	}
	if p.Email != "" && !ValidEmail(p.Email) {
		return errors.New("email is invalid")
	}
	return nil
}

// Exame is an exam taken by a patient, the source of a laudo.
type Exame struct {
	ID        string    `json:"_id"`
	Paciente  string    `json:"paciente"`
	TipoExame string    `json:"tipoExame"`
	Status    string    `json:"status,omitempty"`
	Sintomas  string    `json:"sintomas,omitempty"`
	Altura    float64   `json:"altura,omitempty"`
	Peso      float64   `json:"peso,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// ExameInput is the multipart form of POST /exames. The JSON tags serve
// the console, which takes it as a JSON body.
type ExameInput struct {
	Paciente  string  `json:"paciente"`
	TipoExame string  `json:"tipoExame"`
	Sintomas  string  `json:"sintomas"`
	Altura    float64 `json:"altura,omitempty"`
	Peso      float64 `json:"peso,omitempty"`
}

// Validate applies the intake form rules.
func (e ExameInput) Validate() error {
	if strings.TrimSpace(e.Paciente) == "" {
		return errors.New("paciente is required")
	}
	if strings.TrimSpace(e.TipoExame) == "" {
		return errors.New("tipoExame is required")
	}
	if strings.TrimSpace(e.Sintomas) == "" {
		return errors.New("sintomas is required")
	}
	if e.Altura < 0 || e.Peso < 0 {
		return errors.New("altura and peso must not be negative")
	}
	return nil
}

// AuditEntry is one row of GET /auditoria.
type AuditEntry struct {
	ID        string    `json:"_id"`
	Usuario   string    `json:"usuario"`
	Acao      string    `json:"action"`
	Descricao string    `json:"description,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// PacientePage is the body of GET /pacientes.
type PacientePage struct {
	Pacientes    []Paciente `json:"pacientes"`
	TotalPaginas int        `json:"totalPaginas"`
}

// ExamePage is the body of GET /exames.
type ExamePage struct {
	Exames       []Exame `json:"exames"`
	TotalPaginas int     `json:"totalPaginas"`
}

// AuditPage is the body of GET /auditoria.
type AuditPage struct {
	Logs         []AuditEntry `json:"logs"`
	TotalPaginas int          `json:"totalPaginas"`
}

// ValidEmail is the loose check the forms apply: an @ and a dot.
func ValidEmail(email string) bool {
	return strings.Contains(email, "@") && strings.Contains(email, ".")
}

func digits(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}
