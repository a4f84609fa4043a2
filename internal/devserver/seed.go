package devserver

import (
	"fmt"
	"os"

	"github.com/laudofy/laudofy/internal/models"
	"gopkg.in/yaml.v3"
)

// Seed is the initial data loaded into the development backend.
type Seed struct {
	Users     []SeedUser     `yaml:"users"`
	Pacientes []SeedPaciente `yaml:"pacientes"`
	Exames    []SeedExame    `yaml:"exames"`
}

type SeedUser struct {
	Email string      `yaml:"email"`
	Senha string      `yaml:"senha"`
	Nome  string      `yaml:"nome"`
	Role  models.Role `yaml:"role"`
	CRM   string      `yaml:"crm"`
}

type SeedPaciente struct {
	ID    string `yaml:"id"`
	Nome  string `yaml:"nome"`
	CPF   string `yaml:"cpf"`
	Email string `yaml:"email"`
}

type SeedExame struct {
	ID        string `yaml:"id"`
	Paciente  string `yaml:"paciente"`
	TipoExame string `yaml:"tipoExame"`
}

// LoadSeed reads a YAML seed file.
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed: %w", err)
	}

	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed: %w", err)
	}

	if err := seed.Validate(); err != nil {
		return nil, err
	}

	return &seed, nil
}

// Validate checks references and roles.
func (s *Seed) Validate() error {
	emails := map[string]bool{}
	for _, u := range s.Users {
		if u.Email == "" || u.Senha == "" {
			return fmt.Errorf("seed user %q: email and senha are required", u.Nome)
		}
		if !u.Role.Valid() {
			return fmt.Errorf("seed user %s: unknown role %q", u.Email, u.Role)
		}
		if emails[u.Email] {
			return fmt.Errorf("seed user %s: duplicate email", u.Email)
		}
		emails[u.Email] = true
	}

	pacientes := map[string]bool{}
	for _, p := range s.Pacientes {
		if p.ID == "" {
			return fmt.Errorf("seed paciente %q: id is required", p.Nome)
		}
		pacientes[p.ID] = true
	}

	for _, e := range s.Exames {
		if e.ID == "" {
			return fmt.Errorf("seed exame: id is required")
		}
		if !pacientes[e.Paciente] {
			return fmt.Errorf("seed exame %s: unknown paciente %q", e.ID, e.Paciente)
		}
	}

	return nil
}

// DefaultSeed returns one user per role, two patients and their exams.
func DefaultSeed() *Seed {
	return &Seed{
		Users: []SeedUser{
			{Email: "admin@laudofy.dev", Senha: "admin123", Nome: "Administrador", Role: models.RoleAdmin},
			{Email: "medico@laudofy.dev", Senha: "medico123", Nome: "Dra. Helena Prado", Role: models.RoleMedico, CRM: "CRM/SP 123456"},
			{Email: "tecnico@laudofy.dev", Senha: "tecnico123", Nome: "Carlos Lima", Role: models.RoleTecnico},
		},
		Pacientes: []SeedPaciente{
			{ID: "pac-1", Nome: "Maria Souza", CPF: "123.456.789-00", Email: "maria@example.com"},
			{ID: "pac-2", Nome: "João Pereira", CPF: "987.654.321-00"},
		},
		Exames: []SeedExame{
			{ID: "exa-1", Paciente: "pac-1", TipoExame: "Eletrocardiograma"},
			{ID: "exa-2", Paciente: "pac-1", TipoExame: "Holter"},
			{ID: "exa-3", Paciente: "pac-2", TipoExame: "Eletrocardiograma"},
		},
	}
}
