package models

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPacienteInput_Validate(t *testing.T) {
	valid := PacienteInput{
		Nome:           "Ana Costa",
		CPF:            "111.222.333-44",
		DataNascimento: "1980-05-17",
		Telefone:       "(11) 98888-7777",
	}

	tests := []struct {
		name    string
		mutate  func(*PacienteInput)
		wantErr bool
	}{
		{"valid", func(*PacienteInput) {}, false},
		{"missing nome", func(p *PacienteInput) { p.Nome = "  " }, true},
		{"short cpf", func(p *PacienteInput) { p.CPF = "111.222.333" }, true},
		{"unformatted cpf", func(p *PacienteInput) { p.CPF = "11122233344" }, false},
		{"short telefone", func(p *PacienteInput) { p.Telefone = "9888-7777" }, true},
		{"missing birth date", func(p *PacienteInput) { p.DataNascimento = "" }, true},
		{"bad birth date", func(p *PacienteInput) { p.DataNascimento = "17/05/1980" }, true},
		{"bad email", func(p *PacienteInput) { p.Email = "ana" }, true},
		{"good email", func(p *PacienteInput) { p.Email = "ana@example.com" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.mutate(&in)
			err := in.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestUsuarioInput_Validate(t *testing.T) {
	tests := []struct {
		name     string
		in       UsuarioInput
		creating bool
		wantErr  bool
	}{
		{"tecnico", UsuarioInput{Nome: "Carlos", Email: "c@l.dev", Senha: "x", Role: RoleTecnico}, true, false},
		{"medico without crm", UsuarioInput{Nome: "Helena", Email: "h@l.dev", Senha: "x", Role: RoleMedico}, true, true},
		{"missing senha on create", UsuarioInput{Nome: "Carlos", Email: "c@l.dev", Role: RoleTecnico}, true, true},
		{"missing senha on update", UsuarioInput{Nome: "Carlos", Email: "c@l.dev", Role: RoleTecnico}, false, false},
		{"unknown role", UsuarioInput{Nome: "Carlos", Email: "c@l.dev", Senha: "x", Role: "root"}, true, true},
		{"bad email", UsuarioInput{Nome: "Carlos", Email: "carlos", Senha: "x", Role: RoleAdmin}, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.in.Validate(tt.creating)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestUsuarioInput_Normalize(t *testing.T) {
	in := UsuarioInput{Email: "  Carlos@Laudofy.DEV ", Role: RoleTecnico, CRM: "CRM/SP 1"}.Normalize()
	assert.Equal(t, "carlos@laudofy.dev", in.Email)
	assert.Empty(t, in.CRM)

	in = UsuarioInput{Role: RoleMedico, CRM: "CRM/SP 1"}.Normalize()
	assert.Equal(t, "CRM/SP 1", in.CRM)
}

func TestExameInput_Validate(t *testing.T) {
	assert.NoError(t, ExameInput{Paciente: "p1", TipoExame: "ECG", Sintomas: "dor"}.Validate())
	assert.Error(t, ExameInput{Paciente: "p1", TipoExame: "ECG"}.Validate())
	assert.Error(t, ExameInput{TipoExame: "ECG", Sintomas: "dor"}.Validate())
	assert.Error(t, ExameInput{Paciente: "p1", TipoExame: "ECG", Sintomas: "dor", Peso: -1}.Validate())
}

func TestConfiguracaoFinanceira_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ConfiguracaoFinanceira
		wantErr bool
	}{
		{"empty", ConfiguracaoFinanceira{}, false},
		{"full commission", ConfiguracaoFinanceira{Comissao: 100, ValoresPorTipo: []ValorPorTipo{{"ECG", 150}}}, false},
		{"commission above 100", ConfiguracaoFinanceira{Comissao: 100.5}, true},
		{"negative commission", ConfiguracaoFinanceira{Comissao: -1}, true},
		{"nan commission", ConfiguracaoFinanceira{Comissao: math.NaN()}, true},
		{"blank tipo", ConfiguracaoFinanceira{ValoresPorTipo: []ValorPorTipo{{" ", 10}}}, true},
		{"duplicate tipo", ConfiguracaoFinanceira{ValoresPorTipo: []ValorPorTipo{{"ECG", 10}, {"ECG", 20}}}, true},
		{"negative valor", ConfiguracaoFinanceira{ValoresPorTipo: []ValorPorTipo{{"ECG", -10}}}, true},
		{"infinite valor", ConfiguracaoFinanceira{ValoresPorTipo: []ValorPorTipo{{"ECG", math.Inf(1)}}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestResumoFinanceiro_Add(t *testing.T) {
	var r ResumoFinanceiro
	r.Add(Transacao{ValorBase: 150, ValorMedico: 60})
	r.Add(Transacao{ValorBase: 100, ValorMedico: 40})

	assert.InDelta(t, 250, r.TotalBase, 1e-9)
	assert.InDelta(t, 100, r.TotalMedico, 1e-9)
	assert.InDelta(t, 150, r.TotalClinica, 1e-9)
}
