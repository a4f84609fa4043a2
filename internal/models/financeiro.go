package models

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// ValorPorTipo is the base price a medico is paid against for one exam type.
type ValorPorTipo struct {
	TipoExame string  `json:"tipoExame"`
	Valor     float64 `json:"valor"`
}

// ConfiguracaoFinanceira is the body of GET and POST
// /financeiro/configurar/{medicoId}.
type ConfiguracaoFinanceira struct {
	Medico string `json:"medico,omitempty"`
	// Comissao is the percentage of each base value paid to the medico.
	Comissao       float64        `json:"comissao"`
	ValoresPorTipo []ValorPorTipo `json:"valoresPorTipo"`
}

// Validate checks the commission range and the per-type values.
func (c ConfiguracaoFinanceira) Validate() error {
	if math.IsNaN(c.Comissao) || c.Comissao < 0 || c.Comissao > 100 {
		return errors.New("comissao must be between 0 and 100")
	}

	seen := make(map[string]bool, len(c.ValoresPorTipo))
	for _, v := range c.ValoresPorTipo {
		tipo := strings.TrimSpace(v.TipoExame)
		if tipo == "" {
			return errors.New("tipoExame is required")
		}
		if seen[tipo] {
			return fmt.Errorf("tipoExame %s is configured twice", tipo)
		}
		seen[tipo] = true
		if math.IsNaN(v.Valor) || math.IsInf(v.Valor, 0) || v.Valor < 0 {
			return fmt.Errorf("valor for %s must be a non-negative number", tipo)
		}
	}
	return nil
}

// ValorPara returns the base value configured for tipoExame.
func (c ConfiguracaoFinanceira) ValorPara(tipoExame string) (float64, bool) {
	for _, v := range c.ValoresPorTipo {
		if v.TipoExame == tipoExame {
			return v.Valor, true
		}
	}
	return 0, false
}

// Transacao is the billing record of one signed laudo.
type Transacao struct {
	Laudo       string    `json:"laudo"`
	Medico      string    `json:"medico"`
	TipoExame   string    `json:"tipoExame"`
	ValorBase   float64   `json:"valorBase"`
	Comissao    float64   `json:"comissao"`
	ValorMedico float64   `json:"valorMedico"`
	Data        time.Time `json:"data"`
}

// ResumoFinanceiro totals a set of transactions.
type ResumoFinanceiro struct {
	TotalBase    float64 `json:"totalBase"`
	TotalClinica float64 `json:"totalClinica"`
	TotalMedico  float64 `json:"totalMedico"`
}

// Add accumulates t.
func (r *ResumoFinanceiro) Add(t Transacao) {
	r.TotalBase += t.ValorBase
	r.TotalMedico += t.ValorMedico
	r.TotalClinica += t.ValorBase - t.ValorMedico
}

// TotalPorMedico is one entry of the dashboard ranking.
type TotalPorMedico struct {
	Medico string  `json:"medico"`
	Nome   string  `json:"nome"`
	Total  float64 `json:"total"`
}

// DashboardFinanceiro is the body of GET /financeiro/dashboard.
type DashboardFinanceiro struct {
	ResumoMes  ResumoFinanceiro `json:"resumoMes"`
	TopMedicos []TotalPorMedico `json:"topMedicos"`
	Transacoes []Transacao      `json:"transacoes"`
}

// Fatura is a medico's statement for one period.
type Fatura struct {
	ID            string    `json:"_id"`
	Medico        Medico    `json:"medico"`
	PeriodoInicio time.Time `json:"periodoInicio"`
	PeriodoFim    time.Time `json:"periodoFim"`
	ValorTotal    float64   `json:"valorTotal"`
	Status        string    `json:"status"`
}

// Medico identifies the medico of a Fatura.
type Medico struct {
	ID   string `json:"_id"`
	Nome string `json:"nome"`
}
