package client

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/laudofy/laudofy/internal/models"
)

// GetConfiguracaoFinanceira returns the billing configuration of a medico.
func (c *Client) GetConfiguracaoFinanceira(ctx context.Context, medicoID string) (*models.ConfiguracaoFinanceira, error) {
	if err := requireID(medicoID); err != nil {
		return nil, err
	}
	var out models.ConfiguracaoFinanceira
	if err := c.Get(ctx, configuracaoPath(medicoID), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ConfigurarFinanceiro replaces the billing configuration of a medico.
func (c *Client) ConfigurarFinanceiro(ctx context.Context, medicoID string, cfg models.ConfiguracaoFinanceira) (*models.ConfiguracaoFinanceira, error) {
	if err := requireID(medicoID); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	cfg.Medico = ""

	var out models.ConfiguracaoFinanceira
	if err := c.Post(ctx, configuracaoPath(medicoID), cfg, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DashboardFinanceiro returns the current month's billing summary.
func (c *Client) DashboardFinanceiro(ctx context.Context) (*models.DashboardFinanceiro, error) {
	var out models.DashboardFinanceiro
	if err := c.Get(ctx, "/financeiro/dashboard", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FaturaFilter narrows GET /financeiro/faturas. Zero fields are omitted.
type FaturaFilter struct {
	Medico string
	Inicio time.Time
	Fim    time.Time
}

// ListFaturas returns per-medico statements.
func (c *Client) ListFaturas(ctx context.Context, f FaturaFilter) ([]models.Fatura, error) {
	q := url.Values{}
	if f.Medico != "" {
		q.Set("medicoId", f.Medico)
	}
	if !f.Inicio.IsZero() {
		q.Set("inicio", f.Inicio.Format(models.DateLayout))
	}
	if !f.Fim.IsZero() {
		q.Set("fim", f.Fim.Format(models.DateLayout))
	}

	var out []models.Fatura
	if err := c.Get(ctx, "/financeiro/faturas", &out, WithQuery(q)); err != nil {
		return nil, err
	}
	return out, nil
}

func configuracaoPath(medicoID string) string {
	return "/financeiro/configurar/" + url.PathEscape(medicoID)
}
