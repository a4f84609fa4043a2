package devserver

import (
	"cmp"
	"math"
	"net/http"
	"slices"
	"time"

	"github.com/laudofy/laudofy/internal/models"
)

func (s *memStore) medicoLocked(id string) (*account, error) {
	acc, ok := s.accountsByID[id]
	if !ok || acc.usuario.Role != models.RoleMedico {
		return nil, ErrNotFound
	}
	return acc, nil
}

// configuracao returns the billing configuration of a medico. An
// unconfigured medico gets an empty one.
func (s *memStore) configuracao(medicoID string) (models.ConfiguracaoFinanceira, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err := s.medicoLocked(medicoID); err != nil {
		return models.ConfiguracaoFinanceira{}, err
	}
	cfg, ok := s.financeiro[medicoID]
	if !ok {
		cfg = models.ConfiguracaoFinanceira{Medico: medicoID, ValoresPorTipo: []models.ValorPorTipo{}}
	}
	return cfg, nil
}

func (s *memStore) configurar(medicoID string, cfg models.ConfiguracaoFinanceira, actor *models.User) (models.ConfiguracaoFinanceira, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.medicoLocked(medicoID); err != nil {
		return models.ConfiguracaoFinanceira{}, err
	}

	cfg.Medico = medicoID
	cfg.ValoresPorTipo = slices.Clone(cfg.ValoresPorTipo)
	if cfg.ValoresPorTipo == nil {
		cfg.ValoresPorTipo = []models.ValorPorTipo{}
	}
	s.financeiro[medicoID] = cfg
	s.recordAuditLocked(actor.Email, "update", "Configuração financeira de "+medicoID+" atualizada")

	return cfg, nil
}

// billLocked records the transaction of a freshly signed laudo. Laudos whose
// author or exam type has no configured value are not billed.
func (s *memStore) billLocked(rec *laudoRecord, now time.Time) {
	cfg, ok := s.financeiro[rec.medicoID]
	if !ok {
		return
	}
	tipo := s.exames[rec.laudo.Exame.ID].TipoExame
	valor, ok := cfg.ValorPara(tipo)
	if !ok {
		return
	}

	s.transacoes = append(s.transacoes, models.Transacao{
		Laudo:       rec.laudo.ID,
		Medico:      rec.medicoID,
		TipoExame:   tipo,
		ValorBase:   valor,
		Comissao:    cfg.Comissao,
		ValorMedico: roundCents(valor * cfg.Comissao / 100),
		Data:        now,
	})
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

// monthOf returns the first instant of t's month and of the next one.
func monthOf(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 1, 0)
}

func (s *memStore) transacoesLocked(inicio, fim time.Time) []models.Transacao {
	var out []models.Transacao
	for _, t := range s.transacoes {
		if !t.Data.Before(inicio) && t.Data.Before(fim) {
			out = append(out, t)
		}
	}
	return out
}

func (s *memStore) nomeLocked(id string) string {
	if acc, ok := s.accountsByID[id]; ok {
		return acc.usuario.Nome
	}
	return ""
}

func (s *memStore) dashboardFinanceiro() models.DashboardFinanceiro {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inicio, fim := monthOf(s.now().UTC())
	mes := s.transacoesLocked(inicio, fim)

	var resumo models.ResumoFinanceiro
	totals := map[string]float64{}
	for _, t := range mes {
		resumo.Add(t)
		totals[t.Medico] += t.ValorBase
	}

	top := make([]models.TotalPorMedico, 0, len(totals))
	for id, total := range totals {
		top = append(top, models.TotalPorMedico{Medico: id, Nome: s.nomeLocked(id), Total: total})
	}
	slices.SortFunc(top, func(a, b models.TotalPorMedico) int {
		if c := cmp.Compare(b.Total, a.Total); c != 0 {
			return c
		}
		return cmp.Compare(a.Nome, b.Nome)
	})

	slices.Reverse(mes)
	if mes == nil {
		mes = []models.Transacao{}
	}

	return models.DashboardFinanceiro{ResumoMes: resumo, TopMedicos: top, Transacoes: mes}
}

// faturas groups the transactions of [inicio, fim) into one statement per
// medico.
func (s *memStore) faturas(medicoID string, inicio, fim time.Time) []models.Fatura {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byMedico := map[string]*models.Fatura{}
	for _, t := range s.transacoesLocked(inicio, fim) {
		if medicoID != "" && t.Medico != medicoID {
			continue
		}
		f, ok := byMedico[t.Medico]
		if !ok {
			f = &models.Fatura{
				ID:            t.Medico + "-" + inicio.Format("20060102"),
				Medico:        models.Medico{ID: t.Medico, Nome: s.nomeLocked(t.Medico)},
				PeriodoInicio: inicio,
				PeriodoFim:    fim,
				Status:        "pendente",
			}
			byMedico[t.Medico] = f
		}
		f.ValorTotal = roundCents(f.ValorTotal + t.ValorMedico)
	}

	out := make([]models.Fatura, 0, len(byMedico))
	for _, f := range byMedico {
		out = append(out, *f)
	}
	slices.SortFunc(out, func(a, b models.Fatura) int { return cmp.Compare(a.Medico.Nome, b.Medico.Nome) })
	return out
}

func (s *Server) handleGetConfiguracao(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.store.configuracao(r.PathValue("medicoId"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleConfigurar(w http.ResponseWriter, r *http.Request) {
	var cfg models.ConfiguracaoFinanceira
	if err := decodeJSON(w, r, &cfg); err != nil {
		writeError(w, http.StatusBadRequest, "Requisição inválida")
		return
	}
	if err := cfg.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	out, err := s.store.configurar(r.PathValue("medicoId"), cfg, userFromContext(r.Context()))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDashboardFinanceiro(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.dashboardFinanceiro())
}

func (s *Server) handleFaturas(w http.ResponseWriter, r *http.Request) {
	inicio, fim := monthOf(s.now().UTC())

	q := r.URL.Query()
	if v := q.Get("inicio"); v != "" {
		t, err := time.Parse(models.DateLayout, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Data inicial inválida")
			return
		}
		inicio = t
	}
	if v := q.Get("fim"); v != "" {
		t, err := time.Parse(models.DateLayout, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Data final inválida")
			return
		}
		fim = t
	}

	writeJSON(w, http.StatusOK, s.store.faturas(q.Get("medicoId"), inicio, fim))
}
