package console

import (
	"net/http"

	"github.com/laudofy/laudofy/internal/client"
	"github.com/laudofy/laudofy/internal/guard"
	"github.com/laudofy/laudofy/internal/laudo"
	"github.com/laudofy/laudofy/internal/models"
)

type dashboardView struct {
	User         *models.User         `json:"user"`
	Estatisticas *models.Estatisticas `json:"estatisticas"`
}

func (c *Console) handleDashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := c.client.Estatisticas(r.Context())
	if err != nil {
		writeClientError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dashboardView{User: guard.UserFromContext(r.Context()), Estatisticas: stats})
}

func (c *Console) handleLaudos(w http.ResponseWriter, r *http.Request) {
	page, err := c.client.ListLaudos(r.Context(), client.LaudoFilter{
		Status:   models.Status(r.URL.Query().Get("status")),
		Paciente: r.URL.Query().Get("paciente"),
		Page:     queryInt(r, "page"),
		Limit:    queryInt(r, "limit"),
	})
	if err != nil {
		writeClientError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

type laudoView struct {
	Laudo     *models.Laudo         `json:"laudo"`
	Historico []models.HistoryEntry `json:"historico"`
	Acoes     laudo.Actions         `json:"acoes"`
	// UltimoEnvio is the most recent email attempt, if any.
	UltimoEnvio *models.HistoryEntry `json:"ultimoEnvio,omitempty"`
	Terminal    bool                 `json:"terminal"`
}

func (c *Console) handleLaudo(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	l, err := c.client.GetLaudo(r.Context(), id)
	if err != nil {
		writeClientError(w, r, err)
		return
	}
	history, err := c.client.Historico(r.Context(), id)
	if err != nil {
		writeClientError(w, r, err)
		return
	}

	view := laudoView{
		Laudo:     l,
		Historico: history,
		Acoes:     laudo.Evaluate(laudo.FactsFor(guard.UserFromContext(r.Context()), l, history)),
		Terminal:  laudo.IsTerminal(l.Status),
	}
	if l.IsSigned() {
		if last, ok := laudo.LastEmailAttempt(history); ok {
			view.UltimoEnvio = &last
		}
	}
	writeJSON(w, http.StatusOK, view)
}

func (c *Console) handleExames(w http.ResponseWriter, r *http.Request) {
	page, err := c.client.ListExames(r.Context(), pageQuery(r))
	if err != nil {
		writeClientError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (c *Console) handleExame(w http.ResponseWriter, r *http.Request) {
	e, err := c.client.GetExame(r.Context(), r.PathValue("id"))
	if err != nil {
		writeClientError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (c *Console) handlePacientes(w http.ResponseWriter, r *http.Request) {
	page, err := c.client.ListPacientes(r.Context(), pageQuery(r))
	if err != nil {
		writeClientError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (c *Console) handlePaciente(w http.ResponseWriter, r *http.Request) {
	p, err := c.client.GetPaciente(r.Context(), r.PathValue("id"))
	if err != nil {
		writeClientError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (c *Console) handleUsuarios(w http.ResponseWriter, r *http.Request) {
	page, err := c.client.ListUsuarios(r.Context(), pageQuery(r))
	if err != nil {
		writeClientError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

type relatorioView struct {
	Estatisticas *models.Estatisticas `json:"estatisticas"`
	// PorStatus lists every known status, including those with no laudos.
	PorStatus []statusCount `json:"porStatus"`
}

type statusCount struct {
	Status models.Status `json:"status"`
	Total  int           `json:"total"`
}

func (c *Console) handleRelatorios(w http.ResponseWriter, r *http.Request) {
	stats, err := c.client.Estatisticas(r.Context())
	if err != nil {
		writeClientError(w, r, err)
		return
	}

	counts := make([]statusCount, 0, len(models.Statuses))
	for _, s := range models.Statuses {
		counts = append(counts, statusCount{Status: s, Total: stats.LaudosPorStatus[s]})
	}
	writeJSON(w, http.StatusOK, relatorioView{Estatisticas: stats, PorStatus: counts})
}

func (c *Console) handleAuditoria(w http.ResponseWriter, r *http.Request) {
	page, err := c.client.Auditoria(r.Context(), pageQuery(r))
	if err != nil {
		writeClientError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}
