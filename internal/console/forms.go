package console

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/laudofy/laudofy/internal/client"
	"github.com/laudofy/laudofy/internal/models"
)

// decodeForm reads a JSON body into v, answering 400 on failure.
func decodeForm(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (c *Console) handleCreatePaciente(w http.ResponseWriter, r *http.Request) {
	var in models.PacienteInput
	if !decodeForm(w, r, &in) {
		return
	}
	p, err := c.client.CreatePaciente(r.Context(), in)
	if err != nil {
		writeClientError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (c *Console) handleUpdatePaciente(w http.ResponseWriter, r *http.Request) {
	var in models.PacienteInput
	if !decodeForm(w, r, &in) {
		return
	}
	p, err := c.client.UpdatePaciente(r.Context(), r.PathValue("id"), in)
	if err != nil {
		writeClientError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (c *Console) handleCreateExame(w http.ResponseWriter, r *http.Request) {
	var in models.ExameInput
	if !decodeForm(w, r, &in) {
		return
	}
	e, err := c.client.CreateExame(r.Context(), in)
	if err != nil {
		writeClientError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (c *Console) handleCreateUsuario(w http.ResponseWriter, r *http.Request) {
	var in models.UsuarioInput
	if !decodeForm(w, r, &in) {
		return
	}
	u, err := c.client.CreateUsuario(r.Context(), in)
	if err != nil {
		writeClientError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (c *Console) handleUpdateUsuario(w http.ResponseWriter, r *http.Request) {
	var in models.UsuarioInput
	if !decodeForm(w, r, &in) {
		return
	}
	u, err := c.client.UpdateUsuario(r.Context(), r.PathValue("id"), in)
	if err != nil {
		writeClientError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (c *Console) handleDeleteUsuario(w http.ResponseWriter, r *http.Request) {
	if err := c.client.DeleteUsuario(r.Context(), r.PathValue("id")); err != nil {
		writeClientError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *Console) handleConfiguracao(w http.ResponseWriter, r *http.Request) {
	cfg, err := c.client.GetConfiguracaoFinanceira(r.Context(), r.PathValue("medicoId"))
	if err != nil {
		writeClientError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (c *Console) handleConfigurar(w http.ResponseWriter, r *http.Request) {
	var cfg models.ConfiguracaoFinanceira
	if !decodeForm(w, r, &cfg) {
		return
	}
	out, err := c.client.ConfigurarFinanceiro(r.Context(), r.PathValue("medicoId"), cfg)
	if err != nil {
		writeClientError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (c *Console) handleFinanceiro(w http.ResponseWriter, r *http.Request) {
	d, err := c.client.DashboardFinanceiro(r.Context())
	if err != nil {
		writeClientError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (c *Console) handleFaturas(w http.ResponseWriter, r *http.Request) {
	filter := client.FaturaFilter{Medico: r.URL.Query().Get("medicoId")}
	for key, dst := range map[string]*time.Time{"inicio": &filter.Inicio, "fim": &filter.Fim} {
		v := r.URL.Query().Get(key)
		if v == "" {
			continue
		}
		t, err := time.Parse(models.DateLayout, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid "+key+" date")
			return
		}
		*dst = t
	}

	faturas, err := c.client.ListFaturas(r.Context(), filter)
	if err != nil {
		writeClientError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, faturas)
}
