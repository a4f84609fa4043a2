package laudo

import (
	"testing"
	"time"

	"github.com/laudofy/laudofy/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanUploadSigned(t *testing.T) {
	base := Facts{
		Role:        models.RoleMedico,
		Status:      models.StatusRealizado,
		HasOriginal: true,
	}

	tests := []struct {
		name   string
		modify func(f *Facts)
		want   bool
	}{
		{"medico with realizado original", func(f *Facts) {}, true},
		{"already signed status", func(f *Facts) { f.Status = models.StatusAssinado }, false},
		{"signed artifact present", func(f *Facts) { f.HasSigned = true }, false},
		{"no original", func(f *Facts) { f.HasOriginal = false }, false},
		{"tecnico", func(f *Facts) { f.Role = models.RoleTecnico }, false},
		{"admin", func(f *Facts) { f.Role = models.RoleAdmin }, false},
		{"no user", func(f *Facts) { f.Role = "" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := base
			tt.modify(&f)
			assert.Equal(t, tt.want, CanUploadSigned(f))
		})
	}
}

func TestCanRedo(t *testing.T) {
	tests := []struct {
		name  string
		facts Facts
		want  bool
	}{
		{"realizado", Facts{Role: models.RoleMedico, Status: models.StatusRealizado}, true},
		{"assinado", Facts{Role: models.RoleMedico, Status: models.StatusAssinado, HasSigned: true}, true},
		{"erro pdf", Facts{Role: models.RoleMedico, Status: models.StatusErroPDF}, true},
		{"cancelado", Facts{Role: models.RoleMedico, Status: models.StatusCancelado}, false},
		{"refeito", Facts{Role: models.RoleMedico, Status: models.StatusRefeito}, false},
		{"superseded", Facts{Role: models.RoleMedico, Status: models.StatusRealizado, Superseded: true}, false},
		{"tecnico", Facts{Role: models.RoleTecnico, Status: models.StatusRealizado}, false},
		{"admin", Facts{Role: models.RoleAdmin, Status: models.StatusRealizado}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanRedo(tt.facts))
		})
	}
}

func TestCanSendEmail(t *testing.T) {
	tests := []struct {
		name  string
		facts Facts
		want  bool
	}{
		{"unsigned", Facts{}, false},
		{"unsigned after failure", Facts{LastEmail: models.EnvioFalha}, false},
		{"signed never sent", Facts{HasSigned: true}, true},
		{"signed last failed", Facts{HasSigned: true, LastEmail: models.EnvioFalha}, true},
		{"signed last sent", Facts{HasSigned: true, LastEmail: models.EnvioEnviado}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanSendEmail(tt.facts))
		})
	}
}

func TestLastEmailAttempt(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	_, ok := LastEmailAttempt(nil)
	require.False(t, ok)

	_, ok = LastEmailAttempt([]models.HistoryEntry{{Acao: models.AcaoAssinatura, Data: t0}})
	require.False(t, ok)

	history := []models.HistoryEntry{
		{Acao: models.AcaoEnvioEmail, Data: t0.Add(2 * time.Hour), StatusEnvio: models.EnvioFalha},
		{Acao: models.AcaoAssinatura, Data: t0.Add(3 * time.Hour)},
		{Acao: models.AcaoEnvioEmail, Data: t0, StatusEnvio: models.EnvioEnviado},
		{Acao: models.AcaoEnvioEmail, Data: t0.Add(time.Hour), StatusEnvio: models.EnvioEnviado},
	}

	last, ok := LastEmailAttempt(history)
	require.True(t, ok)
	assert.Equal(t, models.EnvioFalha, last.StatusEnvio)
	assert.Equal(t, models.AcaoEnvioEmail, history[0].Acao, "input order is untouched")
}

func TestFactsFor(t *testing.T) {
	user := &models.User{ID: "u1", Role: models.RoleMedico}
	l := &models.Laudo{
		ID:            "l1",
		Status:        models.StatusRealizado,
		LaudoOriginal: "https://files/l1.pdf",
	}

	f := FactsFor(user, l, nil)
	assert.Equal(t, Actions{UploadSigned: true, Redo: true}, Evaluate(f))

	f = FactsFor(nil, l, nil)
	assert.Equal(t, Actions{}, Evaluate(f))

	signed := *l
	signed.Status = models.StatusAssinado
	signed.LaudoAssinado = "https://files/l1-signed.pdf"
	history := []models.HistoryEntry{{Acao: models.AcaoEnvioEmail, StatusEnvio: models.EnvioEnviado}}

	f = FactsFor(user, &signed, history)
	assert.Equal(t, Actions{Redo: true}, Evaluate(f))
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(models.StatusRealizado, models.StatusAssinado))
	assert.True(t, CanTransition(models.StatusRealizado, models.StatusRefeito))
	assert.True(t, CanTransition(models.StatusProcessamento, models.StatusErroPDF))
	assert.False(t, CanTransition(models.StatusAssinado, models.StatusRealizado))
	assert.False(t, CanTransition(models.StatusCancelado, models.StatusRealizado))

	assert.True(t, CanTransition(models.StatusErroPDF, models.StatusRefeito))
	assert.True(t, CanTransition(models.StatusRascunho, models.StatusRefeito))
	assert.False(t, CanTransition(models.StatusErroPDF, models.StatusAssinado))

	for _, s := range []models.Status{models.StatusCancelado, models.StatusRefeito} {
		assert.True(t, IsTerminal(s), s)
	}
	assert.False(t, IsTerminal(models.StatusRealizado))
	assert.False(t, IsTerminal(models.StatusErroPDF))
}

func TestCanRedoAgreesWithTransitions(t *testing.T) {
	for _, s := range models.Statuses {
		t.Run(string(s), func(t *testing.T) {
			f := Facts{Role: models.RoleMedico, Status: s, HasOriginal: true}
			assert.Equal(t, CanRedo(f), CanTransition(s, models.StatusRefeito))
		})
	}
}
