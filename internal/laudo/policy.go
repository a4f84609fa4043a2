// Package laudo models the report lifecycle as seen by a client: which
// actions a user may take on a laudo, which status changes the backend may
// report, and how pushed updates merge into a loaded list.
//
// The action predicates decide what to offer a user. They are not an
// authorization boundary; the backend re-checks every one of them.
package laudo

import (
	"slices"

	"github.com/laudofy/laudofy/internal/models"
)

// Facts are the inputs every action predicate is derived from.
type Facts struct {
	Role        models.Role
	Status      models.Status
	HasOriginal bool
	HasSigned   bool
	Superseded  bool
	// LastEmail is the statusEnvio of the newest email attempt, empty if
	// none was made.
	LastEmail string
}

// FactsFor collects the facts for user acting on l. history may be nil when
// it has not been loaded; email facts then assume no prior attempt.
func FactsFor(user *models.User, l *models.Laudo, history []models.HistoryEntry) Facts {
	var f Facts
	if user != nil {
		f.Role = user.Role
	}
	if l != nil {
		f.Status = l.Status
		f.HasOriginal = l.LaudoOriginal != ""
		f.HasSigned = l.IsSigned()
		f.Superseded = l.IsSuperseded()
	}
	if last, ok := LastEmailAttempt(history); ok {
		f.LastEmail = last.StatusEnvio
	}
	return f
}

// CanUploadSigned reports whether the signed PDF may be uploaded.
func CanUploadSigned(f Facts) bool {
	return f.Role == models.RoleMedico &&
		f.Status == models.StatusRealizado &&
		!f.HasSigned &&
		f.HasOriginal
}

// CanRedo reports whether a new version of the laudo may be created.
func CanRedo(f Facts) bool {
	return f.Role == models.RoleMedico &&
		f.Status != models.StatusCancelado &&
		f.Status != models.StatusRefeito &&
		!f.Superseded
}

// CanSendEmail reports whether the signed laudo may be emailed. Resending
// is only offered after a failed attempt.
func CanSendEmail(f Facts) bool {
	return f.HasSigned && (f.LastEmail == "" || f.LastEmail == models.EnvioFalha)
}

// Actions is the set of actions offered for one laudo.
type Actions struct {
	UploadSigned bool `json:"podeEnviarAssinatura"`
	Redo         bool `json:"podeRefazerLaudo"`
	SendEmail    bool `json:"podeReenviarEmail"`
}

// Evaluate applies every predicate to f.
func Evaluate(f Facts) Actions {
	return Actions{
		UploadSigned: CanUploadSigned(f),
		Redo:         CanRedo(f),
		SendEmail:    CanSendEmail(f),
	}
}

// LastEmailAttempt returns the newest EnvioEmail entry of history.
func LastEmailAttempt(history []models.HistoryEntry) (models.HistoryEntry, bool) {
	var attempts []models.HistoryEntry
	for _, h := range history {
		if h.Acao == models.AcaoEnvioEmail {
			attempts = append(attempts, h)
		}
	}
	if len(attempts) == 0 {
		return models.HistoryEntry{}, false
	}

	slices.SortStableFunc(attempts, func(a, b models.HistoryEntry) int {
		return b.Data.Compare(a.Data)
	})
	return attempts[0], true
}
