package laudo

import (
	"slices"

	"github.com/laudofy/laudofy/internal/models"
)

// transitions lists the status changes the backend may report. Every status
// a laudo can be redone from has an edge to Refeito.
var transitions = map[models.Status][]models.Status{
	models.StatusRascunho:      {models.StatusProcessamento, models.StatusRefeito},
	models.StatusProcessamento: {models.StatusRealizado, models.StatusErroPDF, models.StatusRefeito},
	models.StatusRealizado:     {models.StatusAssinado, models.StatusRefeito, models.StatusCancelado},
	models.StatusAssinado:      {models.StatusRefeito, models.StatusCancelado},
	models.StatusErroPDF:       {models.StatusRefeito},
}

// CanTransition reports whether a laudo may move from one status to another.
func CanTransition(from, to models.Status) bool {
	return slices.Contains(transitions[from], to)
}

// IsTerminal reports whether no further status change is possible.
func IsTerminal(s models.Status) bool {
	return len(transitions[s]) == 0
}
