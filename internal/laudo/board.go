package laudo

import (
	"slices"
	"sync"

	"github.com/laudofy/laudofy/internal/models"
)

// EventKind names a live update pushed by the backend.
type EventKind string

const (
	EventCreated EventKind = "laudoCriado"
	EventUpdated EventKind = "laudoAtualizado"
)

// Valid returns true if the kind is one the backend emits.
func (k EventKind) Valid() bool {
	return k == EventCreated || k == EventUpdated
}

// Merge applies one live update to items and returns the new list. Created
// laudos are prepended, or replace an entry with the same id. Updated
// laudos replace the entry with the same id in place; unknown ids and
// updates older than the held copy are ignored. items is not modified.
func Merge(items []models.Laudo, kind EventKind, l models.Laudo) []models.Laudo {
	idx := slices.IndexFunc(items, func(it models.Laudo) bool { return it.ID == l.ID })

	switch kind {
	case EventCreated:
		if idx >= 0 {
			return replaceAt(items, idx, l)
		}
		out := make([]models.Laudo, 0, len(items)+1)
		out = append(out, l)
		return append(out, items...)
	case EventUpdated:
		if idx < 0 || isStale(items[idx], l) {
			return slices.Clone(items)
		}
		return replaceAt(items, idx, l)
	default:
		return slices.Clone(items)
	}
}

func replaceAt(items []models.Laudo, idx int, l models.Laudo) []models.Laudo {
	out := slices.Clone(items)
	out[idx] = l
	return out
}

func isStale(held, incoming models.Laudo) bool {
	if held.UpdatedAt.IsZero() || incoming.UpdatedAt.IsZero() {
		return false
	}
	return incoming.UpdatedAt.Before(held.UpdatedAt)
}

type pendingEvent struct {
	kind  EventKind
	laudo models.Laudo
}

// Board is the list view state of laudos kept current by live updates.
// Updates may arrive before the first page is loaded; they are held and
// replayed on top of it. It is safe for concurrent use.
type Board struct {
	mu      sync.RWMutex
	loaded  bool
	items   []models.Laudo
	pending []pendingEvent
}

// NewBoard creates an empty, unloaded Board.
func NewBoard() *Board {
	return &Board{}
}

// Load replaces the list with a freshly fetched page and replays any
// updates received before the first load.
func (b *Board) Load(items []models.Laudo) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items = slices.Clone(items)
	for _, ev := range b.pending {
		b.items = Merge(b.items, ev.kind, ev.laudo)
	}
	b.pending = nil
	b.loaded = true
}

// Apply merges one live update. It returns false when the update was held
// for replay because nothing has been loaded yet.
func (b *Board) Apply(kind EventKind, l models.Laudo) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.loaded {
		b.pending = append(b.pending, pendingEvent{kind: kind, laudo: l})
		return false
	}
	b.items = Merge(b.items, kind, l)
	return true
}

// Snapshot returns a copy of the current list.
func (b *Board) Snapshot() []models.Laudo {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Clone(b.items)
}

// Get returns the laudo with the given id.
func (b *Board) Get(id string) (models.Laudo, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	idx := slices.IndexFunc(b.items, func(it models.Laudo) bool { return it.ID == id })
	if idx < 0 {
		return models.Laudo{}, false
	}
	return b.items[idx], true
}

// Loaded reports whether Load has been called.
func (b *Board) Loaded() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.loaded
}
