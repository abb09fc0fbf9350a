package store

import (
	"time"

	"github.com/google/uuid"

	"github.com/edtsuite/timetable-core/internal/models"
)

// snapshot is one reversible point in history. States are deep copies;
// nothing here aliases live store memory.
type snapshot struct {
	ID          string
	Description string
	State       *models.State
	TakenAt     time.Time
}

// history is the bounded undo/redo stack pair. Oldest undo entries are
// discarded past depth.
type history struct {
	depth int
	undo  []snapshot
	redo  []snapshot
}

func newHistory(depth int) *history {
	if depth <= 0 {
		depth = 50
	}
	return &history{depth: depth}
}

// push records a pre-mutation snapshot and clears the redo stack.
func (h *history) push(description string, state *models.State, at time.Time) {
	h.undo = append(h.undo, snapshot{
		ID:          uuid.NewString(),
		Description: description,
		State:       state,
		TakenAt:     at,
	})
	if len(h.undo) > h.depth {
		h.undo = h.undo[len(h.undo)-h.depth:]
	}
	h.redo = nil
}

// stepBack exchanges the current state for the last snapshot.
func (h *history) stepBack(current *models.State, at time.Time) (*models.State, bool) {
	if len(h.undo) == 0 {
		return nil, false
	}
	last := h.undo[len(h.undo)-1]
	h.undo = h.undo[:len(h.undo)-1]
	h.redo = append(h.redo, snapshot{
		ID:          uuid.NewString(),
		Description: last.Description,
		State:       current,
		TakenAt:     at,
	})
	return last.State, true
}

// stepForward is the symmetric redo operation.
func (h *history) stepForward(current *models.State, at time.Time) (*models.State, bool) {
	if len(h.redo) == 0 {
		return nil, false
	}
	last := h.redo[len(h.redo)-1]
	h.redo = h.redo[:len(h.redo)-1]
	h.undo = append(h.undo, snapshot{
		ID:          uuid.NewString(),
		Description: last.Description,
		State:       current,
		TakenAt:     at,
	})
	return last.State, true
}

func (h *history) undoDepth() int { return len(h.undo) }
func (h *history) redoDepth() int { return len(h.redo) }
