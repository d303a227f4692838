package index

import (
	"github.com/franz/project-copilot/internal/store"
)

// State is the display status of a file. DIRTY is derived on every scan and
// never stored; the others mirror store.Status.
type State string

const (
	StateNew            State = "NEW"
	StateDirty          State = "DIRTY"
	StateIndexed        State = "INDEXED"
	StateFailed         State = "FAILED"
	StateNotExtractable State = "NOT_EXTRACTABLE"
)

// StateFromStatus maps a stored status to its display state
func StateFromStatus(s store.Status) State {
	switch s {
	case store.StatusIndexed:
		return StateIndexed
	case store.StatusFailed:
		return StateFailed
	case store.StatusNotExtractable:
		return StateNotExtractable
	default:
		return StateNew
	}
}

// Needed reports whether a file in this state should be (re)indexed incrementally
func (s State) Needed() bool {
	return s == StateNew || s == StateDirty
}
