package inventory

// NoteStatus is the lifecycle state of a delivery note.
type NoteStatus string

const (
	NoteIssued   NoteStatus = "issued"
	NoteReturned NoteStatus = "returned"
	NoteSettled  NoteStatus = "settled"
)

// noteTransitions is the complete transition table. Settled is terminal.
// Returned is informational: its mutation rules match issued.
var noteTransitions = map[NoteStatus][]NoteStatus{
	NoteIssued:   {NoteSettled, NoteReturned},
	NoteReturned: {NoteSettled},
	NoteSettled:  {},
}

func (s NoteStatus) Valid() bool {
	_, ok := noteTransitions[s]
	return ok
}

// CanTransition reports whether from -> to is in the table.
func CanTransition(from, to NoteStatus) bool {
	for _, next := range noteTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CanMutate is the single guard consulted by every note mutation.
func CanMutate(s NoteStatus) bool {
	return s.Valid() && s != NoteSettled
}

// CanDelete reports whether a note may be deleted without elevated
// privilege. Who holds that privilege is decided outside this package.
func CanDelete(s NoteStatus) bool {
	return CanMutate(s)
}
