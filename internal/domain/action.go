package domain

// ActionKind is a mutation a user can request against scheduled items.
type ActionKind string

const (
	ActionCancel  ActionKind = "cancel"
	ActionConfirm ActionKind = "confirm"
)

// Valid reports whether the kind is a known action.
func (k ActionKind) Valid() bool {
	return k == ActionCancel || k == ActionConfirm
}

// PendingAction is one parsed, not-yet-confirmed mutation request.
// Indices are 1-based positions into the current appointment snapshot,
// unique, sorted ascending, and within [1, len(snapshot)].
type PendingAction struct {
	Action     ActionKind `json:"action"`
	Indices    []int      `json:"indices"`
	Confidence float64    `json:"confidence"`
}
