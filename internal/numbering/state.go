package numbering

import "fmt"

// State is the reservation lifecycle stage of a numbered slot.
type State string

const (
	// StateSpare is a pre-allocated slot holding only its number and date.
	StateSpare State = "spare"
	// StateReserved is a slot whose content has been filled in.
	StateReserved State = "reserved"
	// StateReleased is a slot whose content was cleared; its number stays taken.
	StateReleased State = "released"
)

// ParseState converts a stored value into a State.
func ParseState(value string) (State, error) {
	switch State(value) {
	case StateSpare, StateReserved, StateReleased:
		return State(value), nil
	default:
		return "", fmt.Errorf("unknown reservation state %q", value)
	}
}

// Reserved reports whether the slot currently holds content.
func (s State) Reserved() bool {
	return s == StateReserved
}

// Claimable reports whether an update would claim the slot rather than edit it.
func (s State) Claimable() bool {
	return s == StateSpare || s == StateReleased
}

// CanTransition reports whether the lifecycle permits moving from s to next.
// Slots only become spare at creation, and only reserved slots can be released.
func (s State) CanTransition(next State) bool {
	switch next {
	case StateReserved:
		return s == StateSpare || s == StateReserved || s == StateReleased
	case StateReleased:
		return s == StateReserved
	default:
		return false
	}
}
