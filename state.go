package numalloc

import "fmt"

// State is the lifecycle state of a number. The zero value is not a valid
// state.
type State string

const (
	StateAvailable State = "AVAILABLE"
	StateReserved  State = "RESERVED"
	StateAssigned  State = "ASSIGNED"
)

// States lists every valid state in lifecycle order.
var States = []State{StateAvailable, StateReserved, StateAssigned}

// ParseState converts a stored state label into a State. Labels are matched
// exactly; anything else is rejected rather than defaulted.
func ParseState(s string) (State, error) {
	switch State(s) {
	case StateAvailable, StateReserved, StateAssigned:
		return State(s), nil
	default:
		return "", fmt.Errorf("unrecognized state %q", s)
	}
}

// Valid reports whether s is one of the three canonical states.
func (s State) Valid() bool {
	_, err := ParseState(string(s))
	return err == nil
}

func (s State) String() string {
	return string(s)
}
