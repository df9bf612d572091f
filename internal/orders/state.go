package orders

// State is the lifecycle position of an order. All three levels share the
// same machine:
//
//	pending → active → {partially_filled ⇄ active} → filled
//	pending|active → cancelled
//	pending|active → failed
//
// Terminal states are immutable.
type State string

const (
	StatePending         State = "pending"
	StateActive          State = "active"
	StatePartiallyFilled State = "partially_filled"
	StateFilled          State = "filled"
	StateCancelled       State = "cancelled"
	StateFailed          State = "failed"
)

func (s State) Terminal() bool {
	switch s {
	case StateFilled, StateCancelled, StateFailed:
		return true
	}
	return false
}

// Working reports whether the order still belongs to a stack's active set.
func (s State) Working() bool {
	return !s.Terminal()
}

var validTransitions = map[State][]State{
	StatePending:         {StateActive, StateCancelled, StateFailed},
	StateActive:          {StatePartiallyFilled, StateFilled, StateCancelled, StateFailed},
	StatePartiallyFilled: {StateActive, StatePartiallyFilled, StateFilled, StateCancelled, StateFailed},
}

// CanTransition reports whether from → to is a legal move. No transition
// out of a terminal state is ever legal.
func CanTransition(from, to State) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
