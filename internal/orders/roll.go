package orders

import "time"

// RollStatus tracks where an instrument sits in its contract roll.
type RollStatus string

const (
	RollNotNeeded  RollStatus = "no_roll_needed"
	RollRequired   RollStatus = "roll_required"
	RollInProgress RollStatus = "roll_in_progress"
	RollCompleted  RollStatus = "roll_completed"
)

// RollState is recomputed every roll-handler cycle from the held position
// and the roll calendar. It moves to RollInProgress only once roll orders
// are actually on the stacks, and back to RollNotNeeded once the old
// contract's position is flat.
type RollState struct {
	Instrument    string
	HeldContract  string
	PriceContract string
	CarryContract string
	Status        RollStatus
	UpdatedAt     time.Time
}

// RollParameters is what the roll calendar answers per instrument.
type RollParameters struct {
	PriceContract string
	CarryContract string
	RollWindow    bool
	Class         InstrumentClass
	Account       string

	// SizeFactor scales contract units to execution units for standard
	// futures. Ignored for spread-bet instruments.
	SizeFactor float64
}
