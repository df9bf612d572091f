package stack

import (
	"github.com/shopspring/decimal"

	"stacker/internal/orders"
)

// Set groups the three stack levels and carries the cross-stack helpers:
// parent/child allocation checks, implied positions, archival sweeps.
// Each stack still owns its orders; the set never bypasses their locks.
type Set struct {
	Instrument *Stack
	Contract   *Stack
	Broker     *Stack
}

func NewSet() *Set {
	ids := NewIDSource()
	return &Set{
		Instrument: New(orders.LevelInstrument, ids),
		Contract:   New(orders.LevelContract, ids),
		Broker:     New(orders.LevelBroker, ids),
	}
}

func (s *Set) ByLevel(level orders.Level) *Stack {
	switch level {
	case orders.LevelInstrument:
		return s.Instrument
	case orders.LevelContract:
		return s.Contract
	case orders.LevelBroker:
		return s.Broker
	}
	return nil
}

// ChildStack returns the stack one level below the given one, or nil at
// the bottom.
func (s *Set) ChildStack(level orders.Level) *Stack {
	switch level {
	case orders.LevelInstrument:
		return s.Contract
	case orders.LevelContract:
		return s.Broker
	}
	return nil
}

// ChildrenOf returns snapshots of the order's children from the stack one
// level down, including archived ones.
func (s *Set) ChildrenOf(o *orders.Order) []*orders.Order {
	child := s.ChildStack(o.Level)
	if child == nil || o == nil {
		return nil
	}
	out := make([]*orders.Order, 0, len(o.ChildrenIDs))
	for _, id := range o.ChildrenIDs {
		if c, err := child.GetOrder(id); err == nil {
			out = append(out, c)
		}
	}
	return out
}

// CheckAllocation verifies that attaching a child with the proposed trade
// keeps the children's net quantity within the parent's trade. Roll
// parents carry a zero net trade and exactly offsetting legs, so they are
// checked for net-zero instead.
func (s *Set) CheckAllocation(parent *orders.Order, proposed decimal.Decimal) error {
	if parent == nil {
		return orders.ErrMissingOrder
	}
	total := proposed
	for _, c := range s.ChildrenOf(parent) {
		total = total.Add(c.Trade)
	}
	if parent.Subtype == orders.SubtypeRoll && parent.Trade.IsZero() {
		// Roll parents net to zero across exactly offsetting legs; each
		// leg on its own is non-zero, so the sum check does not apply.
		// The roll handler constructs and validates the leg pair.
		return nil
	}
	if total.Abs().GreaterThan(parent.Trade.Abs()) {
		return orders.Violation("allocation",
			"children total %s exceeds parent trade %s (parent %d)", total, parent.Trade, parent.ID)
	}
	if !total.IsZero() && !parent.Trade.IsZero() && total.Sign() != parent.Trade.Sign() {
		return orders.Violation("allocation",
			"children total %s opposes parent trade %s (parent %d)", total, parent.Trade, parent.ID)
	}
	return nil
}

// ImpliedPositions folds the fills recorded at the broker level, working
// and archived, into a net signed position per contract key. This is the
// system-recorded truth that reconciliation compares against the venue.
func (s *Set) ImpliedPositions() map[orders.Key]decimal.Decimal {
	out := make(map[orders.Key]decimal.Decimal)
	add := func(o *orders.Order) {
		if o.Fill.IsZero() {
			return
		}
		k := orders.ContractKey(o.Key.Instrument, o.Key.Contract)
		out[k] = out[k].Add(o.Fill)
	}
	for _, o := range s.Broker.ListActive() {
		add(o)
	}
	for _, o := range s.Broker.ListArchived(0) {
		add(o)
	}
	return out
}

// ArchiveTerminal sweeps every terminal working order of every level into
// its stack archive, invoking persist (if non-nil) for each before the
// move. Persist failures leave the order in place for the next sweep.
func (s *Set) ArchiveTerminal(persist func(*orders.Order) error) []error {
	var errs []error
	for _, st := range []*Stack{s.Broker, s.Contract, s.Instrument} {
		for _, o := range st.ListActive() {
			if !o.State.Terminal() {
				continue
			}
			if persist != nil {
				if err := persist(o); err != nil {
					errs = append(errs, err)
					continue
				}
			}
			if err := st.RemoveOrder(o.ID); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errs
}
