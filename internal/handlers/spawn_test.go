package handlers

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stacker/internal/orders"
	"stacker/internal/rollcal"
	"stacker/internal/stack"
)

func TestSpawnerCreatesContractChild(t *testing.T) {
	s := stack.NewSet()
	spawner := NewSpawner(s, testCalendar(), NewRollTracker())
	iid := putInstrumentOrder(t, s, "SP500", 37)

	spawner.Run(context.Background())

	parent, err := s.Instrument.GetOrder(iid)
	require.NoError(t, err)
	assert.Equal(t, orders.StateActive, parent.State)
	require.Len(t, parent.ChildrenIDs, 1)

	child, err := s.Contract.GetOrder(parent.ChildrenIDs[0])
	require.NoError(t, err)
	assert.Equal(t, orders.ContractKey("SP500", "202412"), child.Key)
	assert.True(t, child.Trade.Equal(decimal.NewFromInt(37)))
	assert.Equal(t, iid, child.ParentID)
	assert.Equal(t, orders.StatePending, child.State)
}

func TestSpawnerIsIdempotent(t *testing.T) {
	s := stack.NewSet()
	spawner := NewSpawner(s, testCalendar(), NewRollTracker())
	iid := putInstrumentOrder(t, s, "SP500", 37)

	spawner.Run(context.Background())
	spawner.Run(context.Background())

	parent, err := s.Instrument.GetOrder(iid)
	require.NoError(t, err)
	assert.Len(t, parent.ChildrenIDs, 1)
	assert.Len(t, s.Contract.ListActive(), 1)
}

func TestSpawnerLeavesOrderPendingWithoutParameters(t *testing.T) {
	s := stack.NewSet()
	empty := rollcal.NewStaticProvider(nil)
	spawner := NewSpawner(s, empty, NewRollTracker())
	iid := putInstrumentOrder(t, s, "SP500", 37)

	spawner.Run(context.Background())

	parent, err := s.Instrument.GetOrder(iid)
	require.NoError(t, err)
	assert.Equal(t, orders.StatePending, parent.State)
	assert.Empty(t, parent.ChildrenIDs)
	assert.Empty(t, s.Contract.ListActive())

	// The calendar coming back unblocks the next cycle.
	empty.Set("SP500", orders.RollParameters{PriceContract: "202412", SizeFactor: 1})
	spawner.Run(context.Background())
	parent, err = s.Instrument.GetOrder(iid)
	require.NoError(t, err)
	assert.Equal(t, orders.StateActive, parent.State)
	assert.Len(t, parent.ChildrenIDs, 1)
}

func TestSpawnerSkipsWhenContractOrderExists(t *testing.T) {
	s := stack.NewSet()
	spawner := NewSpawner(s, testCalendar(), NewRollTracker())
	iid := putInstrumentOrder(t, s, "SP500", 37)
	putContractOrder(t, s, "SP500", "202412", 5)

	spawner.Run(context.Background())

	parent, err := s.Instrument.GetOrder(iid)
	require.NoError(t, err)
	assert.Equal(t, orders.StatePending, parent.State)
	assert.Empty(t, parent.ChildrenIDs)
}

func TestSpawnerTargetsRollContractMidRoll(t *testing.T) {
	s := stack.NewSet()
	tracker := NewRollTracker()
	tracker.set(orders.RollState{
		Instrument:    "SP500",
		HeldContract:  "202409",
		PriceContract: "202412",
		Status:        orders.RollInProgress,
	})
	spawner := NewSpawner(s, testCalendar(), tracker)
	putInstrumentOrder(t, s, "SP500", 10)

	spawner.Run(context.Background())

	active := s.Contract.ListActive()
	require.Len(t, active, 1)
	assert.Equal(t, "202412", active[0].Key.Contract)
}

func TestSpawnerPrefersHeldContractOutsideRoll(t *testing.T) {
	s := stack.NewSet()
	tracker := NewRollTracker()
	tracker.set(orders.RollState{
		Instrument:    "SP500",
		HeldContract:  "202409",
		PriceContract: "202412",
		Status:        orders.RollNotNeeded,
	})
	spawner := NewSpawner(s, testCalendar(), tracker)
	putInstrumentOrder(t, s, "SP500", 10)

	spawner.Run(context.Background())

	active := s.Contract.ListActive()
	require.Len(t, active, 1)
	assert.Equal(t, "202409", active[0].Key.Contract)
}
