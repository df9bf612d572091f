package stack

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stacker/internal/orders"
)

func TestSetSharesOneIDSpace(t *testing.T) {
	s := NewSet()
	iid, err := s.Instrument.PutOrder(newInstrumentOrder("SP500", 37))
	require.NoError(t, err)
	cid, err := s.Contract.PutOrder(&orders.Order{
		Level: orders.LevelContract,
		Key:   orders.ContractKey("SP500", "202412"),
		Trade: decimal.NewFromInt(37),
	})
	require.NoError(t, err)
	assert.NotEqual(t, iid, cid)
	assert.Equal(t, s.Contract, s.ChildStack(orders.LevelInstrument))
	assert.Equal(t, s.Broker, s.ChildStack(orders.LevelContract))
	assert.Nil(t, s.ChildStack(orders.LevelBroker))
}

func TestCheckAllocationBoundsChildren(t *testing.T) {
	s := NewSet()
	parent := newInstrumentOrder("SP500", 10)
	id, err := s.Instrument.PutOrder(parent)
	require.NoError(t, err)
	parent.ID = id

	assert.NoError(t, s.CheckAllocation(parent, decimal.NewFromInt(10)))
	assert.Error(t, s.CheckAllocation(parent, decimal.NewFromInt(11)))
	assert.Error(t, s.CheckAllocation(parent, decimal.NewFromInt(-3)), "opposing direction")

	// With an existing child consuming part of the parent.
	cid, err := s.Contract.PutOrder(&orders.Order{
		Level:    orders.LevelContract,
		Key:      orders.ContractKey("SP500", "202412"),
		Trade:    decimal.NewFromInt(6),
		ParentID: id,
	})
	require.NoError(t, err)
	parent.AddChild(cid)
	assert.NoError(t, s.CheckAllocation(parent, decimal.NewFromInt(4)))
	assert.Error(t, s.CheckAllocation(parent, decimal.NewFromInt(5)))
}

func TestCheckAllocationRollParentNetsToZero(t *testing.T) {
	s := NewSet()
	parent := &orders.Order{
		Level:   orders.LevelInstrument,
		Key:     orders.InstrumentKey("SP500"),
		Subtype: orders.SubtypeRoll,
		Trade:   decimal.Zero,
	}
	id, err := s.Instrument.PutOrder(parent)
	require.NoError(t, err)
	parent.ID = id

	// Each leg alone exceeds the zero net trade; the roll carve-out
	// accepts them.
	assert.NoError(t, s.CheckAllocation(parent, decimal.NewFromInt(-5)))
	assert.NoError(t, s.CheckAllocation(parent, decimal.NewFromInt(5)))
}

func TestImpliedPositionsFoldBrokerFills(t *testing.T) {
	s := NewSet()
	put := func(contract, account string, trade, fill int64) int64 {
		id, err := s.Broker.PutOrder(&orders.Order{
			Level: orders.LevelBroker,
			Key:   orders.BrokerKey("SP500", contract, account),
			Trade: decimal.NewFromInt(trade),
			State: orders.StateActive,
		})
		require.NoError(t, err)
		_, err = s.Broker.LockOrderByID(id)
		require.NoError(t, err)
		require.NoError(t, s.Broker.ModifyOrder(id, func(o *orders.Order) error {
			o.Fill = decimal.NewFromInt(fill)
			if o.Fill.Equal(o.Trade) {
				o.State = orders.StateFilled
			}
			return nil
		}))
		s.Broker.UnlockOrderByID(id)
		return id
	}

	first := put("202412", "main", 4, 4)
	put("202412", "alt", 10, 3)

	// Archived fills still count toward the implied position.
	require.NoError(t, s.Broker.RemoveOrder(first))

	implied := s.ImpliedPositions()
	key := orders.ContractKey("SP500", "202412")
	assert.True(t, implied[key].Equal(decimal.NewFromInt(7)), "got %s", implied[key])
}

func TestArchiveTerminalSweeps(t *testing.T) {
	s := NewSet()
	id, err := s.Instrument.PutOrder(newInstrumentOrder("SP500", 5))
	require.NoError(t, err)
	_, err = s.Instrument.LockOrderByID(id)
	require.NoError(t, err)
	require.NoError(t, s.Instrument.ModifyOrder(id, func(o *orders.Order) error {
		o.State = orders.StateCancelled
		return nil
	}))
	s.Instrument.UnlockOrderByID(id)

	working, err := s.Instrument.PutOrder(newInstrumentOrder("GOLD", 5))
	require.NoError(t, err)

	var persisted []int64
	errs := s.ArchiveTerminal(func(o *orders.Order) error {
		persisted = append(persisted, o.ID)
		return nil
	})
	assert.Empty(t, errs)
	assert.Equal(t, []int64{id}, persisted)
	assert.Len(t, s.Instrument.ListArchived(0), 1)

	// The working order stays put.
	_, err = s.Instrument.GetOrder(working)
	assert.NoError(t, err)
}

func TestArchiveTerminalKeepsOrderOnPersistFailure(t *testing.T) {
	s := NewSet()
	id, err := s.Instrument.PutOrder(newInstrumentOrder("SP500", 5))
	require.NoError(t, err)
	_, err = s.Instrument.LockOrderByID(id)
	require.NoError(t, err)
	require.NoError(t, s.Instrument.ModifyOrder(id, func(o *orders.Order) error {
		o.State = orders.StateFailed
		return nil
	}))
	s.Instrument.UnlockOrderByID(id)

	boom := errors.New("db down")
	errs := s.ArchiveTerminal(func(o *orders.Order) error { return boom })
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], boom)

	// Still in the working set for the next sweep.
	assert.Empty(t, s.Instrument.ListArchived(0))
	assert.Len(t, s.Instrument.ListActive(), 1)
}
