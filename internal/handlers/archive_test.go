package handlers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"stacker/internal/orders"
	"stacker/internal/stack"
)

type MockOrderArchiver struct {
	mock.Mock
}

func (m *MockOrderArchiver) ArchiveOrder(ctx context.Context, o *orders.Order) error {
	args := m.Called(ctx, o)
	return args.Error(0)
}

func TestArchiverSweepsTerminalOrders(t *testing.T) {
	s := stack.NewSet()
	iid := putInstrumentOrder(t, s, "SP500", 10)
	mustModify(t, s.Instrument, iid, func(o *orders.Order) error {
		o.State = orders.StateCancelled
		return nil
	})
	putInstrumentOrder(t, s, "GOLD", 10) // stays working

	store := &MockOrderArchiver{}
	store.On("ArchiveOrder", mock.Anything, mock.MatchedBy(func(o *orders.Order) bool {
		return o.ID == iid
	})).Return(nil).Once()

	NewArchiver(s, store).Run(context.Background())

	assert.Len(t, s.Instrument.ListActive(), 1)
	assert.Len(t, s.Instrument.ListArchived(0), 1)
	store.AssertExpectations(t)
}

func TestArchiverLeavesOrderOnPersistFailure(t *testing.T) {
	s := stack.NewSet()
	iid := putInstrumentOrder(t, s, "SP500", 10)
	mustModify(t, s.Instrument, iid, func(o *orders.Order) error {
		o.State = orders.StateFailed
		return nil
	})

	store := &MockOrderArchiver{}
	store.On("ArchiveOrder", mock.Anything, mock.Anything).Return(assert.AnError).Twice()

	a := NewArchiver(s, store)
	a.Run(context.Background())
	require.Len(t, s.Instrument.ListActive(), 1, "unpersisted order stays for the next sweep")

	a.Run(context.Background())
	store.AssertExpectations(t)
}

func TestArchiverWithoutStore(t *testing.T) {
	s := stack.NewSet()
	iid := putInstrumentOrder(t, s, "SP500", 10)
	mustModify(t, s.Instrument, iid, func(o *orders.Order) error {
		o.State = orders.StateCancelled
		return nil
	})

	NewArchiver(s, nil).Run(context.Background())
	assert.Empty(t, s.Instrument.ListActive())
}
