package handlers

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"stacker/internal/broker"
	"stacker/internal/orders"
	"stacker/internal/stack"
)

func TestSubmitterSizesStandardFuture(t *testing.T) {
	s := stack.NewSet()
	conn := NewMockConnection()
	conn.On("Submit", mock.Anything, mock.MatchedBy(func(req broker.SubmitRequest) bool {
		// 37 contract units at factor 0.1 round to 4 execution units.
		return req.Trade.Equal(decimal.NewFromInt(4)) &&
			req.Key == orders.BrokerKey("GOLD", "202410", "main")
	})).Return("V-200", nil).Once()

	submitter := NewSubmitter(s, testCalendar(), conn, NewControlsRegistry())
	cid := putContractOrder(t, s, "GOLD", "202410", 37)

	submitter.Run(context.Background())

	co, err := s.Contract.GetOrder(cid)
	require.NoError(t, err)
	assert.Equal(t, orders.StateActive, co.State)
	require.Len(t, co.ChildrenIDs, 1)

	bo, err := s.Broker.GetOrder(co.ChildrenIDs[0])
	require.NoError(t, err)
	assert.Equal(t, "V-200", bo.BrokerOrderID)
	assert.True(t, bo.Trade.Equal(decimal.NewFromInt(4)))
	assert.Equal(t, orders.StateActive, bo.State)
	conn.AssertExpectations(t)
}

func TestSubmitterSpreadBetGoesVerbatim(t *testing.T) {
	s := stack.NewSet()
	conn := NewMockConnection()
	conn.On("Submit", mock.Anything, mock.MatchedBy(func(req broker.SubmitRequest) bool {
		return req.Trade.Equal(decimal.NewFromInt(37))
	})).Return("V-201", nil).Once()

	submitter := NewSubmitter(s, testCalendar(), conn, NewControlsRegistry())
	putContractOrder(t, s, "EUROSTX", "202412", 37)

	submitter.Run(context.Background())
	conn.AssertExpectations(t)
}

func TestSubmitterMarksRejectedOrderFailed(t *testing.T) {
	s := stack.NewSet()
	conn := NewMockConnection()
	conn.On("Submit", mock.Anything, mock.Anything).Return("", orders.ErrMissingData).Once()

	submitter := NewSubmitter(s, testCalendar(), conn, NewControlsRegistry())
	cid := putContractOrder(t, s, "SP500", "202412", 10)

	submitter.Run(context.Background())

	co, err := s.Contract.GetOrder(cid)
	require.NoError(t, err)
	assert.Equal(t, orders.StateFailed, co.State)
	assert.Empty(t, co.ChildrenIDs)
	assert.Empty(t, s.Broker.ListActive())

	// Failed means failed: no silent resubmission next cycle.
	submitter.Run(context.Background())
	conn.AssertExpectations(t)
}

func TestSubmitterGatesUnknownOutcome(t *testing.T) {
	s := stack.NewSet()
	conn := NewMockConnection()
	conn.On("Submit", mock.Anything, mock.Anything).Return("", context.DeadlineExceeded).Once()

	submitter := NewSubmitter(s, testCalendar(), conn, NewControlsRegistry())
	cid := putContractOrder(t, s, "SP500", "202412", 10)

	submitter.Run(context.Background())

	co, err := s.Contract.GetOrder(cid)
	require.NoError(t, err)
	assert.Equal(t, orders.StateActive, co.State)
	assert.True(t, co.NeedsReconfirm)
	assert.Empty(t, co.ChildrenIDs)

	// Gated until reconciliation resolves it: Submit is never retried.
	submitter.Run(context.Background())
	conn.AssertExpectations(t)
}

func TestSubmitterDefersOnWorkingBrokerOrder(t *testing.T) {
	s := stack.NewSet()
	conn := NewMockConnection()
	submitter := NewSubmitter(s, testCalendar(), conn, NewControlsRegistry())

	_, err := s.Broker.PutOrder(&orders.Order{
		Level: orders.LevelBroker,
		Key:   orders.BrokerKey("SP500", "202412", "main"),
		Trade: decimal.NewFromInt(5),
		State: orders.StateActive,
	})
	require.NoError(t, err)
	cid := putContractOrder(t, s, "SP500", "202412", 10)

	submitter.Run(context.Background())

	co, err := s.Contract.GetOrder(cid)
	require.NoError(t, err)
	assert.Equal(t, orders.StatePending, co.State)
	conn.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
}

func TestSubmitterRegistersControls(t *testing.T) {
	s := stack.NewSet()
	conn := NewMockConnection()
	conn.On("Submit", mock.Anything, mock.Anything).Return("V-202", nil).Once()
	controls := NewControlsRegistry()

	submitter := NewSubmitter(s, testCalendar(), conn, controls)
	putContractOrder(t, s, "SP500", "202412", 10)

	submitter.Run(context.Background())

	active := s.Broker.ListActive()
	require.Len(t, active, 1)
	c, ok := controls.Get(active[0].ID)
	require.True(t, ok)
	require.NotNil(t, c.Cancel)

	conn.On("Cancel", mock.Anything, "V-202").Return(nil).Once()
	require.NoError(t, c.Cancel(context.Background()))
	conn.AssertExpectations(t)
}
